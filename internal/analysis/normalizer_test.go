package analysis

import (
	"testing"

	"complaintbot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeThreePointJSON(t *testing.T) {
	reply := `{"root_cause": ["1. Inadequate seal inspection", "2. Humid storage", "3. Supplier material change"],
"suggested_solution": ["1. Add seal checks", "2. Control warehouse humidity", "3. Audit supplier"]}`

	n := Normalize(reply)
	require.True(t, n.OK(), n.Error)
	assert.Equal(t, StrategyJSON, n.Strategy)
	assert.True(t, n.RootCause.IsList())
	assert.Equal(t, []string{"1. Inadequate seal inspection", "2. Humid storage", "3. Supplier material change"}, n.RootCause.Points())
	assert.Equal(t, []string{"1. Add seal checks", "2. Control warehouse humidity", "3. Audit supplier"}, n.SuggestedSolution.Points())
}

func TestNormalizeFencedJSONWithProse(t *testing.T) {
	reply := "Sure, here is the result {see below}.\n```json\n" +
		`{"root_cause": "Gloves were stored above the rated temperature", "suggested_solution": "Move stock to climate controlled storage"}` +
		"\n```\nLet me know if you need more."

	n := Normalize(reply)
	require.True(t, n.OK(), n.Error)
	assert.Equal(t, StrategyJSON, n.Strategy)
	assert.False(t, n.RootCause.IsList())
	assert.Equal(t, "Gloves were stored above the rated temperature", domain.FormatField(n.RootCause))
	assert.Equal(t, "Move stock to climate controlled storage", domain.FormatField(n.SuggestedSolution))
}

func TestNormalizePrefersSmallestObject(t *testing.T) {
	reply := `{"result": {"root_cause": ["a cause", "b cause", "c cause"], "suggested_solution": ["x fix", "y fix", "z fix"]}, "confidence": 0.8}`

	n := Normalize(reply)
	require.True(t, n.OK(), n.Error)
	assert.Equal(t, []string{"a cause", "b cause", "c cause"}, n.RootCause.Points())
}

func TestNormalizeSkipsUnrelatedObjects(t *testing.T) {
	reply := `{"note": 1} then {"root_cause": "Torn packaging", "suggested_solution": "Use double boxing"} and {"tail": true}`

	n := Normalize(reply)
	require.True(t, n.OK(), n.Error)
	assert.Equal(t, "Torn packaging", domain.FormatField(n.RootCause))
}

func TestNormalizeTooShort(t *testing.T) {
	for _, reply := range []string{"", "   ", "ok", "{}", "123456789"} {
		n := Normalize(reply)
		assert.False(t, n.OK(), reply)
		assert.NotEmpty(t, n.Error)
		assert.False(t, n.RootCause.IsEmpty())
		assert.False(t, n.SuggestedSolution.IsEmpty())
	}
}

func TestNormalizePadsShortLists(t *testing.T) {
	reply := `{"root_cause": ["1. Weak seam"], "suggested_solution": ["1. Reinforce seam", "2. Retest batch"]}`

	n := Normalize(reply)
	require.True(t, n.OK(), n.Error)
	assert.Equal(t, []string{"1. Weak seam", "2. Analysis incomplete", "3. Analysis incomplete"}, n.RootCause.Points())
	assert.Equal(t, []string{"1. Reinforce seam", "2. Retest batch", "3. Solution pending"}, n.SuggestedSolution.Points())
}

func TestNormalizeTruncatesLongLists(t *testing.T) {
	reply := `{"root_cause": ["a", "b", "c", "d"], "suggested_solution": ["w", "x", "y", "z"]}`

	n := Normalize(reply)
	require.True(t, n.OK(), n.Error)
	assert.Equal(t, []string{"a", "b", "c"}, n.RootCause.Points())
	assert.Equal(t, []string{"w", "x", "y"}, n.SuggestedSolution.Points())
}

func TestNormalizeEmptyFieldFallsThrough(t *testing.T) {
	reply := `{"root_cause": [], "suggested_solution": "Replace the lot"}`

	n := Normalize(reply)
	assert.False(t, n.OK())
	assert.NotEmpty(t, n.Error)
}

func TestNormalizeRegexOnTruncatedJSON(t *testing.T) {
	reply := `{"root_cause": "Seal failure in batch 42", "suggested_solution": "Replace seals and audit supplier`

	n := Normalize(reply)
	require.True(t, n.OK(), n.Error)
	assert.Equal(t, StrategyRegex, n.Strategy)
	assert.Equal(t, "Seal failure in batch 42", domain.FormatField(n.RootCause))
	assert.Equal(t, "Replace seals and audit supplier", domain.FormatField(n.SuggestedSolution))
}

func TestNormalizeRegexOnTruncatedArrays(t *testing.T) {
	reply := `{"root_cause": ["1. Thin nitrile", "2. Old mould"], "suggested_solution": ["1. Thicker gauge"`

	n := Normalize(reply)
	require.True(t, n.OK(), n.Error)
	assert.Equal(t, StrategyRegex, n.Strategy)
	assert.Equal(t, []string{"1. Thin nitrile", "2. Old mould", "3. Analysis incomplete"}, n.RootCause.Points())
	assert.Equal(t, []string{"1. Thicker gauge", "2. Solution pending", "3. Solution pending"}, n.SuggestedSolution.Points())
}

func TestNormalizeLabelledLines(t *testing.T) {
	reply := "Root Cause: Poor sealing on the pouch\nSolution: Replace the sealing bar"

	n := Normalize(reply)
	require.True(t, n.OK(), n.Error)
	assert.Equal(t, StrategyLines, n.Strategy)
	assert.Equal(t, "Poor sealing on the pouch", domain.FormatField(n.RootCause))
	assert.Equal(t, "Replace the sealing bar", domain.FormatField(n.SuggestedSolution))
}

func TestNormalizeLabelledSections(t *testing.T) {
	reply := "Root causes:\n1. Wrong size shipped\n2. Picking error\n\nSuggested solutions:\n1. Scan on pick\n2. Recheck labels\n3. Train staff"

	n := Normalize(reply)
	require.True(t, n.OK(), n.Error)
	assert.Equal(t, StrategyLines, n.Strategy)
	assert.Equal(t, []string{"1. Wrong size shipped", "2. Picking error", "3. Analysis incomplete"}, n.RootCause.Points())
	assert.Equal(t, []string{"1. Scan on pick", "2. Recheck labels", "3. Train staff"}, n.SuggestedSolution.Points())
}

func TestNormalizeMarkdownSectionHeaders(t *testing.T) {
	replies := map[string]string{
		"bold": "**Root Causes:**\n1. Thin nitrile\n2. Long storage\n3. Rough donning\n\n" +
			"**Suggested Solutions:**\n1. Thicker gauge\n2. Rotate stock\n3. Train staff",
		"heading": "### Root Causes:\n1. Thin nitrile\n2. Long storage\n3. Rough donning\n\n" +
			"### Suggested Solutions\n1. Thicker gauge\n2. Rotate stock\n3. Train staff",
	}
	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			n := Normalize(reply)
			require.True(t, n.OK(), n.Error)
			assert.Equal(t, StrategyLines, n.Strategy)
			assert.Equal(t, []string{"1. Thin nitrile", "2. Long storage", "3. Rough donning"}, n.RootCause.Points())
			assert.Equal(t, []string{"1. Thicker gauge", "2. Rotate stock", "3. Train staff"}, n.SuggestedSolution.Points())
		})
	}
}

func TestNormalizeBoldInlineLabels(t *testing.T) {
	n := Normalize("**Root Cause:** Poor sealing on the pouch\n**Solution:** _Replace the sealing bar_")
	require.True(t, n.OK(), n.Error)
	assert.Equal(t, "Poor sealing on the pouch", domain.FormatField(n.RootCause))
	assert.Equal(t, "Replace the sealing bar", domain.FormatField(n.SuggestedSolution))
}

func TestNormalizeCountsCharactersNotBytes(t *testing.T) {
	// eight characters, 24 bytes
	n := Normalize("不良品手袋破損有")
	assert.False(t, n.OK())
	assert.Contains(t, n.Error, "too short")
}

func TestNormalizeUnparseable(t *testing.T) {
	n := Normalize("I am unable to help with that request today.")
	assert.False(t, n.OK())
	assert.Contains(t, n.Error, "could not extract")
	assert.Equal(t, "Unable to determine root cause", domain.FormatField(n.RootCause))
}
