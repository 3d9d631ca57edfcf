package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveImportance(t *testing.T) {
	tests := []struct {
		name        string
		category    string
		description string
		rootCause   string
		solution    string
		want        Importance
	}{
		{
			name:        "critical keywords win",
			description: "Batch must be recall-ed, the coating is toxic",
			want:        ImportanceCritical,
		},
		{
			name:        "two high keywords",
			description: "The clasp arrived broken and caused an injury to a nurse",
			want:        ImportanceHigh,
		},
		{
			name:        "single high keyword stays medium",
			description: "One glove looked defective",
			want:        ImportanceMedium,
		},
		{
			name:        "high risk category",
			category:    "Quality Issue",
			description: "Gloves tear at the thumb",
			want:        ImportanceHigh,
		},
		{
			name:        "general inquiry",
			category:    "General Inquiry",
			description: "When will my order ship?",
			want:        ImportanceMedium,
		},
		{
			name:      "analysis text counts",
			rootCause: "Manufacturing defect created a fire hazard",
			want:      ImportanceCritical,
		},
		{
			name: "empty input",
			want: ImportanceMedium,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveImportance(tt.category, tt.description, tt.rootCause, tt.solution)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveImportanceNeverLow(t *testing.T) {
	for _, text := range []string{"", "minor cosmetic scratch", "low priority"} {
		assert.NotEqual(t, ImportanceLow, DeriveImportance("", text, "", ""))
	}
}

func TestParseImportanceFallsBackToMedium(t *testing.T) {
	assert.Equal(t, ImportanceLow, ParseImportance(" low "))
	assert.Equal(t, ImportanceCritical, ParseImportance("CRITICAL"))
	assert.Equal(t, ImportanceMedium, ParseImportance("urgent"))
	assert.Equal(t, ImportanceMedium, ParseImportance(""))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("successful")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessful, s)
	assert.True(t, s.Valid())

	_, err = ParseStatus("closed")
	assert.Error(t, err)
	assert.False(t, Status("Closed").Valid())
}

func TestComplaintIDRoundTrip(t *testing.T) {
	assert.Equal(t, "COMP-000001", FormatComplaintID(1))
	assert.Equal(t, "COMP-123456", FormatComplaintID(123456))

	n, ok := ParseComplaintNumber("COMP-000007")
	require.True(t, ok)
	assert.Equal(t, 7, n)

	for _, bad := range []string{"COMP-001x", "comp-000001", "ABC", "", "COMP-"} {
		_, ok := ParseComplaintNumber(bad)
		assert.False(t, ok, bad)
	}
}

func TestFormatField(t *testing.T) {
	assert.Equal(t, "single cause", FormatField(Scalar("  single cause ")))
	assert.Equal(t, "1. a\n2. b\n3. c", FormatField(ThreePoint("1. a", " 2. b", "3. c ")))
	assert.True(t, Scalar("  ").IsEmpty())
	assert.False(t, ThreePoint("a", "", "").IsEmpty())
}

func TestAnalysisFieldJSON(t *testing.T) {
	b, err := json.Marshal(ThreePoint("a", "b", "c"))
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b","c"]`, string(b))

	b, err = json.Marshal(Scalar("x"))
	require.NoError(t, err)
	assert.JSONEq(t, `"x"`, string(b))
}

func TestSplitPoints(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want [3]string
	}{
		{name: "empty", in: "", want: [3]string{}},
		{name: "lines", in: "1. a\n2. b\n3. c", want: [3]string{"1. a", "2. b", "3. c"}},
		{name: "extra lines dropped", in: "a\nb\nc\nd", want: [3]string{"a", "b", "c"}},
		{name: "two lines", in: "a\r\n\r\nb", want: [3]string{"a", "b", ""}},
		{name: "json array", in: `["x", "y", "z", "w"]`, want: [3]string{"x", "y", "z"}},
		{name: "inline numbering", in: "1. Poor QC 2. Bad storage 3) Supplier change", want: [3]string{"1. Poor QC", "2. Bad storage", "3) Supplier change"}},
		{name: "plain", in: "Seal failure", want: [3]string{"Seal failure", "", ""}},
		{name: "broken json", in: `["x", `, want: [3]string{`["x",`, "", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitPoints(tt.in))
		})
	}
}

func TestAnalysisTextRequiresDescription(t *testing.T) {
	c := Complaint{Category: "Packaging", OrderID: "ORD-1"}
	assert.Empty(t, c.AnalysisText())

	c.Description = "Box crushed"
	text := c.AnalysisText()
	assert.Contains(t, text, "Complaint Category: Packaging")
	assert.Contains(t, text, "Order ID: ORD-1")
	assert.Contains(t, text, "Description: Box crushed")
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusSuccessful))
	assert.True(t, StatusPending.CanTransitionTo(StatusFailed))
	assert.False(t, StatusPending.CanTransitionTo(StatusPending))
	assert.True(t, StatusFailed.CanTransitionTo(StatusSuccessful))
	assert.True(t, StatusSuccessful.CanTransitionTo(StatusPending))
	assert.False(t, StatusSuccessful.CanTransitionTo(StatusFailed))
	assert.False(t, Status("Closed").CanTransitionTo(StatusPending))
}

func TestStripPointPrefix(t *testing.T) {
	assert.Equal(t, "Seal failure", StripPointPrefix("1. Seal failure"))
	assert.Equal(t, "Seal failure", StripPointPrefix(" 2) Seal failure"))
	assert.Equal(t, "Seal failure", StripPointPrefix("- Seal failure"))
	assert.Equal(t, "Seal failure", StripPointPrefix("Seal failure"))
}
