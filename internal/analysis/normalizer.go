package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"complaintbot/internal/domain"

	"github.com/rs/zerolog"
)

// MinResponseLength is the shortest trimmed reply worth parsing.
const MinResponseLength = 10

const (
	rootCauseKey = "root_cause"
	solutionKey  = "suggested_solution"

	rootCausePlaceholder = "Analysis incomplete"
	solutionPlaceholder  = "Solution pending"
)

const (
	StrategyJSON  = "json"
	StrategyRegex = "regex"
	StrategyLines = "lines"
)

// Normalized is the structured form of one model reply. A non-empty Error
// is the only failure signal; the fields then hold best-effort placeholders.
type Normalized struct {
	RootCause         domain.AnalysisField
	SuggestedSolution domain.AnalysisField
	Strategy          string
	Error             string
}

func (n Normalized) OK() bool { return n.Error == "" }

// Normalize turns a raw model reply into a Normalized analysis.
func Normalize(text string) Normalized {
	return NormalizeWithLogger(text, zerolog.Nop())
}

// NormalizeWithLogger is Normalize with debug logging of the strategy taken.
func NormalizeWithLogger(text string, log zerolog.Logger) Normalized {
	trimmed := strings.TrimSpace(text)
	if n := utf8.RuneCountInString(trimmed); n < MinResponseLength {
		log.Debug().Int("length", n).Msg("normalize reply too short")
		return failed(fmt.Sprintf("response too short (%d chars)", n), domain.AnalysisField{}, domain.AnalysisField{})
	}

	body := stripCodeFences(trimmed)

	if rc, sol, ok := extractJSON(body); ok {
		log.Debug().Str("strategy", StrategyJSON).Msg("normalize ok")
		return Normalized{RootCause: rc, SuggestedSolution: sol, Strategy: StrategyJSON}
	}
	if rc, sol, ok := extractRegex(body); ok {
		log.Debug().Str("strategy", StrategyRegex).Msg("normalize ok")
		return Normalized{RootCause: rc, SuggestedSolution: sol, Strategy: StrategyRegex}
	}
	rc, sol := extractLines(body)
	if !rc.IsEmpty() && !sol.IsEmpty() {
		log.Debug().Str("strategy", StrategyLines).Msg("normalize ok")
		return Normalized{RootCause: rc, SuggestedSolution: sol, Strategy: StrategyLines}
	}

	log.Debug().Bool("root_cause", !rc.IsEmpty()).Bool("suggested_solution", !sol.IsEmpty()).Msg("normalize failed")
	return failed("could not extract root_cause and suggested_solution from response", rc, sol)
}

func failed(msg string, rc, sol domain.AnalysisField) Normalized {
	if rc.IsEmpty() {
		rc = domain.Scalar("Unable to determine root cause")
	}
	if sol.IsEmpty() {
		sol = domain.Scalar("Manual review required")
	}
	return Normalized{RootCause: rc, SuggestedSolution: sol, Error: msg}
}

var fenceLineRe = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")

func stripCodeFences(s string) string {
	return strings.TrimSpace(fenceLineRe.ReplaceAllString(s, ""))
}

// padPoints keeps the first three non-empty items and fills the remainder
// with numbered placeholders.
func padPoints(items []string, placeholder string) domain.AnalysisField {
	var pts [3]string
	n := 0
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		pts[n] = it
		n++
		if n == 3 {
			break
		}
	}
	if n == 0 {
		return domain.AnalysisField{}
	}
	for i := n; i < 3; i++ {
		pts[i] = fmt.Sprintf("%d. %s", i+1, placeholder)
	}
	return domain.ThreePoint(pts[0], pts[1], pts[2])
}

// --- strategy 1: embedded JSON object ---

func extractJSON(s string) (domain.AnalysisField, domain.AnalysisField, bool) {
	for _, cand := range jsonCandidates(s) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(cand), &obj); err != nil {
			continue
		}
		rc := decodeField(obj[rootCauseKey], rootCausePlaceholder)
		sol := decodeField(obj[solutionKey], solutionPlaceholder)
		if rc.IsEmpty() || sol.IsEmpty() {
			continue
		}
		return rc, sol, true
	}
	return domain.AnalysisField{}, domain.AnalysisField{}, false
}

// jsonCandidates returns every brace-balanced span that mentions both keys,
// shortest first.
func jsonCandidates(s string) []string {
	var out []string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		end := matchBrace(s, i)
		if end < 0 {
			continue
		}
		span := s[i : end+1]
		if strings.Contains(span, `"`+rootCauseKey+`"`) && strings.Contains(span, `"`+solutionKey+`"`) {
			out = append(out, span)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return len(out[a]) < len(out[b]) })
	return out
}

func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decodeField(raw json.RawMessage, placeholder string) domain.AnalysisField {
	if len(raw) == 0 {
		return domain.AnalysisField{}
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return domain.Scalar(strings.TrimSpace(str))
	}
	var arr []any
	if err := json.Unmarshal(raw, &arr); err == nil {
		items := make([]string, 0, len(arr))
		for _, v := range arr {
			if v == nil {
				continue
			}
			items = append(items, fmt.Sprint(v))
		}
		return padPoints(items, placeholder)
	}
	return domain.AnalysisField{}
}

// --- strategy 2: key labels with single-line values ---

var (
	rootCauseArrayRe  = regexp.MustCompile(`(?i)"?root_cause"?\s*:\s*\[([^\]]*)`)
	solutionArrayRe   = regexp.MustCompile(`(?i)"?suggested_solution"?\s*:\s*\[([^\]]*)`)
	rootCauseScalarRe = regexp.MustCompile(`(?i)"?root_cause"?\s*:\s*"?([^"\[\n][^"\n]*)`)
	solutionScalarRe  = regexp.MustCompile(`(?i)"?suggested_solution"?\s*:\s*"?([^"\[\n][^"\n]*)`)
	quotedRe          = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
)

func extractRegex(s string) (domain.AnalysisField, domain.AnalysisField, bool) {
	rc := regexField(s, rootCauseArrayRe, rootCauseScalarRe, rootCausePlaceholder)
	sol := regexField(s, solutionArrayRe, solutionScalarRe, solutionPlaceholder)
	if rc.IsEmpty() || sol.IsEmpty() {
		return domain.AnalysisField{}, domain.AnalysisField{}, false
	}
	return rc, sol, true
}

func regexField(s string, arrayRe, scalarRe *regexp.Regexp, placeholder string) domain.AnalysisField {
	if m := arrayRe.FindStringSubmatch(s); m != nil {
		var items []string
		for _, q := range quotedRe.FindAllStringSubmatch(m[1], -1) {
			items = append(items, strings.ReplaceAll(q[1], `\"`, `"`))
		}
		if f := padPoints(items, placeholder); !f.IsEmpty() {
			return f
		}
	}
	if m := scalarRe.FindStringSubmatch(s); m != nil {
		v := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(m[1]), `",}`))
		if v != "" && !strings.HasPrefix(v, "[") {
			return domain.Scalar(v)
		}
	}
	return domain.AnalysisField{}
}

// --- strategy 3: labelled lines ---

var numberedLineRe = regexp.MustCompile(`^\s*(?:\d+\s*[.)]|[-*•])\s+\S`)

func extractLines(s string) (domain.AnalysisField, domain.AnalysisField) {
	var (
		rootCauses []string
		solutions  []string
		section    *[]string
	)
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "root cause"), strings.Contains(lower, "root_cause"):
			section = &rootCauses
		case strings.Contains(lower, "solution"):
			section = &solutions
		default:
			if section != nil && numberedLineRe.MatchString(line) {
				*section = append(*section, line)
			}
			continue
		}
		if idx := strings.Index(line, ":"); idx >= 0 {
			if v := cleanLineValue(line[idx+1:]); v != "" {
				*section = append(*section, v)
			}
		}
	}
	return linesField(rootCauses, rootCausePlaceholder), linesField(solutions, solutionPlaceholder)
}

// cleanLineValue drops quoting and markdown emphasis around a label's value.
// A value left without letters or digits (the "**" after "**Root Causes:**")
// is empty.
func cleanLineValue(v string) string {
	v = strings.TrimSpace(strings.Trim(v, "\",*_#` \t"))
	if strings.IndexFunc(v, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0 {
		return ""
	}
	return v
}

func linesField(items []string, placeholder string) domain.AnalysisField {
	switch len(items) {
	case 0:
		return domain.AnalysisField{}
	case 1:
		return domain.Scalar(items[0])
	default:
		return padPoints(items, placeholder)
	}
}
