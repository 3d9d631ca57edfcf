package domain

import (
	"encoding/json"
	"regexp"
	"strings"
)

// AnalysisField is one half of a model analysis: either a single scalar
// text or exactly three ordered points.
type AnalysisField struct {
	list   bool
	scalar string
	points [3]string
}

func Scalar(text string) AnalysisField {
	return AnalysisField{scalar: text}
}

func ThreePoint(a, b, c string) AnalysisField {
	return AnalysisField{list: true, points: [3]string{a, b, c}}
}

func (f AnalysisField) IsList() bool { return f.list }

// Points returns the three points of a list field, or a one element slice
// holding the scalar text.
func (f AnalysisField) Points() []string {
	if f.list {
		return []string{f.points[0], f.points[1], f.points[2]}
	}
	return []string{f.scalar}
}

func (f AnalysisField) IsEmpty() bool {
	return strings.TrimSpace(FormatField(f)) == ""
}

func (f AnalysisField) MarshalJSON() ([]byte, error) {
	if f.list {
		return json.Marshal(f.points)
	}
	return json.Marshal(f.scalar)
}

// FormatField serializes a field for the store: list points are joined one
// per line, scalars are stored as they are.
func FormatField(f AnalysisField) string {
	if !f.list {
		return strings.TrimSpace(f.scalar)
	}
	lines := make([]string, 0, 3)
	for _, p := range f.points {
		lines = append(lines, strings.TrimSpace(p))
	}
	return strings.Join(lines, "\n")
}

var (
	pointPrefixRe  = regexp.MustCompile(`^\s*(?:\d+\s*[.)]|[-*•])\s*`)
	inlinePointsRe = regexp.MustCompile(`(?:^|\s)[1-9][.)]\s+`)
)

// SplitPoints re-splits stored analysis text into three export columns.
// It accepts JSON array text, one point per line, inline "1. a 2. b"
// numbering, or plain text (which lands in the first column).
func SplitPoints(text string) [3]string {
	var out [3]string
	text = strings.TrimSpace(text)
	if text == "" {
		return out
	}

	if strings.HasPrefix(text, "[") {
		var arr []string
		if err := json.Unmarshal([]byte(text), &arr); err == nil {
			for i := 0; i < len(arr) && i < 3; i++ {
				out[i] = strings.TrimSpace(arr[i])
			}
			return out
		}
	}

	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > 1 {
		for i := 0; i < len(lines) && i < 3; i++ {
			out[i] = lines[i]
		}
		return out
	}

	locs := inlinePointsRe.FindAllStringIndex(text, -1)
	if len(locs) > 1 {
		for i := 0; i < len(locs) && i < 3; i++ {
			end := len(text)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			out[i] = strings.TrimSpace(text[locs[i][0]:end])
		}
		return out
	}

	out[0] = text
	return out
}

// StripPointPrefix removes a leading "1." / "2)" / "-" marker.
func StripPointPrefix(s string) string {
	return strings.TrimSpace(pointPrefixRe.ReplaceAllString(s, ""))
}
