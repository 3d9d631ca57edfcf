package domain

import "strings"

var criticalKeywords = []string{
	"life-threatening", "life threatening", "fatal", "death", "died",
	"recall", "toxic", "poisoning", "explosion", "fire hazard", "anaphylaxis",
}

var highKeywords = []string{
	"safety", "injury", "injured", "defective", "broken", "hazard", "dangerous",
	"allergic", "burn", "malfunction", "contaminated", "contamination",
	"sterility", "expired", "leak",
}

var highRiskCategories = []string{
	"product safety", "defective product", "quality issue", "allergic reaction",
	"contamination", "medical device malfunction",
}

// DeriveImportance classifies a complaint from its category, description
// and analysis text. Critical keywords win outright; two distinct high
// keywords or a high-risk category give High; everything else is Medium.
func DeriveImportance(category, description, rootCause, solution string) Importance {
	text := strings.ToLower(strings.Join([]string{category, description, rootCause, solution}, " "))

	for _, kw := range criticalKeywords {
		if strings.Contains(text, kw) {
			return ImportanceCritical
		}
	}

	matches := 0
	for _, kw := range highKeywords {
		if strings.Contains(text, kw) {
			matches++
		}
	}
	if matches >= 2 {
		return ImportanceHigh
	}

	cat := strings.ToLower(strings.TrimSpace(category))
	if cat != "" {
		for _, risky := range highRiskCategories {
			if strings.Contains(cat, risky) {
				return ImportanceHigh
			}
		}
	}
	return ImportanceMedium
}
