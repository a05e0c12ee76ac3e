package scraper

import "strings"

// ContainsExcludedTerm returns true if any exclusion term appears
// (case-insensitive) in the listing title.
//
// Checked before every contact dispatch; matching listings are stored in the
// snapshot but never contacted.
func ContainsExcludedTerm(title string, excluded []string) bool {
	if len(excluded) == 0 {
		return false
	}
	lowered := strings.ToLower(title)
	for _, term := range excluded {
		if term == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
