package pipeline

import "strings"

// CategoryRules maps school names to competition categories. The lookup is
// configuration data; unrecognized schools fall back to Default, which the
// event uses as the open "Inter School" bracket.
type CategoryRules struct {
	Lookup  map[string]string `json:"lookup"`
	Default string            `json:"default"`
}

// CategoryFor resolves the category for a school name. The lookup is
// case-insensitive over trimmed names. Pure function, safe to call on blur,
// submit or anywhere else without debouncing concerns.
func (r CategoryRules) CategoryFor(school string) string {
	key := strings.ToLower(strings.TrimSpace(school))
	if key == "" {
		return r.Default
	}
	if cat, ok := r.Lookup[key]; ok {
		return cat
	}
	return r.Default
}
