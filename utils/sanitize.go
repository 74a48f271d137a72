package utils

import "github.com/microcosm-cc/bluemonday"

// Submission titles and descriptions are rendered on the public site, so
// anything beyond plain text and basic formatting gets stripped.
var sanitizePolicy = bluemonday.UGCPolicy()

// Sanitize strips unsafe HTML from user-entered text.
func Sanitize(input string) string {
	return sanitizePolicy.Sanitize(input)
}
