package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	ugcPolicy    = bluemonday.UGCPolicy()
	strictPolicy = bluemonday.StrictPolicy()
)

// Sanitize cleans post bodies, keeping the markup user generated content may use.
func Sanitize(input string) string {
	return ugcPolicy.Sanitize(input)
}

// PlainText strips every tag and trims the result, for titles, nicknames and comments.
func PlainText(input string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(input)))
}
