// Package sanitize strips markup from caller-provided text. Trigger payload
// fields like display names end up inside rendered HTML email bodies, so
// they are cleaned once at the ingress boundary.
package sanitize

import (
	"regexp"
	"strings"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes all HTML tags from a string. Entities are decoded and
// the result re-stripped, so an encoded tag cannot survive one pass.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text sanitizes a free-text field for storage and later interpolation into
// email templates.
func Text(s string) string {
	return StripHTML(s)
}
