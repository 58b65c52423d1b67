// Package template resolves and renders the email copy for sequence steps.
// Resolution prefers the remote template store and degrades to a static
// in-process table; rendering substitutes {{key}} placeholders.
package template

import (
	"regexp"
	"sort"
	"strings"
)

// placeholderPattern matches {{key}} placeholders, tolerating surrounding
// whitespace inside the braces. Keys may be dotted (e.g. {{audit.red_count}}).
var placeholderPattern = regexp.MustCompile(`{{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\s*}}`)

// Render substitutes every {{key}} placeholder in text with the matching
// value from vars. A placeholder whose key is absent is left in the output
// verbatim - not an error and not silently deleted - so a caller that needs
// strict coverage can detect leftovers with Strays. Rendering is pure: the
// same (text, vars) pair always produces the same output, and a second pass
// over fully-rendered text is a no-op.
func Render(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		submatches := placeholderPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}
		key := strings.TrimSpace(submatches[1])
		if value, ok := vars[key]; ok {
			return value
		}
		return match
	})
}

// Strays returns the distinct placeholder keys still present in text, in
// lexical order. Used after rendering to detect variables nobody supplied.
func Strays(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	keys := make([]string, 0, len(matches))
	for _, match := range matches {
		if len(match) < 2 {
			continue
		}
		key := strings.TrimSpace(match[1])
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
