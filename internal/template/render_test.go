package template

import (
	"reflect"
	"testing"
)

func TestRenderSubstitutesKnownKeys(t *testing.T) {
	text := "Hi {{name}}, the audit for {{org_name}} found {{red_count}} critical issues."
	vars := map[string]string{
		"name":      "Sam",
		"org_name":  "Riverside Bakery",
		"red_count": "2",
	}

	got := Render(text, vars)
	want := "Hi Sam, the audit for Riverside Bakery found 2 critical issues."
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestRenderToleratesWhitespaceInsideBraces(t *testing.T) {
	got := Render("Hello {{ name }} and {{  org_name  }}", map[string]string{
		"name":     "Sam",
		"org_name": "Riverside Bakery",
	})
	want := "Hello Sam and Riverside Bakery"
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestRenderLeavesMissingKeysVerbatim(t *testing.T) {
	text := "Hi {{name}}, your estimate is {{leak_estimate}}."
	got := Render(text, map[string]string{"name": "Sam"})
	want := "Hi Sam, your estimate is {{leak_estimate}}."
	if got != want {
		t.Fatalf("Render() = %q, want %q", got, want)
	}
}

func TestRenderEmptyVarsReturnsInputUnchanged(t *testing.T) {
	text := "Nothing to do for {{name}} here."
	if got := Render(text, nil); got != text {
		t.Fatalf("Render(text, nil) = %q, want input unchanged", got)
	}
	if got := Render(text, map[string]string{}); got != text {
		t.Fatalf("Render(text, empty) = %q, want input unchanged", got)
	}
}

// Rendering with a complete variable set must be stable: a second pass with a
// different variable set cannot change the output, because no placeholders
// survive the first pass.
func TestRenderSecondPassIsNoOpWhenFirstPassCoversAllKeys(t *testing.T) {
	text := "Hi {{name}}, {{org_name}} has {{red_count}} red findings."
	first := map[string]string{
		"name":      "Sam",
		"org_name":  "Riverside Bakery",
		"red_count": "2",
	}
	second := map[string]string{
		"name":      "SOMEONE ELSE",
		"org_name":  "OTHER CORP",
		"red_count": "99",
	}

	once := Render(text, first)
	twice := Render(once, second)
	if once != twice {
		t.Fatalf("second render pass changed output: first %q, second %q", once, twice)
	}
}

func TestRenderIsPure(t *testing.T) {
	text := "{{greeting}} {{name}}, {{greeting}} again"
	vars := map[string]string{"greeting": "Hello", "name": "Sam"}

	a := Render(text, vars)
	b := Render(text, vars)
	if a != b {
		t.Fatalf("Render not deterministic: %q vs %q", a, b)
	}
	if vars["greeting"] != "Hello" || len(vars) != 2 {
		t.Fatalf("Render mutated vars map: %v", vars)
	}
}

func TestRenderReplacesRepeatedPlaceholders(t *testing.T) {
	got := Render("{{name}}, {{name}}, {{name}}", map[string]string{"name": "Sam"})
	if got != "Sam, Sam, Sam" {
		t.Fatalf("Render() = %q, want all occurrences replaced", got)
	}
}

func TestStraysListsDistinctUnresolvedKeys(t *testing.T) {
	rendered := Render(
		"Hi {{name}}, see {{booking_url}} and {{booking_url}} - est. {{leak_estimate}}",
		map[string]string{"name": "Sam"},
	)

	got := Strays(rendered)
	want := []string{"booking_url", "leak_estimate"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Strays() = %v, want %v", got, want)
	}
}

func TestStraysNilForFullyRenderedText(t *testing.T) {
	if got := Strays("no placeholders here"); got != nil {
		t.Fatalf("Strays() = %v, want nil", got)
	}
}

func TestRenderIgnoresMalformedPlaceholders(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"single braces", "hi {name}"},
		{"unclosed", "hi {{name"},
		{"digit start", "hi {{1name}}"},
		{"empty braces", "hi {{}}"},
	}
	vars := map[string]string{"name": "Sam", "1name": "Bad"}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Render(tc.text, vars); got != tc.text {
				t.Fatalf("Render(%q) = %q, want untouched", tc.text, got)
			}
		})
	}
}
