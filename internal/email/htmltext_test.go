package email

import (
	"strings"
	"testing"
)

func TestPlainTextPassesThroughPlainBodies(t *testing.T) {
	body := "Hi Sam,\n\nJust checking in.\n\nAlex"
	if got := PlainText(body); got != body {
		t.Fatalf("PlainText changed a plain body:\n got %q\nwant %q", got, body)
	}
}

func TestPlainTextConvertsBlocksAndBreaks(t *testing.T) {
	src := "<p>Hi Sam,</p><p>First line.<br>Second line.</p>"
	got := PlainText(src)
	want := "Hi Sam,\n\nFirst line.\nSecond line."
	if got != want {
		t.Fatalf("PlainText() = %q, want %q", got, want)
	}
}

func TestPlainTextKeepsAnchorTargets(t *testing.T) {
	src := `<p>Book a call <a href="https://example.com/book">here</a>.</p>`
	got := PlainText(src)
	if !strings.Contains(got, "https://example.com/book") {
		t.Fatalf("PlainText dropped the link target: %q", got)
	}
}

func TestPlainTextDropsScriptAndStyle(t *testing.T) {
	src := `<style>p{color:red}</style><p>Visible</p><script>alert(1)</script>`
	got := PlainText(src)
	if strings.Contains(got, "color") || strings.Contains(got, "alert") {
		t.Fatalf("PlainText leaked script/style content: %q", got)
	}
	if !strings.Contains(got, "Visible") {
		t.Fatalf("PlainText lost visible text: %q", got)
	}
}

func TestLooksLikeHTML(t *testing.T) {
	cases := []struct {
		body string
		want bool
	}{
		{"plain text only", false},
		{"a < b and b > c", false},
		{"<p>markup</p>", true},
		{"text with <br> break", true},
	}
	for _, tc := range cases {
		if got := looksLikeHTML(tc.body); got != tc.want {
			t.Errorf("looksLikeHTML(%q) = %v, want %v", tc.body, got, tc.want)
		}
	}
}
