package sanitize

import "testing"

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "Dana from Riverside", "Dana from Riverside"},
		{"tags removed", "<b>Dana</b>", "Dana"},
		{"script removed", "<script>alert(1)</script>Dana", "alert(1)Dana"},
		{"encoded tag cannot survive", "&lt;img src=x onerror=alert(1)&gt;", ""},
		{"entities decoded", "Fish &amp; Chips", "Fish & Chips"},
		{"whitespace trimmed", "  Dana  ", "Dana"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.input); got != tt.want {
				t.Fatalf("StripHTML(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
