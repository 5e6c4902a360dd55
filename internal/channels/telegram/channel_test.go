package telegram

import (
	"strings"
	"testing"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  int
	}{
		{name: "fits", text: "short", limit: 10, want: 1},
		{name: "exact", text: "1234567890", limit: 10, want: 1},
		{name: "two parts", text: strings.Repeat("a", 15), limit: 10, want: 2},
		{name: "prefers newline", text: "line one\nline two", limit: 12, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := splitMessage(tt.text, tt.limit)
			if len(parts) != tt.want {
				t.Fatalf("got %d parts, want %d: %q", len(parts), tt.want, parts)
			}
			if strings.Join(parts, "") != tt.text {
				t.Errorf("parts do not reassemble to the input: %q", parts)
			}
			for _, p := range parts {
				if len([]rune(p)) > tt.limit {
					t.Errorf("part %q exceeds limit %d", p, tt.limit)
				}
			}
		})
	}
}
