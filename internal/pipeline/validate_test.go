package pipeline

import "testing"

func TestIsValidTranslation(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"normal sentence", "Guten Tag, wie geht es dir?", true},
		{"two characters", "ok", true},
		{"empty", "", false},
		{"whitespace only", "   \n\t", false},
		{"single repeated character", "aaaaaaaa", false},
		{"single character", "a", false},
		{"refusal fence", "!!! cannot translate !!!", false},
		{"refusal marker at start only", "!!! cannot translate this input", false},
		{"refusal marker at end only", "degenerate output !!!", false},
		{"bare fence", "!!!", false},
		{"exclamation inside text", "That is great!!! Really.", true},
		{"unicode text", "こんにちは", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidTranslation(tt.in); got != tt.want {
				t.Errorf("isValidTranslation(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
