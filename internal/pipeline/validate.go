package pipeline

import "strings"

// isValidTranslation reports whether a translator response is usable output.
// Local models under load degenerate into empty strings, single repeated
// characters, or refusal markers fenced with "!!!" on either end; those
// responses are treated as failures so the line can be retried.
func isValidTranslation(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "!!!") || strings.HasSuffix(trimmed, "!!!") {
		return false
	}

	distinct := make(map[rune]struct{})
	for _, r := range trimmed {
		distinct[r] = struct{}{}
		if len(distinct) > 1 {
			return true
		}
	}
	return false
}
