package transcript

import "strings"

// EstimateTokens approximates the token cost of text without a real
// tokenizer. The estimate is deterministic and monotonic in text length,
// which is all the window accounting needs for reproducible eviction.
func EstimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	byChars := (len(trimmed) + 3) / 4
	byWords := len(strings.Fields(trimmed))
	if byWords > byChars {
		return byWords
	}
	return byChars
}
