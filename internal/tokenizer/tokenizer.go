// Package tokenizer measures and truncates text in model tokens.
package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// Tokenizer converts between text and model token ids.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(tokens []int) (string, error)
	// Count returns the number of tokens in text.
	Count(text string) (int, error)
	// Truncate returns the longest prefix of text that fits in maxTokens whole tokens.
	Truncate(text string, maxTokens int) (string, error)
}

// truncateTokens decodes the first maxTokens tokens, backing off one token at a
// time while the decoded text ends inside a multi-byte rune.
func truncateTokens(t Tokenizer, text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return "", nil
	}
	tokens, err := t.Encode(text)
	if err != nil {
		return "", err
	}
	if len(tokens) <= maxTokens {
		return text, nil
	}
	for n := maxTokens; n > 0; n-- {
		s, err := t.Decode(tokens[:n])
		if err != nil {
			return "", err
		}
		if utf8.ValidString(s) {
			return strings.TrimSpace(s), nil
		}
	}
	return "", nil
}
