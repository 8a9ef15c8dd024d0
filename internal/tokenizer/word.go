package tokenizer

import (
	"fmt"
	"strings"
	"sync"
)

// WordTokenizer treats every whitespace-separated word as one token. It is
// deterministic and needs no model files, so tests and offline runs use it.
type WordTokenizer struct {
	mu    sync.Mutex
	vocab map[string]int
	words []string
}

// NewWordTokenizer returns an empty word tokenizer.
func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{vocab: make(map[string]int)}
}

// Encode assigns each distinct word a stable id.
func (w *WordTokenizer) Encode(text string) ([]int, error) {
	fields := strings.Fields(text)
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]int, len(fields))
	for i, f := range fields {
		id, ok := w.vocab[f]
		if !ok {
			id = len(w.words)
			w.vocab[f] = id
			w.words = append(w.words, f)
		}
		ids[i] = id
	}
	return ids, nil
}

// Decode joins the words for tokens with single spaces.
func (w *WordTokenizer) Decode(tokens []int) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(tokens))
	for i, id := range tokens {
		if id < 0 || id >= len(w.words) {
			return "", fmt.Errorf("unknown token id %d", id)
		}
		out[i] = w.words[id]
	}
	return strings.Join(out, " "), nil
}

// Count returns the number of words in text.
func (w *WordTokenizer) Count(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

// Truncate keeps the first maxTokens words.
func (w *WordTokenizer) Truncate(text string, maxTokens int) (string, error) {
	return truncateTokens(w, text, maxTokens)
}
