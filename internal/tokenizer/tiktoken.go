package tokenizer

import (
	"fmt"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when no encoding or model is configured.
const DefaultEncoding = "cl100k_base"

// Tiktoken is a BPE tokenizer backed by tiktoken-go. The encoding is loaded on
// first use; set TIKTOKEN_CACHE_DIR to avoid downloading the rank file at runtime.
type Tiktoken struct {
	encoding string
	model    string

	once    sync.Once
	enc     *tiktoken.Tiktoken
	loadErr error
}

// NewTiktoken returns a tokenizer for the named encoding. When model is set it takes
// precedence and the encoding is resolved from the model name.
func NewTiktoken(encoding, model string) *Tiktoken {
	if encoding == "" && model == "" {
		encoding = DefaultEncoding
	}
	return &Tiktoken{encoding: encoding, model: model}
}

func (t *Tiktoken) load() (*tiktoken.Tiktoken, error) {
	t.once.Do(func() {
		if t.model != "" {
			t.enc, t.loadErr = tiktoken.EncodingForModel(t.model)
		} else {
			t.enc, t.loadErr = tiktoken.GetEncoding(t.encoding)
		}
		if t.loadErr != nil {
			t.loadErr = fmt.Errorf("%w: load tokenizer: %v", models.ErrServiceUnavailable, t.loadErr)
		}
	})
	return t.enc, t.loadErr
}

// Encode returns the token ids for text. Special-token markup is encoded as plain text.
func (t *Tiktoken) Encode(text string) ([]int, error) {
	enc, err := t.load()
	if err != nil {
		return nil, err
	}
	return enc.Encode(text, nil, nil), nil
}

// Decode returns the text for tokens.
func (t *Tiktoken) Decode(tokens []int) (string, error) {
	enc, err := t.load()
	if err != nil {
		return "", err
	}
	return enc.Decode(tokens), nil
}

// Count returns the number of tokens in text.
func (t *Tiktoken) Count(text string) (int, error) {
	tokens, err := t.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(tokens), nil
}

// Truncate returns text cut to at most maxTokens tokens.
func (t *Tiktoken) Truncate(text string, maxTokens int) (string, error) {
	return truncateTokens(t, text, maxTokens)
}
