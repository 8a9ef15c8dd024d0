// Package rag answers questions from retrieved context: retrieval, gating,
// prompt assembly, and supervised streaming generation.
package rag

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/sanitize"
	"github.com/hyperjump/kotae/internal/tokenizer"
	"github.com/hyperjump/kotae/internal/vectorstore"
	"go.uber.org/zap"
)

// DefaultMaxTokensPerChunk bounds every retrieved chunk.
const DefaultMaxTokensPerChunk = 512

// Retriever finds the chunks nearest to a query.
type Retriever struct {
	store       *vectorstore.Store
	embedder    embedding.Embedder
	tok         tokenizer.Tokenizer
	queryPrefix string
	maxTokens   int
	logger      *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithQueryPrefix prepends prefix to queries before embedding.
func WithQueryPrefix(prefix string) RetrieverOption {
	return func(r *Retriever) { r.queryPrefix = prefix }
}

// WithMaxTokensPerChunk sets the per-chunk token limit.
func WithMaxTokensPerChunk(n int) RetrieverOption {
	return func(r *Retriever) {
		if n > 0 {
			r.maxTokens = n
		}
	}
}

// WithRetrieverLogger sets the logger.
func WithRetrieverLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRetriever creates a retriever over store.
func NewRetriever(store *vectorstore.Store, embedder embedding.Embedder, tok tokenizer.Tokenizer, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		store:     store,
		embedder:  embedder,
		tok:       tok,
		maxTokens: DefaultMaxTokensPerChunk,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to topK sanitized chunks nearest to query, closest
// first. A non-empty scope restricts results to that document. An empty
// store yields no results and no error.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, scope string) ([]models.RetrievedChunk, error) {
	q := sanitize.Query(query)
	if q == "" || topK <= 0 {
		return nil, nil
	}
	if r.store.Stats().GlobalRows == 0 {
		return nil, nil
	}
	vec, err := r.embedder.Embed(ctx, r.queryPrefix+q)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := r.store.Search(ctx, vec, topK, scope)
	if err != nil {
		return nil, fmt.Errorf("search vectors: %w", err)
	}

	out := make([]models.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		text := sanitize.Chunk(h.Text)
		if text == "" {
			continue
		}
		text, err = r.tok.Truncate(text, r.maxTokens)
		if err != nil {
			return nil, fmt.Errorf("truncate chunk: %w", err)
		}
		h.Text = text
		out = append(out, h)
	}
	r.logger.Debug("retrieved chunks",
		zap.String("query", q),
		zap.String("scope", scope),
		zap.Int("hits", len(hits)),
		zap.Int("kept", len(out)),
	)
	return out, nil
}

// Texts returns the chunk texts in order.
func Texts(chunks []models.RetrievedChunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}
