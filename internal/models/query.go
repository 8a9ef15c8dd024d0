package models

import "strings"

// AskRequest is a question against the ingested corpus, optionally scoped to one document.
type AskRequest struct {
	Query      string `json:"query" validate:"required,max=4000"`
	DocumentID string `json:"document_id,omitempty" validate:"max=200"`
	TopK       int    `json:"top_k,omitempty" validate:"gte=0,lte=50"`
	SessionID  string `json:"session_id,omitempty" validate:"max=100"`
}

// Normalize trims the query and applies the default top-k when unset.
func (q *AskRequest) Normalize(defaultTopK int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return ErrEmptyQuery
	}
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	return nil
}
