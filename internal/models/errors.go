package models

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector's length disagrees with an index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrServiceUnavailable wraps failures of the embedding, tokenizer, or generation services.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrDocumentNotFound is returned when a document id is unknown.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrAlreadyIngested is returned when a document already has an index and force is not set.
	ErrAlreadyIngested = errors.New("document already ingested")
	// ErrEmptyQuery is returned for blank questions.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrEmptyDocument is returned when a document yields no text to index.
	ErrEmptyDocument = errors.New("document has no text")
)
