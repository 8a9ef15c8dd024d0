// Package models defines core data structures for documents, chunks, questions, and answers.
package models

import "time"

// Document is a catalog entry for an ingested source.
type Document struct {
	ID         string                 `json:"id" db:"id"`
	Title      string                 `json:"title" db:"title"`
	SourcePath string                 `json:"source_path,omitempty" db:"source_path"`
	Content    string                 `json:"content,omitempty" db:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	ChunkCount int                    `json:"chunk_count" db:"chunk_count"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at" db:"updated_at"`
}

// StoredChunk is a chunk as persisted in the catalog, together with its embedding
// so the vector store can be rebuilt without calling the embedding service.
type StoredChunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Ordinal    int       `json:"ordinal" db:"ordinal"`
	Content    string    `json:"content" db:"content"`
	Embedding  []float32 `json:"-" db:"embedding"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// DocumentInput is the input for ingesting raw text.
type DocumentInput struct {
	ID         string                 `json:"id,omitempty" validate:"omitempty,max=200"`
	Title      string                 `json:"title,omitempty" validate:"max=500"`
	Content    string                 `json:"content" validate:"required"`
	SourcePath string                 `json:"source_path,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Force      bool                   `json:"force,omitempty"`
}

// ChatRecord is one question/answer exchange kept in the catalog.
type ChatRecord struct {
	ID         string    `json:"id" db:"id"`
	SessionID  string    `json:"session_id" db:"session_id"`
	Query      string    `json:"query" db:"query"`
	Answer     string    `json:"answer" db:"answer"`
	DocumentID string    `json:"document_id,omitempty" db:"document_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
