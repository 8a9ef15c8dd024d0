// Package storage persists the document catalog: documents, their chunks with
// embeddings, and chat history.
package storage

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// Storage defines catalog persistence operations.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, doc *models.Document) error
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	// Chunk operations
	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.StoredChunk, error)
	DeleteChunksByDocumentID(ctx context.Context, docID string) error
	// ReplaceChunks atomically swaps a document's chunks.
	ReplaceChunks(ctx context.Context, docID string, chunks []*models.StoredChunk) error

	// Chat history
	CreateChat(ctx context.Context, chat *models.ChatRecord) error
	ListChats(ctx context.Context, sessionID string, limit int) ([]*models.ChatRecord, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}

// Driver names accepted by New.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// New opens the storage backend named by driver. dsn is a file path for
// SQLite and a connection string for Postgres.
func New(ctx context.Context, driver, dsn string) (Storage, error) {
	switch driver {
	case DriverSQLite, "":
		return NewSQLiteStorage(dsn)
	case DriverPostgres:
		return NewPostgresStorage(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s (supported: sqlite, postgres)", driver)
	}
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
}
