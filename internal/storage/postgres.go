package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hyperjump/kotae/internal/models"
)

// PostgresStorage implements Storage on Postgres with the pgvector extension.
// Embeddings are kept in a vector column so the catalog can be queried directly.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to connStr and creates the schema if needed.
func NewPostgresStorage(ctx context.Context, connStr string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	p := &PostgresStorage{pool: pool}
	if err := p.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return p, nil
}

func (p *PostgresStorage) initSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		source_path TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		metadata JSONB,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		ordinal INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding vector,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_ordinal ON document_chunks(document_id, ordinal);

	CREATE TABLE IF NOT EXISTS chat_history (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		query TEXT NOT NULL,
		answer TEXT NOT NULL,
		document_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chat_session ON chat_history(session_id, created_at);
	`)
	return err
}

// CreateDocument inserts a document.
func (p *PostgresStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	now := time.Now()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	_, err = p.pool.Exec(ctx,
		`INSERT INTO documents (id, title, source_path, content, metadata, chunk_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, doc.Title, doc.SourcePath, doc.Content, metadataJSON, doc.ChunkCount, doc.CreatedAt, doc.UpdatedAt,
	)
	return err
}

func scanPgDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	var metadataJSON []byte
	if err := row.Scan(&doc.ID, &doc.Title, &doc.SourcePath, &doc.Content, &metadataJSON, &doc.ChunkCount, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if len(metadataJSON) > 0 && string(metadataJSON) != "null" {
		if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

// GetDocument returns a document by ID.
func (p *PostgresStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	doc, err := scanPgDocument(p.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	return doc, err
}

// UpdateDocument updates an existing document.
func (p *PostgresStorage) UpdateDocument(ctx context.Context, doc *models.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	doc.UpdatedAt = time.Now()
	tag, err := p.pool.Exec(ctx,
		`UPDATE documents SET title = $1, source_path = $2, content = $3, metadata = $4, chunk_count = $5, updated_at = $6
		 WHERE id = $7`,
		doc.Title, doc.SourcePath, doc.Content, metadataJSON, doc.ChunkCount, doc.UpdatedAt, doc.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(doc.ID)
	}
	return nil
}

// DeleteDocument removes a document and its chunks.
func (p *PostgresStorage) DeleteDocument(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

// ListDocuments returns documents oldest first.
func (p *PostgresStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []*models.Document
	for rows.Next() {
		doc, err := scanPgDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// GetChunksByDocumentID returns a document's chunks ordered by ordinal.
func (p *PostgresStorage) GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.StoredChunk, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, document_id, ordinal, content, embedding, created_at
		 FROM document_chunks WHERE document_id = $1 ORDER BY ordinal`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chunks []*models.StoredChunk
	for rows.Next() {
		var c models.StoredChunk
		var vec pgvector.Vector
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Content, &vec, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Embedding = vec.Slice()
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// DeleteChunksByDocumentID removes all chunks for a document.
func (p *PostgresStorage) DeleteChunksByDocumentID(ctx context.Context, docID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, docID)
	return err
}

// ReplaceChunks swaps a document's chunks inside one transaction.
func (p *PostgresStorage) ReplaceChunks(ctx context.Context, docID string, chunks []*models.StoredChunk) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, docID); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	now := time.Now()
	for _, c := range chunks {
		c.DocumentID = docID
		c.CreatedAt = now
		batch.Queue(
			`INSERT INTO document_chunks (id, document_id, ordinal, content, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, docID, c.Ordinal, c.Content, pgvector.NewVector(c.Embedding), c.CreatedAt,
		)
	}
	batch.Queue(`UPDATE documents SET chunk_count = $1 WHERE id = $2`, len(chunks), docID)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateChat records one exchange.
func (p *PostgresStorage) CreateChat(ctx context.Context, chat *models.ChatRecord) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO chat_history (id, session_id, query, answer, document_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		chat.ID, chat.SessionID, chat.Query, chat.Answer, chat.DocumentID, chat.CreatedAt,
	)
	return err
}

// ListChats returns the latest exchanges of a session, oldest first.
func (p *PostgresStorage) ListChats(ctx context.Context, sessionID string, limit int) ([]*models.ChatRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, session_id, query, answer, document_id, created_at FROM (
			SELECT * FROM chat_history WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2
		 ) recent ORDER BY created_at`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var chats []*models.ChatRecord
	for rows.Next() {
		var c models.ChatRecord
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Query, &c.Answer, &c.DocumentID, &c.CreatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, &c)
	}
	return chats, rows.Err()
}

// CountDocuments returns the total number of documents.
func (p *PostgresStorage) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// CountChunks returns the total number of chunks.
func (p *PostgresStorage) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&n)
	return n, err
}

// Close closes the pool.
func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}
