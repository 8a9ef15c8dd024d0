// Package indexer ingests documents: it cleans and chunks their text, embeds
// the chunks, and writes them to the catalog and the vector store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vectorstore"
	"go.uber.org/zap"
)

// Ingest statuses reported in models.IngestResult.
const (
	StatusIngested        = "ingested"
	StatusAlreadyIngested = "already ingested"
	StatusUnchanged       = "unchanged"
)

const refreshPageSize = 100

// Indexer writes documents to the catalog and the vector store.
type Indexer struct {
	storage       storage.Storage
	store         *vectorstore.Store
	embedder      embedding.Embedder
	chunker       *Chunker
	extractor     *extract.Extractor
	passagePrefix string
	logger        *zap.Logger

	// mu serializes ingestion so the catalog and the store change together.
	mu sync.Mutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file ingested, document deleted, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithPassagePrefix prepends prefix to every chunk before embedding, for
// models trained with asymmetric "passage: " / "query: " inputs.
func WithPassagePrefix(prefix string) IndexerOption {
	return func(idx *Indexer) { idx.passagePrefix = prefix }
}

// NewIndexer creates an indexer with the given dependencies.
// extractor may be nil; when nil, files are read as plain text.
func NewIndexer(
	storage storage.Storage,
	store *vectorstore.Store,
	embedder embedding.Embedder,
	chunker *Chunker,
	extractor *extract.Extractor,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:   storage,
		store:     store,
		embedder:  embedder,
		chunker:   chunker,
		extractor: extractor,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IngestText cleans, chunks, and embeds input.Content. A document that is
// already in the vector store is left alone and ErrAlreadyIngested is returned
// together with a result, unless input.Force is set.
func (idx *Indexer) IngestText(ctx context.Context, input *models.DocumentInput) (*models.IngestResult, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.ingest(ctx, input)
}

func (idx *Indexer) ingest(ctx context.Context, input *models.DocumentInput) (*models.IngestResult, error) {
	id := resolveID(input)
	if idx.store.HasDocument(id) && !input.Force {
		return &models.IngestResult{ID: id, Status: StatusAlreadyIngested}, fmt.Errorf("%w: %s", models.ErrAlreadyIngested, id)
	}

	content := CleanText(input.Content)
	chunks, err := idx.chunker.ChunkDocument(id, content)
	if err != nil {
		return nil, fmt.Errorf("chunk document: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", models.ErrEmptyDocument, id)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = idx.passagePrefix + ch.Text
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	// The vector store swaps the new version in only once it is persisted, so
	// a failure here leaves the previous version searchable and cataloged.
	if err := idx.store.Replace(ctx, id, chunks, vectors); err != nil {
		return nil, fmt.Errorf("failed to index vectors: %w", err)
	}

	title := input.Title
	if title == "" {
		title = id
	}
	doc := &models.Document{
		ID:         id,
		Title:      title,
		SourcePath: input.SourcePath,
		Content:    content,
		Metadata:   input.Metadata,
	}
	stored := make([]*models.StoredChunk, len(chunks))
	for i, ch := range chunks {
		stored[i] = &models.StoredChunk{
			ID:         id + "_" + strconv.Itoa(ch.Ordinal),
			DocumentID: id,
			Ordinal:    ch.Ordinal,
			Content:    ch.Text,
			Embedding:  vectors[i],
		}
	}
	if err := idx.catalog(ctx, doc, stored); err != nil {
		if rmErr := idx.remove(ctx, id); rmErr != nil {
			idx.logger.Warn("indexer rollback failed", zap.String("id", id), zap.Error(rmErr))
		}
		return nil, err
	}

	idx.logger.Debug("indexer document ingested",
		zap.String("id", id),
		zap.Int("chunks", len(chunks)),
	)
	return &models.IngestResult{ID: id, Status: StatusIngested, ChunkCount: len(chunks)}, nil
}

// catalog replaces the document row and its chunks.
func (idx *Indexer) catalog(ctx context.Context, doc *models.Document, stored []*models.StoredChunk) error {
	if err := idx.storage.DeleteDocument(ctx, doc.ID); err != nil && !errors.Is(err, models.ErrDocumentNotFound) {
		return fmt.Errorf("failed to replace document: %w", err)
	}
	if err := idx.storage.CreateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	if err := idx.storage.ReplaceChunks(ctx, doc.ID, stored); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	return nil
}

// resolveID picks the explicit id, then the normalized title, then a fresh UUID.
func resolveID(input *models.DocumentInput) string {
	if id := strings.TrimSpace(input.ID); id != "" {
		return id
	}
	if input.Title != "" {
		if id := fileid.NormalizeName(input.Title); id != "" {
			return id
		}
	}
	return uuid.New().String()
}

const (
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// IngestFile extracts and ingests the file at path. The document ID is the
// normalized file name. A file already ingested with the same mtime and size
// is skipped unless force is set; a changed file replaces its old version.
func (idx *Indexer) IngestFile(ctx context.Context, path string, force bool) (*models.IngestResult, error) {
	idx.logger.Debug("indexer ingesting file", zap.String("path", path))
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	docID := fileid.DocumentID(absPath)
	if !force && idx.unchanged(ctx, absPath, docID, info) {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		return &models.IngestResult{ID: docID, Status: StatusUnchanged}, nil
	}
	text, err := idx.extractContent(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}
	return idx.ingest(ctx, &models.DocumentInput{
		ID:         docID,
		Title:      filepath.Base(absPath),
		Content:    text,
		SourcePath: absPath,
		Metadata: map[string]interface{}{
			metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
		},
		Force: true,
	})
}

// IngestBytes ingests an uploaded file. name supplies the extension and the
// document ID.
func (idx *Indexer) IngestBytes(ctx context.Context, name string, content []byte, force bool) (*models.IngestResult, error) {
	ext := strings.ToLower(filepath.Ext(name))
	var text string
	if idx.extractor != nil {
		var err error
		if text, err = idx.extractor.ExtractBytes(content, ext); err != nil {
			return nil, fmt.Errorf("extract content: %w", err)
		}
	} else {
		text = string(content)
	}
	return idx.IngestText(ctx, &models.DocumentInput{
		ID:      fileid.DocumentID(name),
		Title:   filepath.Base(name),
		Content: text,
		Force:   force,
	})
}

// unchanged reports whether the file is already indexed with the same mtime and size.
func (idx *Indexer) unchanged(ctx context.Context, absPath, docID string, info os.FileInfo) bool {
	if !idx.store.HasDocument(docID) {
		return false
	}
	doc, err := idx.storage.GetDocument(ctx, docID)
	if err != nil || doc.SourcePath != absPath {
		return false
	}
	// Values are stored as strings to avoid JSON float64 precision loss (UnixNano exceeds 53 bits).
	return metadataInt64(doc.Metadata, metaKeySourceMtime) == info.ModTime().UnixNano() &&
		metadataInt64(doc.Metadata, metaKeySourceSize) == info.Size()
}

func metadataInt64(m map[string]interface{}, key string) int64 {
	v, ok := m[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// IngestDirectory walks dir recursively and ingests each regular file whose
// extension is in allowedExts (all files when empty). Files without text are
// skipped. It returns the number of files newly ingested and the first error
// encountered.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir string, allowedExts []string, force bool) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !ExtensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		// Resolve symlinks so we only ingest regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		res, ingestErr := idx.IngestFile(ctx, path, force)
		if errors.Is(ingestErr, models.ErrEmptyDocument) {
			idx.logger.Debug("indexer skipping file without text", zap.String("path", path))
			return nil
		}
		if ingestErr != nil {
			return fmt.Errorf("%s: %w", path, ingestErr)
		}
		if res.Status == StatusIngested {
			n++
		}
		return nil
	})
	return n, err
}

func (idx *Indexer) extractContent(path string) (string, error) {
	if idx.extractor != nil {
		return idx.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// ExtensionAllowed reports whether ext is in allowed, ignoring case and the
// leading dot. An empty allowed list accepts everything.
func ExtensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// Reembed re-chunks and re-embeds a catalog document from its stored content.
func (idx *Indexer) Reembed(ctx context.Context, id string) (*models.IngestResult, error) {
	doc, err := idx.storage.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	return idx.IngestText(ctx, &models.DocumentInput{
		ID:         doc.ID,
		Title:      doc.Title,
		Content:    doc.Content,
		SourcePath: doc.SourcePath,
		Metadata:   doc.Metadata,
		Force:      true,
	})
}

// Delete removes a document from the vector store and the catalog.
// It returns ErrDocumentNotFound when neither knows the id.
func (idx *Indexer) Delete(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.remove(ctx, id)
}

func (idx *Indexer) remove(ctx context.Context, id string) error {
	storeErr := idx.store.RemoveDocument(ctx, id)
	if storeErr != nil && !errors.Is(storeErr, models.ErrDocumentNotFound) {
		return fmt.Errorf("failed to delete from vector store: %w", storeErr)
	}
	catalogErr := idx.storage.DeleteDocument(ctx, id)
	if catalogErr != nil && !errors.Is(catalogErr, models.ErrDocumentNotFound) {
		return fmt.Errorf("failed to delete document: %w", catalogErr)
	}
	if storeErr != nil && catalogErr != nil {
		return catalogErr
	}
	idx.logger.Debug("indexer document deleted", zap.String("id", id))
	return nil
}

// Refresh drops the vector store and rebuilds it from the catalog's stored
// chunks. Chunks saved without an embedding are embedded again. It returns
// the number of documents loaded.
func (idx *Indexer) Refresh(ctx context.Context) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.store.Clear(); err != nil {
		return 0, fmt.Errorf("clear vector store: %w", err)
	}
	n := 0
	for offset := 0; ; offset += refreshPageSize {
		docs, err := idx.storage.ListDocuments(ctx, offset, refreshPageSize)
		if err != nil {
			return n, fmt.Errorf("list documents: %w", err)
		}
		for _, doc := range docs {
			loaded, err := idx.reload(ctx, doc.ID)
			if err != nil {
				return n, fmt.Errorf("reload %s: %w", doc.ID, err)
			}
			if loaded {
				n++
			}
		}
		if len(docs) < refreshPageSize {
			break
		}
	}
	idx.logger.Info("vector store rebuilt from catalog", zap.Int("documents", n))
	return n, nil
}

func (idx *Indexer) reload(ctx context.Context, id string) (bool, error) {
	stored, err := idx.storage.GetChunksByDocumentID(ctx, id)
	if err != nil {
		return false, err
	}
	if len(stored) == 0 {
		return false, nil
	}
	chunks := make([]models.Chunk, len(stored))
	vectors := make([][]float32, len(stored))
	var missing []int
	for i, sc := range stored {
		chunks[i] = models.Chunk{Text: sc.Content, DocumentID: id, Ordinal: sc.Ordinal}
		vectors[i] = sc.Embedding
		if len(sc.Embedding) == 0 {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = idx.passagePrefix + chunks[i].Text
		}
		embedded, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return false, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		for j, i := range missing {
			vectors[i] = embedded[j]
		}
	}
	if err := idx.store.Add(ctx, id, chunks, vectors); err != nil {
		return false, err
	}
	return true, nil
}

// SyncStore rebuilds the vector store when the catalog holds documents the
// store does not know, e.g. after the index directory was removed.
func (idx *Indexer) SyncStore(ctx context.Context) error {
	count, err := idx.storage.CountDocuments(ctx)
	if err != nil {
		return err
	}
	if int(count) == idx.store.Stats().Documents {
		return nil
	}
	_, err = idx.Refresh(ctx)
	return err
}
