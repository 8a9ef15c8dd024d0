package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

const (
	indexExt   = ".index"
	recordsExt = ".records"
	globalName = "all"
)

type entry struct {
	index   Index
	records []Record
}

func (e *entry) close() {
	if e != nil && e.index != nil {
		_ = e.index.Close()
	}
}

// Stats summarizes the store contents.
type Stats struct {
	Documents  int `json:"documents"`
	GlobalRows int `json:"global_rows"`
	Dimensions int `json:"dimensions"`
}

// Store holds the global index and one index per document. Every index row
// has exactly one Record at the same position.
type Store struct {
	dir    string
	kind   Kind
	logger *zap.Logger

	mu     sync.RWMutex
	global *entry
	docs   map[string]*entry
	order  []string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithKind selects the index backend.
func WithKind(k Kind) Option {
	return func(s *Store) { s.kind = k }
}

// New creates a store persisting under dir. An empty dir keeps everything in memory.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		kind:   KindFlat,
		logger: zap.NewNop(),
		docs:   make(map[string]*entry),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Add indexes a new document in its own index and at the end of the global
// index. A document that is already indexed is rejected with
// ErrAlreadyIngested; Replace swaps its contents instead.
func (s *Store) Add(ctx context.Context, documentID string, chunks []models.Chunk, vectors [][]float32) error {
	return s.put(ctx, documentID, chunks, vectors, false)
}

// Replace indexes a document, dropping any previous version of it. The
// document moves to the end of the ingestion order. If anything fails the
// previous version stays in place.
func (s *Store) Replace(ctx context.Context, documentID string, chunks []models.Chunk, vectors [][]float32) error {
	return s.put(ctx, documentID, chunks, vectors, true)
}

// put builds the new document entry and global entry aside, persists them,
// and only then swaps them in, so a failure leaves memory and disk as they were.
func (s *Store) put(ctx context.Context, documentID string, chunks []models.Chunk, vectors [][]float32, replace bool) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dim := len(vectors[0])
	if err := checkDimensions(vectors, dim); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.docs[documentID]
	if exists && !replace {
		return fmt.Errorf("%w: %s", models.ErrAlreadyIngested, documentID)
	}
	remaining := s.orderWithout(documentID)
	for _, id := range remaining {
		if d := s.docs[id].index.Dimensions(); d != dim {
			return fmt.Errorf("%w: got %d, store has %d", models.ErrDimensionMismatch, dim, d)
		}
	}

	records := make([]Record, len(chunks))
	for i, c := range chunks {
		records[i] = Record{DocumentID: documentID, Ordinal: c.Ordinal, Text: c.Text}
	}

	docIdx, err := NewIndex(s.kind, dim)
	if err != nil {
		return err
	}
	doc := &entry{index: docIdx}
	if err := appendRows(doc, vectors, records); err != nil {
		doc.close()
		return err
	}

	var global *entry
	if exists {
		global, err = s.rebuild(ctx, dim, remaining)
	} else {
		global, err = s.cloneEntry(s.global, dim)
	}
	if err == nil {
		err = appendRows(global, vectors, records)
	}
	if err != nil {
		doc.close()
		global.close()
		return err
	}

	if err := s.persist(s.docPath(documentID), doc); err != nil {
		doc.close()
		global.close()
		return err
	}
	if err := s.persist(s.globalPath(), global); err != nil {
		s.restoreDocFiles(documentID, old)
		doc.close()
		global.close()
		return err
	}

	s.global.close()
	s.global = global
	old.close()
	s.docs[documentID] = doc
	s.order = append(remaining, documentID)
	s.logger.Debug("Added vectors",
		zap.String("document_id", documentID),
		zap.Bool("replaced", exists),
		zap.Int("rows", len(chunks)),
		zap.Int("global_rows", global.index.Rows()))
	return nil
}

// restoreDocFiles puts the document's files back after a failed write: the
// previous version when there was one, nothing otherwise.
func (s *Store) restoreDocFiles(documentID string, old *entry) {
	var err error
	if old != nil {
		err = s.persist(s.docPath(documentID), old)
	} else {
		err = s.removeFiles(s.docPath(documentID))
	}
	if err != nil {
		s.logger.Warn("Failed to restore document index files", zap.String("document_id", documentID), zap.Error(err))
	}
}

// RemoveDocument drops a document and rebuilds the global index from the
// remaining documents in ingestion order.
func (s *Store) RemoveDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[documentID]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, documentID)
	}

	remaining := s.orderWithout(documentID)
	var rebuilt *entry
	if len(remaining) > 0 {
		var err error
		rebuilt, err = s.rebuild(ctx, doc.index.Dimensions(), remaining)
		if err != nil {
			return fmt.Errorf("rebuild global index: %w", err)
		}
		if err := s.persist(s.globalPath(), rebuilt); err != nil {
			rebuilt.close()
			return err
		}
	} else if err := s.removeFiles(s.globalPath()); err != nil {
		return err
	}

	if err := s.removeFiles(s.docPath(documentID)); err != nil {
		s.logger.Warn("Failed to remove document index files", zap.String("document_id", documentID), zap.Error(err))
	}
	s.global.close()
	s.global = rebuilt
	doc.close()
	delete(s.docs, documentID)
	s.order = remaining
	s.logger.Info("Removed document from vector store",
		zap.String("document_id", documentID),
		zap.Int("remaining_documents", len(remaining)))
	return nil
}

func (s *Store) orderWithout(documentID string) []string {
	out := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if id != documentID {
			out = append(out, id)
		}
	}
	return out
}

// rebuild creates a global entry holding the given documents in order.
func (s *Store) rebuild(ctx context.Context, dim int, ids []string) (*entry, error) {
	idx, err := NewIndex(s.kind, dim)
	if err != nil {
		return nil, err
	}
	e := &entry{index: idx}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			e.close()
			return nil, err
		}
		if err := appendEntry(e, s.docs[id]); err != nil {
			e.close()
			return nil, err
		}
	}
	return e, nil
}

// cloner is implemented by indices that can copy themselves without
// re-adding every row.
type cloner interface {
	Clone() Index
}

// cloneEntry copies e so rows can be added without touching e. A nil e gives
// an empty entry.
func (s *Store) cloneEntry(e *entry, dim int) (*entry, error) {
	if e == nil {
		idx, err := NewIndex(s.kind, dim)
		if err != nil {
			return nil, err
		}
		return &entry{index: idx}, nil
	}
	if c, ok := e.index.(cloner); ok {
		records := make([]Record, len(e.records))
		copy(records, e.records)
		return &entry{index: c.Clone(), records: records}, nil
	}
	idx, err := NewIndex(s.kind, dim)
	if err != nil {
		return nil, err
	}
	staged := &entry{index: idx}
	if err := appendEntry(staged, e); err != nil {
		staged.close()
		return nil, err
	}
	return staged, nil
}

func appendRows(e *entry, vectors [][]float32, records []Record) error {
	if err := e.index.Add(vectors); err != nil {
		return err
	}
	e.records = append(e.records, records...)
	return nil
}

func appendEntry(dst, src *entry) error {
	vectors := make([][]float32, src.index.Rows())
	for row := range vectors {
		v, err := src.index.Vector(row)
		if err != nil {
			return err
		}
		vectors[row] = v
	}
	if err := dst.index.Add(vectors); err != nil {
		return err
	}
	dst.records = append(dst.records, src.records...)
	return nil
}

// HasDocument reports whether a document index exists.
func (s *Store) HasDocument(documentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[documentID]
	return ok
}

// Documents returns document IDs in ingestion order.
func (s *Store) Documents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Stats returns counts for status reporting.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Documents: len(s.docs)}
	if s.global != nil {
		st.GlobalRows = s.global.index.Rows()
		st.Dimensions = s.global.index.Dimensions()
	}
	return st
}

// Search returns the k nearest chunks. A non-empty scope searches that
// document's own index when it exists; otherwise the global index is searched
// and rows from other documents are skipped.
func (s *Store) Search(ctx context.Context, query []float32, k int, scope string) ([]models.RetrievedChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 {
		return nil, nil
	}
	if doc, ok := s.docs[scope]; ok && scope != "" {
		return searchEntry(doc, query, k, "")
	}
	if s.global == nil {
		return nil, nil
	}
	return searchEntry(s.global, query, k, scope)
}

func searchEntry(e *entry, query []float32, k int, filter string) ([]models.RetrievedChunk, error) {
	n := k
	if filter != "" {
		n = e.index.Rows()
	}
	hits, err := e.index.Search(query, n)
	if err != nil {
		return nil, err
	}
	out := make([]models.RetrievedChunk, 0, k)
	for _, h := range hits {
		if h.Row >= len(e.records) {
			continue
		}
		rec := e.records[h.Row]
		if filter != "" && rec.DocumentID != filter {
			continue
		}
		out = append(out, models.RetrievedChunk{
			Text:       rec.Text,
			Distance:   h.Distance,
			DocumentID: rec.DocumentID,
			Ordinal:    rec.Ordinal,
		})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Clear drops every index, in memory and on disk.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if err := s.removeFiles(s.docPath(id)); err != nil {
			return err
		}
		s.docs[id].close()
	}
	if err := s.removeFiles(s.globalPath()); err != nil {
		return err
	}
	s.global.close()
	s.global = nil
	s.docs = make(map[string]*entry)
	s.order = nil
	return nil
}

// Close releases index resources.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.docs {
		e.close()
	}
	s.global.close()
	s.docs = make(map[string]*entry)
	s.global = nil
	s.order = nil
	return nil
}

// Load reads persisted indices from the store directory. Document order is
// taken from the global records. Missing files leave the store empty.
func (s *Store) Load() error {
	if s.dir == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	global, err := s.loadEntry(s.globalPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	docs := make(map[string]*entry)
	var order []string
	for _, rec := range global.records {
		if _, seen := docs[rec.DocumentID]; seen {
			continue
		}
		doc, err := s.loadEntry(s.docPath(rec.DocumentID))
		if err != nil {
			global.close()
			for _, d := range docs {
				d.close()
			}
			return fmt.Errorf("load document %s: %w", rec.DocumentID, err)
		}
		docs[rec.DocumentID] = doc
		order = append(order, rec.DocumentID)
	}
	s.global = global
	s.docs = docs
	s.order = order
	s.logger.Info("Loaded vector store",
		zap.String("dir", s.dir),
		zap.Int("documents", len(order)),
		zap.Int("global_rows", global.index.Rows()))
	return nil
}

func (s *Store) loadEntry(base string) (*entry, error) {
	if _, err := os.Stat(base + indexExt); err != nil {
		return nil, err
	}
	idx, err := LoadIndex(s.kind, base+indexExt)
	if err != nil {
		return nil, err
	}
	records, err := loadRecords(base + recordsExt)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	if len(records) != idx.Rows() {
		_ = idx.Close()
		return nil, fmt.Errorf("%s: %d records for %d index rows", filepath.Base(base), len(records), idx.Rows())
	}
	return &entry{index: idx, records: records}, nil
}

// persist writes both files of an entry to temporary names and renames them into place.
func (s *Store) persist(base string, e *entry) error {
	if s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := e.index.Save(base + indexExt + ".tmp"); err != nil {
		return err
	}
	if err := saveRecords(base+recordsExt+".tmp", e.records); err != nil {
		_ = os.Remove(base + indexExt + ".tmp")
		return err
	}
	if err := os.Rename(base+indexExt+".tmp", base+indexExt); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	if err := os.Rename(base+recordsExt+".tmp", base+recordsExt); err != nil {
		return fmt.Errorf("replace records: %w", err)
	}
	return nil
}

func (s *Store) removeFiles(base string) error {
	if s.dir == "" {
		return nil
	}
	for _, p := range []string{base + indexExt, base + recordsExt} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *Store) globalPath() string {
	return filepath.Join(s.dir, globalName)
}

// docPath maps a document ID to a file base name. "all" is reserved for the
// global index, so a document with that name is stored with a leading underscore.
func (s *Store) docPath(documentID string) string {
	file := url.PathEscape(documentID)
	if strings.EqualFold(file, globalName) {
		file = "_" + file
	}
	return filepath.Join(s.dir, file)
}
