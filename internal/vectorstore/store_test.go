package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func chunks(doc string, texts ...string) []models.Chunk {
	out := make([]models.Chunk, len(texts))
	for i, t := range texts {
		out[i] = models.Chunk{Text: t, DocumentID: doc, Ordinal: i}
	}
	return out
}

func assertAligned(t *testing.T, s *Store) {
	t.Helper()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.global != nil && len(s.global.records) != s.global.index.Rows() {
		t.Errorf("global: %d records, %d rows", len(s.global.records), s.global.index.Rows())
	}
	for id, e := range s.docs {
		if len(e.records) != e.index.Rows() {
			t.Errorf("%s: %d records, %d rows", id, len(e.records), e.index.Rows())
		}
	}
}

func TestStore_AddSearch(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	if err := s.Add(ctx, "a", chunks("a", "a0", "a1"), [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(ctx, "b", chunks("b", "b0"), [][]float32{{0.9, 0.1}}); err != nil {
		t.Fatal(err)
	}
	assertAligned(t, s)

	got, err := s.Search(ctx, []float32{1, 0}, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Text != "a0" || got[1].Text != "b0" {
		t.Errorf("global search: %+v", got)
	}

	scoped, _ := s.Search(ctx, []float32{1, 0}, 5, "b")
	if len(scoped) != 1 || scoped[0].DocumentID != "b" {
		t.Errorf("scoped search: %+v", scoped)
	}

	// Unknown scope falls back to global filtered by document.
	none, _ := s.Search(ctx, []float32{1, 0}, 5, "zzz")
	if len(none) != 0 {
		t.Errorf("expected no hits for unknown document, got %+v", none)
	}
	if !reflect.DeepEqual(s.Documents(), []string{"a", "b"}) {
		t.Errorf("Documents = %v", s.Documents())
	}
}

func TestStore_EmptySearch(t *testing.T) {
	s := New("")
	got, err := s.Search(context.Background(), []float32{1}, 3, "")
	if err != nil || len(got) != 0 {
		t.Errorf("empty store: %v %v", got, err)
	}
}

func TestStore_DimensionMismatchNoMutation(t *testing.T) {
	ctx := context.Background()
	s := New("")
	_ = s.Add(ctx, "a", chunks("a", "x"), [][]float32{{1, 0, 0}})
	err := s.Add(ctx, "b", chunks("b", "y", "z"), [][]float32{{1, 0}, {0, 1}})
	if !errors.Is(err, models.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if s.HasDocument("b") {
		t.Error("b must not be added")
	}
	if st := s.Stats(); st.GlobalRows != 1 || st.Documents != 1 {
		t.Errorf("stats after failed add: %+v", st)
	}
	assertAligned(t, s)
}

func TestStore_RemoveRebuildsGlobal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(dir)
	_ = s.Add(ctx, "a", chunks("a", "a0"), [][]float32{{1, 0}})
	_ = s.Add(ctx, "b", chunks("b", "b0", "b1"), [][]float32{{0, 1}, {0.5, 0.5}})
	_ = s.Add(ctx, "c", chunks("c", "c0"), [][]float32{{0.7, 0.3}})

	if err := s.RemoveDocument(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	assertAligned(t, s)

	fresh := New("")
	_ = fresh.Add(ctx, "a", chunks("a", "a0"), [][]float32{{1, 0}})
	_ = fresh.Add(ctx, "c", chunks("c", "c0"), [][]float32{{0.7, 0.3}})

	q := []float32{0.6, 0.4}
	got, _ := s.Search(ctx, q, 10, "")
	want, _ := fresh.Search(ctx, q, 10, "")
	if !reflect.DeepEqual(got, want) {
		t.Errorf("rebuilt index differs from fresh build:\n got %+v\nwant %+v", got, want)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.index")); !os.IsNotExist(err) {
		t.Error("b.index should be deleted")
	}

	if err := s.RemoveDocument(ctx, "missing"); !errors.Is(err, models.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestStore_RemoveLastDeletesGlobal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(dir)
	_ = s.Add(ctx, "only", chunks("only", "x"), [][]float32{{1}})
	if _, err := os.Stat(filepath.Join(dir, "all.index")); err != nil {
		t.Fatalf("all.index not written: %v", err)
	}
	if err := s.RemoveDocument(ctx, "only"); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"all.index", "all.records", "only.index", "only.records"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s should not exist", name)
		}
	}
	if got, _ := s.Search(ctx, []float32{1}, 1, ""); len(got) != 0 {
		t.Errorf("expected empty search, got %v", got)
	}
}

func TestStore_PersistLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(dir)
	_ = s.Add(ctx, "all", chunks("all", "reserved name"), [][]float32{{0, 1}})
	_ = s.Add(ctx, "quy-che", chunks("quy-che", "Điều 1", "Điều 2"), [][]float32{{1, 0}, {0.8, 0.2}})

	loaded := New(dir)
	if err := loaded.Load(); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(loaded.Documents(), []string{"all", "quy-che"}) {
		t.Errorf("Documents = %v", loaded.Documents())
	}
	assertAligned(t, loaded)
	got, _ := loaded.Search(ctx, []float32{1, 0}, 1, "quy-che")
	if len(got) != 1 || got[0].Text != "Điều 1" || got[0].Ordinal != 0 {
		t.Errorf("search after load: %+v", got)
	}
	if st := loaded.Stats(); st.GlobalRows != 3 || st.Dimensions != 2 {
		t.Errorf("stats = %+v", st)
	}

	if err := New(t.TempDir()).Load(); err != nil {
		t.Errorf("loading an empty dir should not fail: %v", err)
	}
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(dir)
	_ = s.Add(ctx, "a", chunks("a", "x"), [][]float32{{1}})
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if s.HasDocument("a") || s.Stats().GlobalRows != 0 {
		t.Error("store should be empty")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("dir not empty: %v", entries)
	}
}

func TestStore_FailedWriteLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()

	// A regular file where the index directory should be makes every write fail.
	blocked := filepath.Join(t.TempDir(), "indices")
	if err := os.WriteFile(blocked, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	s := New(blocked)
	if err := s.Add(ctx, "a", chunks("a", "a0"), [][]float32{{1, 0}}); err == nil {
		t.Fatal("expected write error")
	}
	if s.HasDocument("a") {
		t.Error("a must not be indexed after a failed write")
	}
	if st := s.Stats(); st.Documents != 0 || st.GlobalRows != 0 {
		t.Errorf("stats = %+v", st)
	}
	if got, _ := s.Search(ctx, []float32{1, 0}, 1, ""); len(got) != 0 {
		t.Errorf("search = %+v", got)
	}

	dir := filepath.Join(t.TempDir(), "indices")
	s = New(dir)
	if err := s.Add(ctx, "a", chunks("a", "old"), [][]float32{{1, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := s.Replace(ctx, "a", chunks("a", "new"), [][]float32{{0, 1}}); err == nil {
		t.Fatal("expected write error")
	}
	got, _ := s.Search(ctx, []float32{1, 0}, 5, "")
	if len(got) != 1 || got[0].Text != "old" {
		t.Errorf("previous version should stay searchable: %+v", got)
	}
	assertAligned(t, s)
}

func TestStore_Replace(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	_ = s.Add(ctx, "a", chunks("a", "a0"), [][]float32{{1, 0}})
	_ = s.Add(ctx, "b", chunks("b", "b0"), [][]float32{{0, 1}})

	if err := s.Add(ctx, "a", chunks("a", "a1"), [][]float32{{0.5, 0.5}}); !errors.Is(err, models.ErrAlreadyIngested) {
		t.Fatalf("expected ErrAlreadyIngested, got %v", err)
	}
	if err := s.Replace(ctx, "a", chunks("a", "a1", "a2"), [][]float32{{0.9, 0.1}, {0.8, 0.2}}); err != nil {
		t.Fatal(err)
	}
	assertAligned(t, s)
	if !reflect.DeepEqual(s.Documents(), []string{"b", "a"}) {
		t.Errorf("Documents = %v", s.Documents())
	}

	// Global rows follow ingestion order, so a later rebuild reproduces them.
	s.mu.RLock()
	var texts []string
	for _, r := range s.global.records {
		texts = append(texts, r.Text)
	}
	s.mu.RUnlock()
	if !reflect.DeepEqual(texts, []string{"b0", "a1", "a2"}) {
		t.Errorf("global records = %v", texts)
	}

	if err := s.Replace(ctx, "a", chunks("a", "x"), [][]float32{{1, 0, 0}}); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if got, _ := s.Search(ctx, []float32{1, 0}, 1, "a"); len(got) != 1 || got[0].Text != "a1" {
		t.Errorf("search after rejected replace: %+v", got)
	}

	// The only document may change dimensions.
	single := New("")
	_ = single.Add(ctx, "a", chunks("a", "x"), [][]float32{{1, 0}})
	if err := single.Replace(ctx, "a", chunks("a", "y"), [][]float32{{1, 0, 0}}); err != nil {
		t.Fatal(err)
	}
	if st := single.Stats(); st.Dimensions != 3 || st.GlobalRows != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestStore_ConcurrentSearchDuringWrites(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())
	const docs = 20

	// Document i holds one vector {i, 0}, so the distance of every hit tells
	// which row it came from and whether its record matches.
	position := func(id string) float32 {
		var i int
		_, _ = fmt.Sscanf(id, "d%d", &i)
		return float32(i)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				q := []float32{float32(r * 5), 0}
				hits, err := s.Search(ctx, q, 3, "")
				if err != nil {
					t.Errorf("search: %v", err)
					return
				}
				for _, h := range hits {
					want := q[0] - position(h.DocumentID)
					if want < 0 {
						want = -want
					}
					if h.Distance != want || h.Text != h.DocumentID+"-0" {
						t.Errorf("hit %+v does not match its row", h)
						return
					}
				}
				s.mu.RLock()
				if s.global != nil && len(s.global.records) != s.global.index.Rows() {
					t.Errorf("global: %d records, %d rows", len(s.global.records), s.global.index.Rows())
				}
				s.mu.RUnlock()
			}
		}(r)
	}

	for i := 0; i < docs; i++ {
		id := fmt.Sprintf("d%d", i)
		if err := s.Add(ctx, id, chunks(id, id+"-0"), [][]float32{{float32(i), 0}}); err != nil {
			t.Error(err)
		}
		if i%3 == 2 {
			victim := fmt.Sprintf("d%d", i-1)
			if err := s.RemoveDocument(ctx, victim); err != nil {
				t.Error(err)
			}
		}
	}
	close(stop)
	wg.Wait()
	assertAligned(t, s)
}
