package rag

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/gate"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/prompt"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/tokenizer"
	"github.com/hyperjump/kotae/internal/vectorstore"
)

const policyDoc = "Giờ làm việc bắt đầu lúc tám giờ sáng. " +
	"Nhân viên được nghỉ phép mười hai ngày mỗi năm. " +
	"Công ty cấp máy tính xách tay cho kỹ sư."

// countingEmbedder counts Embed calls.
type countingEmbedder struct {
	embedding.Embedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.Embedder.Embed(ctx, text)
}

type env struct {
	store     *vectorstore.Store
	embedder  *countingEmbedder
	retriever *Retriever
}

func newEnv(t *testing.T, opts ...RetrieverOption) *env {
	t.Helper()
	store := vectorstore.New("")
	t.Cleanup(func() { _ = store.Close() })
	emb := &countingEmbedder{Embedder: embedding.NewMockEmbedder(256)}
	return &env{
		store:     store,
		embedder:  emb,
		retriever: NewRetriever(store, emb, tokenizer.NewWordTokenizer(), opts...),
	}
}

// ingest chunks text one sentence per chunk and adds it under id.
func (e *env) ingest(t *testing.T, id, text string) []models.Chunk {
	t.Helper()
	chunker := indexer.NewChunker(tokenizer.NewWordTokenizer(), 12, 0)
	chunks, err := chunker.ChunkDocument(id, text)
	if err != nil {
		t.Fatal(err)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := e.embedder.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.store.Add(context.Background(), id, chunks, vectors); err != nil {
		t.Fatal(err)
	}
	return chunks
}

func TestRetrieve_TopOneMatchesSharedWords(t *testing.T) {
	e := newEnv(t)
	chunks := e.ingest(t, "noi_quy", policyDoc)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	got, err := e.retriever.Retrieve(context.Background(), "nghỉ phép bao nhiêu ngày?", 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != chunks[1].Text {
		t.Fatalf("got %+v, want chunk %q", got, chunks[1].Text)
	}
	if got[0].DocumentID != "noi_quy" || got[0].Ordinal != 1 {
		t.Errorf("metadata = %+v", got[0])
	}
}

func TestRetrieve_SortedAndBounded(t *testing.T) {
	e := newEnv(t)
	e.ingest(t, "noi_quy", policyDoc)
	got, err := e.retriever.Retrieve(context.Background(), "giờ làm việc", 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Distance < got[i-1].Distance {
			t.Errorf("results not ascending: %+v", got)
		}
	}
}

func TestRetrieve_DeletedDocumentNeverReturned(t *testing.T) {
	e := newEnv(t)
	e.ingest(t, "A", "Quy định về bảo mật mật khẩu. Mật khẩu phải đổi mỗi quý.")
	e.ingest(t, "B", "Quy định về giờ làm việc. Giờ làm việc từ tám giờ.")
	if err := e.store.RemoveDocument(context.Background(), "A"); err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{"mật khẩu", "bảo mật", "quy định", "giờ làm việc"} {
		got, err := e.retriever.Retrieve(context.Background(), q, 5, "")
		if err != nil {
			t.Fatal(err)
		}
		for _, c := range got {
			if c.DocumentID == "A" {
				t.Errorf("query %q returned deleted chunk %+v", q, c)
			}
		}
	}
	if got, _ := e.retriever.Retrieve(context.Background(), "mật khẩu", 5, "A"); len(got) != 0 {
		t.Errorf("scoped search on deleted doc returned %+v", got)
	}
}

func TestRetrieve_Scope(t *testing.T) {
	e := newEnv(t)
	e.ingest(t, "A", "Quy định về bảo mật mật khẩu.")
	e.ingest(t, "B", "Quy định về giờ làm việc.")
	got, err := e.retriever.Retrieve(context.Background(), "bảo mật mật khẩu", 5, "B")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].DocumentID != "B" {
		t.Errorf("scoped results = %+v", got)
	}
}

func TestRetrieve_EmptyStoreSkipsEmbedding(t *testing.T) {
	e := newEnv(t)
	got, err := e.retriever.Retrieve(context.Background(), "bất kỳ", 3, "")
	if err != nil || len(got) != 0 {
		t.Errorf("got %+v, %v", got, err)
	}
	if e.embedder.calls != 0 {
		t.Errorf("embedder called %d times", e.embedder.calls)
	}
	if got, _ := e.retriever.Retrieve(context.Background(), "@#$", 3, ""); len(got) != 0 {
		t.Errorf("blank sanitized query returned %+v", got)
	}
}

func TestRetrieve_SanitizesAndTruncates(t *testing.T) {
	e := newEnv(t, WithMaxTokensPerChunk(4), WithQueryPrefix("query: "))
	chunk := models.Chunk{Text: "Câu hỏi: bỏ dòng này\nNội dung!!!! chính thức của tài liệu nội bộ", DocumentID: "d"}
	vec, _ := e.embedder.Embed(context.Background(), chunk.Text)
	if err := e.store.Add(context.Background(), "d", []models.Chunk{chunk}, [][]float32{vec}); err != nil {
		t.Fatal(err)
	}
	got, err := e.retriever.Retrieve(context.Background(), "nội dung chính thức", 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "Nội dung! chính thức" {
		t.Errorf("got %+v", got)
	}
}

type pipelineEnv struct {
	*env
	gen     *llm.FakeGenerator
	catalog storage.Storage
	p       *Pipeline
}

func newPipelineEnv(t *testing.T, answer ...string) *pipelineEnv {
	t.Helper()
	e := newEnv(t)
	catalog, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = catalog.Close() })
	gen := llm.NewFakeGenerator(answer...)
	p := NewPipeline(e.retriever, gate.New(), prompt.NewBuilder(prompt.Vietnamese, "", 0), NewSupervisor(gen),
		WithHistory(catalog))
	return &pipelineEnv{env: e, gen: gen, catalog: catalog, p: p}
}

func TestAnswer_RefusesOnEmptyContextWithoutGenerating(t *testing.T) {
	pe := newPipelineEnv(t, "không được gọi")
	ans, err := pe.p.Answer(context.Background(), &models.AskRequest{Query: "nghỉ phép bao nhiêu ngày?"})
	if err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "Tôi không có thông tin về câu hỏi này." || !ans.Refused {
		t.Errorf("answer = %+v", ans)
	}
	if pe.gen.Calls() != 0 {
		t.Errorf("generator called %d times", pe.gen.Calls())
	}
	if ans.SessionID == "" {
		t.Error("session id should be generated")
	}
}

func TestAnswer_RefusesIrrelevantContext(t *testing.T) {
	pe := newPipelineEnv(t, "không được gọi")
	pe.ingest(t, "noi_quy", policyDoc)
	ans, err := pe.p.Answer(context.Background(), &models.AskRequest{Query: "thời tiết Hà Nội"})
	if err != nil {
		t.Fatal(err)
	}
	if !ans.Refused || pe.gen.Calls() != 0 {
		t.Errorf("answer = %+v, calls = %d", ans, pe.gen.Calls())
	}
}

func TestAnswer_GroundedAnswerRecorded(t *testing.T) {
	pe := newPipelineEnv(t, "Nhân viên được nghỉ phép", " mười hai ngày mỗi năm. ", "Nhân viên được nghỉ phép mười hai ngày mỗi năm.")
	pe.ingest(t, "noi_quy", policyDoc)
	ctx := context.Background()
	ans, err := pe.p.Answer(ctx, &models.AskRequest{Query: "Nhân viên được nghỉ phép bao nhiêu ngày?", SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if ans.Refused || ans.Answer != "Nhân viên được nghỉ phép mười hai ngày mỗi năm." {
		t.Errorf("answer = %+v", ans)
	}
	if len(ans.Sources) == 0 || ans.SessionID != "s1" {
		t.Errorf("answer = %+v", ans)
	}
	chats, err := pe.catalog.ListChats(ctx, "s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0].Answer != ans.Answer {
		t.Errorf("chats = %+v", chats)
	}
}

func TestAnswer_HallucinationRefused(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{"novel words", "Trời hôm nay rất đẹp và nắng vàng rực rỡ trên phố."},
		{"hedge", "Có lẽ nhân viên được nghỉ phép mười hai ngày."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := newPipelineEnv(t, tt.answer)
			pe.ingest(t, "noi_quy", policyDoc)
			ans, err := pe.p.Answer(context.Background(), &models.AskRequest{Query: "nghỉ phép bao nhiêu ngày"})
			if err != nil {
				t.Fatal(err)
			}
			if !ans.Refused || ans.Answer != pe.p.Refusal() {
				t.Errorf("answer = %+v", ans)
			}
			if pe.gen.Calls() != 1 {
				t.Errorf("calls = %d", pe.gen.Calls())
			}
		})
	}
}

func TestAnswer_EmptyQuery(t *testing.T) {
	pe := newPipelineEnv(t)
	if _, err := pe.p.Answer(context.Background(), &models.AskRequest{Query: "  "}); !errors.Is(err, models.ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestAnswerStream(t *testing.T) {
	pe := newPipelineEnv(t, "Nhân viên ", "được nghỉ ", "phép mười hai ngày.")
	pe.ingest(t, "noi_quy", policyDoc)
	var b strings.Builder
	ans, err := pe.p.AnswerStream(context.Background(), &models.AskRequest{Query: "nghỉ phép"}, func(d string) error {
		b.WriteString(d)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if b.String() != "Nhân viên được nghỉ phép mười hai ngày." || ans.Answer != b.String() {
		t.Errorf("streamed %q, answer %+v", b.String(), ans)
	}
}

func TestAnswerStream_EmptyStoreEmitsRefusal(t *testing.T) {
	pe := newPipelineEnv(t, "không được gọi")
	var got []string
	ans, err := pe.p.AnswerStream(context.Background(), &models.AskRequest{Query: "bất kỳ"}, func(d string) error {
		got = append(got, d)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != pe.p.Refusal() || !ans.Refused || pe.gen.Calls() != 0 {
		t.Errorf("got %q, answer %+v, calls %d", got, ans, pe.gen.Calls())
	}
}

func TestDedupeSentences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"duplicates", "Giờ làm việc là 8 giờ. giờ làm việc là 8 giờ. Nghỉ trưa 1 giờ", "Giờ làm việc là 8 giờ. Nghỉ trưa 1 giờ."},
		{"question echo sentence", "Câu hỏi: mấy giờ. Tám giờ sáng.", "Tám giờ sáng."},
		{"keeps question mark", "Đúng vậy?", "Đúng vậy?"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DedupeSentences(tt.in, "Câu hỏi:"); got != tt.want {
				t.Errorf("DedupeSentences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
