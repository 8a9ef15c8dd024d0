package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": OutputText, "text": OutputText, "JSON": OutputJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("expected error for yaml")
	}
}

func sampleAnswer() *models.Answer {
	return &models.Answer{
		Answer:    "Nhân viên được nghỉ phép mười hai ngày mỗi năm.",
		SessionID: "s-1",
		QueryTime: 12,
		Sources: []models.RetrievedChunk{
			{Text: "Nhân viên được nghỉ phép\nmười hai ngày mỗi năm.", DocumentID: "noi_quy", Ordinal: 1, Distance: 0.25},
		},
	}
}

func TestWriteAnswer_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, sampleAnswer(), OutputText, true); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "Nhân viên được nghỉ phép mười hai ngày mỗi năm.\n") {
		t.Errorf("answer line missing: %q", out)
	}
	if !strings.Contains(out, "[1] noi_quy #1 (distance 0.2500)") {
		t.Errorf("source line missing: %q", out)
	}
	if !strings.Contains(out, "    Nhân viên được nghỉ phép mười hai ngày mỗi năm.") {
		t.Errorf("source text should be on one line: %q", out)
	}

	buf.Reset()
	_ = WriteAnswer(&buf, sampleAnswer(), OutputText, false)
	if strings.Contains(buf.String(), "Sources") {
		t.Errorf("sources printed without flag: %q", buf.String())
	}
}

func TestWriteAnswer_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, sampleAnswer(), OutputJSON, false); err != nil {
		t.Fatal(err)
	}
	var decoded models.Answer
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.SessionID != "s-1" || len(decoded.Sources) != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteDocuments(t *testing.T) {
	list := &models.DocumentList{
		Documents: []*models.Document{
			{ID: "noi_quy", Title: "Nội quy", ChunkCount: 3, UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		},
		Total: 4, Offset: 2, Limit: 1,
	}
	var buf bytes.Buffer
	if err := WriteDocuments(&buf, list, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "noi_quy") || !strings.Contains(buf.String(), "Showing 3-3 of 4") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	_ = WriteDocuments(&buf, &models.DocumentList{}, OutputText)
	if buf.String() != "No documents.\n" {
		t.Errorf("empty = %q", buf.String())
	}
}

func TestWriteStatus(t *testing.T) {
	st := &models.Status{
		Documents: 2, Chunks: 9, IndexedDocs: 2, GlobalRows: 9, Dimensions: 384,
		DiskUsageBytes: 2048,
		Config:         map[string]interface{}{"top_k": 3, "chunk_size": 512},
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"global_rows:        9", "disk_usage:         2.0 KiB", "# configuration"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
	if strings.Index(out, "chunk_size:") > strings.Index(out, "top_k:") {
		t.Errorf("config keys not sorted: %q", out)
	}
}

func TestWriteIngestResult(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteIngestResult(&buf, &models.IngestResult{ID: "a", Status: "ingested", ChunkCount: 2}, OutputText)
	if buf.String() != "a: ingested (2 chunks)\n" {
		t.Errorf("got %q", buf.String())
	}
}
