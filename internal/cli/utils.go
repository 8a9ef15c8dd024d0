// Package cli formats command output for kotae.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// sourcePreviewRunes bounds each source excerpt in text output.
const sourcePreviewRunes = 160

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer and, when sources is set, the chunks it was
// grounded on.
func WriteAnswer(w io.Writer, ans *models.Answer, format OutputFormat, sources bool) error {
	if format == OutputJSON {
		return writeJSON(w, ans)
	}
	fmt.Fprintln(w, ans.Answer)
	if !sources || len(ans.Sources) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\n--- Sources (%d, %dms) ---\n", len(ans.Sources), ans.QueryTime)
	WriteSources(w, ans.Sources)
	return nil
}

// WriteSources lists retrieved chunks, closest first.
func WriteSources(w io.Writer, sources []models.RetrievedChunk) {
	for i, s := range sources {
		fmt.Fprintf(w, "[%d] %s #%d (distance %.4f)\n", i+1, s.DocumentID, s.Ordinal, s.Distance)
		fmt.Fprintf(w, "    %s\n", utils.Truncate(strings.Join(strings.Fields(s.Text), " "), sourcePreviewRunes))
	}
}

// WriteDocuments writes one page of the document catalog.
func WriteDocuments(w io.Writer, list *models.DocumentList, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, list)
	}
	if len(list.Documents) == 0 {
		fmt.Fprintln(w, "No documents.")
		return nil
	}
	fmt.Fprintf(w, "%-32s %7s  %-19s  %s\n", "ID", "CHUNKS", "UPDATED", "TITLE")
	for _, d := range list.Documents {
		fmt.Fprintf(w, "%-32s %7d  %-19s  %s\n",
			utils.Truncate(d.ID, 29), d.ChunkCount, d.UpdatedAt.Local().Format("2006-01-02 15:04:05"), d.Title)
	}
	end := list.Offset + len(list.Documents)
	fmt.Fprintf(w, "\nShowing %d-%d of %d\n", list.Offset+1, end, list.Total)
	return nil
}

// WriteIngestResult writes the outcome of one ingest.
func WriteIngestResult(w io.Writer, res *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "%s: %s (%d chunks)\n", res.ID, res.Status, res.ChunkCount)
	return nil
}

// WriteStatus writes catalog and index sizes followed by the reported config.
func WriteStatus(w io.Writer, st *models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "documents:          %d   # documents in the catalog\n", st.Documents)
	fmt.Fprintf(w, "chunks:             %d   # chunks in the catalog\n", st.Chunks)
	fmt.Fprintf(w, "indexed_documents:  %d   # documents with a vector index\n", st.IndexedDocs)
	fmt.Fprintf(w, "global_rows:        %d   # vectors in the global index\n", st.GlobalRows)
	fmt.Fprintf(w, "dimensions:         %d\n", st.Dimensions)
	if st.DiskUsageBytes > 0 {
		fmt.Fprintf(w, "disk_usage:         %s\n", utils.FormatBytes(st.DiskUsageBytes))
	}
	if len(st.Config) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# configuration")
	keys := make([]string, 0, len(st.Config))
	for k := range st.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-19s %v\n", k+":", st.Config[k])
	}
	return nil
}
