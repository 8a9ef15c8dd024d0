package models

// Answer is the result of a non-streaming question.
type Answer struct {
	Answer    string           `json:"answer"`
	SessionID string           `json:"session_id"`
	Refused   bool             `json:"refused"`
	Sources   []RetrievedChunk `json:"sources,omitempty"`
	QueryTime int64            `json:"query_time_ms"`
}

// IngestResult reports the outcome of ingesting one document.
type IngestResult struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
}

// Status summarizes catalog and index sizes.
type Status struct {
	Documents      int64                  `json:"documents"`
	Chunks         int64                  `json:"chunks"`
	IndexedDocs    int                    `json:"indexed_documents"`
	GlobalRows     int                    `json:"global_rows"`
	Dimensions     int                    `json:"dimensions"`
	DiskUsageBytes int64                  `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

// DocumentList is one page of the document catalog.
type DocumentList struct {
	Documents []*Document `json:"documents"`
	Total     int64       `json:"total"`
	Offset    int         `json:"offset"`
	Limit     int         `json:"limit"`
}

// Streaming answers are sent as server-sent events. The session id travels in
// SessionHeader and the stream ends with a DoneMarker data payload.
const (
	SessionHeader = "X-Session-ID"
	DoneMarker    = "[DONE]"
)
