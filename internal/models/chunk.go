package models

// Chunk is a retrieval-sized span of document text. Ordinal is its position
// within the owning document.
type Chunk struct {
	Text       string
	DocumentID string
	Ordinal    int
}

// RetrievedChunk is a single retrieval hit, nearest first in a result slice.
type RetrievedChunk struct {
	Text       string  `json:"text"`
	Distance   float32 `json:"distance"`
	DocumentID string  `json:"document_id"`
	Ordinal    int     `json:"ordinal"`
}
