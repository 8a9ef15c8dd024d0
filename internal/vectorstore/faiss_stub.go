//go:build !faiss || !cgo

package vectorstore

import "errors"

var errNoFAISS = errors.New("FAISS not available: build with -tags=faiss and install the FAISS C library")

// FAISSIndex is a placeholder when FAISS support is not compiled in.
type FAISSIndex struct {
	Index
}

// NewFAISSIndex always fails without the faiss build tag.
func NewFAISSIndex(int) (*FAISSIndex, error) {
	return nil, errNoFAISS
}

// LoadFAISSIndex always fails without the faiss build tag.
func LoadFAISSIndex(string) (*FAISSIndex, error) {
	return nil, errNoFAISS
}
