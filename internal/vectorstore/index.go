// Package vectorstore keeps chunk embeddings in flat L2 indices: one global
// index over every document plus one index per document.
package vectorstore

import (
	"fmt"
	"math"

	"github.com/hyperjump/kotae/internal/models"
)

// Index is a positional nearest-neighbour index. Row i is the i-th vector added.
type Index interface {
	Add(vectors [][]float32) error
	// Search returns up to k hits ordered by ascending distance, ties by row.
	Search(query []float32, k int) ([]Hit, error)
	// Vector returns a copy of the stored vector at row.
	Vector(row int) ([]float32, error)
	Rows() int
	Dimensions() int
	Save(path string) error
	Close() error
}

// Hit is a single search result.
type Hit struct {
	Row      int
	Distance float32
}

// Kind selects an Index implementation.
type Kind string

const (
	// KindFlat is the pure Go brute-force index.
	KindFlat Kind = "flat"
	// KindFAISS uses FAISS IndexFlatL2. Requires -tags=faiss and CGO.
	KindFAISS Kind = "faiss"
)

// NewIndex creates an empty index of the given kind.
func NewIndex(kind Kind, dimensions int) (Index, error) {
	switch kind {
	case KindFlat, "":
		return NewFlatIndex(dimensions)
	case KindFAISS:
		return NewFAISSIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index kind: %s (supported: flat, faiss)", kind)
	}
}

// LoadIndex reads an index previously written with Save.
func LoadIndex(kind Kind, path string) (Index, error) {
	switch kind {
	case KindFlat, "":
		return LoadFlatIndex(path)
	case KindFAISS:
		return LoadFAISSIndex(path)
	default:
		return nil, fmt.Errorf("unknown index kind: %s (supported: flat, faiss)", kind)
	}
}

// IsFAISSAvailable reports whether FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}

func checkDimensions(vectors [][]float32, dim int) error {
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d, index expects %d", models.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}

// L2 returns the Euclidean distance between a and b.
func L2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
