//go:build faiss && cgo

package vectorstore

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"fmt"
	"math"
	"unsafe"
)

// FAISSIndex wraps a FAISS IndexFlatL2. FAISS reports squared distances; they
// are converted to Euclidean distance so both backends rank identically.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
}

// NewFAISSIndex creates an empty IndexFlatL2.
func NewFAISSIndex(dimensions int) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	var index *C.FaissIndexFlatL2
	if ret := C.faiss_IndexFlatL2_new_with(&index, C.idx_t(dimensions)); ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	return &FAISSIndex{index: (*C.FaissIndex)(index), dimensions: dimensions}, nil
}

// LoadFAISSIndex reads an index written with Save.
func LoadFAISSIndex(path string) (*FAISSIndex, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var index *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &index); ret != 0 {
		return nil, fmt.Errorf("failed to load FAISS index: %s", faissLastError())
	}
	return &FAISSIndex{index: index, dimensions: int(C.faiss_Index_d(index))}, nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Add appends vectors after checking every dimension.
func (f *FAISSIndex) Add(vectors [][]float32) error {
	if err := checkDimensions(vectors, f.dimensions); err != nil {
		return err
	}
	if len(vectors) == 0 {
		return nil
	}
	flat := make([]float32, len(vectors)*f.dimensions)
	for i, vec := range vectors {
		copy(flat[i*f.dimensions:], vec)
	}
	if ret := C.faiss_Index_add(f.index, C.idx_t(len(vectors)), (*C.float)(unsafe.Pointer(&flat[0]))); ret != 0 {
		return fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	return nil
}

// Search runs an exact L2 search.
func (f *FAISSIndex) Search(query []float32, k int) ([]Hit, error) {
	if err := checkDimensions([][]float32{query}, f.dimensions); err != nil {
		return nil, err
	}
	ntotal := f.Rows()
	if k <= 0 || ntotal == 0 {
		return nil, nil
	}
	if k > ntotal {
		k = ntotal
	}
	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}
	hits := make([]Hit, 0, k)
	for i := 0; i < k; i++ {
		if labels[i] < 0 {
			continue
		}
		hits = append(hits, Hit{Row: int(labels[i]), Distance: float32(math.Sqrt(float64(distances[i])))})
	}
	return hits, nil
}

// Vector reconstructs the stored vector at row.
func (f *FAISSIndex) Vector(row int) ([]float32, error) {
	if row < 0 || row >= f.Rows() {
		return nil, fmt.Errorf("row %d out of range [0,%d)", row, f.Rows())
	}
	out := make([]float32, f.dimensions)
	if ret := C.faiss_Index_reconstruct(f.index, C.idx_t(row), (*C.float)(unsafe.Pointer(&out[0]))); ret != 0 {
		return nil, fmt.Errorf("FAISS reconstruct failed: %s", faissLastError())
	}
	return out, nil
}

// Rows returns the number of stored vectors.
func (f *FAISSIndex) Rows() int {
	return int(C.faiss_Index_ntotal(f.index))
}

// Dimensions returns the vector size.
func (f *FAISSIndex) Dimensions() int { return f.dimensions }

// Save writes the native FAISS file format.
func (f *FAISSIndex) Save(path string) error {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		return fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}
	return nil
}

// Close frees the FAISS index.
func (f *FAISSIndex) Close() error {
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}
