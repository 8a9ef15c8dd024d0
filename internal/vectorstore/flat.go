package vectorstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// FlatIndex is an exact brute-force L2 index held in memory.
type FlatIndex struct {
	dimensions int
	vectors    [][]float32
}

// NewFlatIndex creates an empty flat index.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{dimensions: dimensions}, nil
}

// Add appends vectors. Either all vectors are added or none.
func (f *FlatIndex) Add(vectors [][]float32) error {
	if err := checkDimensions(vectors, f.dimensions); err != nil {
		return err
	}
	for _, v := range vectors {
		vec := make([]float32, f.dimensions)
		copy(vec, v)
		f.vectors = append(f.vectors, vec)
	}
	return nil
}

// Clone returns an index sharing the stored rows. Rows are never modified in
// place, so adding to either index leaves the other unchanged.
func (f *FlatIndex) Clone() Index {
	vectors := make([][]float32, len(f.vectors))
	copy(vectors, f.vectors)
	return &FlatIndex{dimensions: f.dimensions, vectors: vectors}
}

// Search scans every row.
func (f *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if err := checkDimensions([][]float32{query}, f.dimensions); err != nil {
		return nil, err
	}
	if k <= 0 || len(f.vectors) == 0 {
		return nil, nil
	}
	hits := make([]Hit, len(f.vectors))
	for i, vec := range f.vectors {
		hits[i] = Hit{Row: i, Distance: L2(query, vec)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Vector returns a copy of row.
func (f *FlatIndex) Vector(row int) ([]float32, error) {
	if row < 0 || row >= len(f.vectors) {
		return nil, fmt.Errorf("row %d out of range [0,%d)", row, len(f.vectors))
	}
	out := make([]float32, f.dimensions)
	copy(out, f.vectors[row])
	return out, nil
}

// Rows returns the number of stored vectors.
func (f *FlatIndex) Rows() int { return len(f.vectors) }

// Dimensions returns the vector size.
func (f *FlatIndex) Dimensions() int { return f.dimensions }

// Close is a no-op.
func (f *FlatIndex) Close() error { return nil }

// Save writes the index to path. Format: dimension (4), n (4), then n*dimension
// little-endian float32 values.
func (f *FlatIndex) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(file)
	if err := f.write(w); err != nil {
		_ = file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("flush index: %w", err)
	}
	return file.Close()
}

func (f *FlatIndex) write(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(f.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(f.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	buf := make([]byte, f.dimensions*4)
	for _, vec := range f.vectors {
		for i, v := range vec {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// LoadFlatIndex reads an index written by Save.
func LoadFlatIndex(path string) (*FlatIndex, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()
	r := bufio.NewReader(file)

	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	f, err := NewFlatIndex(int(dim))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.vectors = make([][]float32, 0, n)
	buf := make([]byte, dim*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		f.vectors = append(f.vectors, vec)
	}
	return f, nil
}
