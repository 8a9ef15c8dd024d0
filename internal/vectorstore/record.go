package vectorstore

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Record is the chunk stored at one index row.
type Record struct {
	DocumentID string
	Ordinal    int
	Text       string
}

func saveRecords(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create records file: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(records); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode records: %w", err)
	}
	return f.Close()
}

func loadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records file: %w", err)
	}
	defer f.Close()
	var records []Record
	if err := gob.NewDecoder(f).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}
