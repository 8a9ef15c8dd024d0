package embedding

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWordPieceTokenizer_Hashing(t *testing.T) {
	tok, err := NewWordPieceTokenizer("", true)
	if err != nil {
		t.Fatal(err)
	}
	ids, attn, types := tok.Tokenize("xin chào", 8)
	if len(ids) != 8 || len(attn) != 8 || len(types) != 8 {
		t.Fatalf("lengths: %d %d %d", len(ids), len(attn), len(types))
	}
	if ids[0] != clsID || ids[3] != sepID {
		t.Errorf("ids = %v", ids)
	}
	if attn[3] != 1 || attn[4] != 0 {
		t.Errorf("attention = %v", attn)
	}
	again, _, _ := tok.Tokenize("XIN chào", 8)
	if again[1] != ids[1] {
		t.Error("lowercasing should make ids equal")
	}
}

func TestWordPieceTokenizer_Vocab(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	vocab := "[PAD]\nhello\nwor\n##ld\n!\n"
	if err := os.WriteFile(path, []byte(vocab), 0644); err != nil {
		t.Fatal(err)
	}
	tok, err := NewWordPieceTokenizer(path, true)
	if err != nil {
		t.Fatal(err)
	}
	ids, _, _ := tok.Tokenize("Hello world! zzz", 10)
	want := []int64{clsID, 1, 2, 3, 4, unkID, sepID, 0, 0, 0}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestWordPieceTokenizer_Truncates(t *testing.T) {
	tok, _ := NewWordPieceTokenizer("", false)
	ids, attn, _ := tok.Tokenize("a b c d e f g", 4)
	if ids[3] != sepID {
		t.Errorf("last id should be SEP, got %v", ids)
	}
	for _, a := range attn {
		if a != 1 {
			t.Errorf("all positions should be attended: %v", attn)
		}
	}
}
