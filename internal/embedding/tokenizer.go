package embedding

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"os"
	"strings"
	"unicode"
)

const (
	clsID = 101
	sepID = 102
	unkID = 100
)

// WordPieceTokenizer produces BERT-style model inputs (input_ids,
// attention_mask, token_type_ids). Without a vocabulary it falls back to
// hashing whole words into the id space, which is only useful in tests.
type WordPieceTokenizer struct {
	vocab     map[string]int64
	lowercase bool
}

// NewWordPieceTokenizer loads vocabPath (one token per line, id = line number).
// An empty path yields the hashing tokenizer.
func NewWordPieceTokenizer(vocabPath string, lowercase bool) (*WordPieceTokenizer, error) {
	t := &WordPieceTokenizer{lowercase: lowercase}
	if vocabPath == "" {
		return t, nil
	}
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()
	t.vocab = make(map[string]int64)
	sc := bufio.NewScanner(f)
	var id int64
	for sc.Scan() {
		t.vocab[strings.TrimRight(sc.Text(), "\r")] = id
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	return t, nil
}

// Tokenize encodes text into padded inputs of length maxTokens.
func (t *WordPieceTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsID
	attentionMask[0] = 1
	pos := 1
	for _, word := range splitWords(text, t.lowercase) {
		for _, id := range t.wordIDs(word) {
			if pos >= maxTokens-1 {
				break
			}
			inputIDs[pos] = id
			attentionMask[pos] = 1
			pos++
		}
	}
	inputIDs[pos] = sepID
	attentionMask[pos] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

func (t *WordPieceTokenizer) wordIDs(word string) []int64 {
	if t.vocab == nil {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		return []int64{int64(h.Sum32()%29000) + 1000}
	}
	var ids []int64
	runes := []rune(word)
	for start := 0; start < len(runes); {
		end := len(runes)
		var id int64 = -1
		for end > start {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if v, ok := t.vocab[piece]; ok {
				id = v
				break
			}
			end--
		}
		if id < 0 {
			return []int64{unkID}
		}
		ids = append(ids, id)
		start = end
	}
	return ids
}

// splitWords separates words on whitespace and isolates punctuation runes.
func splitWords(text string, lowercase bool) []string {
	if lowercase {
		text = strings.ToLower(text)
	}
	var words []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			words = append(words, b.String())
			b.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return words
}
