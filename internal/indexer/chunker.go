package indexer

import (
	"regexp"
	"strings"

	"github.com/clipperhouse/uax29/v2/sentences"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/tokenizer"
)

// headingRe matches lines opening an enumerated section: "IV.", "2.", "a)".
var headingRe = regexp.MustCompile(`^\s*(?:[IVXLCDM]+\.|\d+\.|[a-z]\))`)

// Chunker packs sentences into chunks bounded by a token budget, carrying a
// small token overlap from one chunk into the next.
type Chunker struct {
	tok       tokenizer.Tokenizer
	chunkSize int
	overlap   int
}

// NewChunker creates a chunker. Sizes are in tokenizer tokens.
func NewChunker(tok tokenizer.Tokenizer, chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{tok: tok, chunkSize: chunkSize, overlap: overlap}
}

// Chunk splits text into chunk strings. A single sentence larger than the
// chunk size becomes its own chunk.
func (c *Chunker) Chunk(text string) ([]string, error) {
	var out []string
	for _, section := range Sections(text) {
		chunks, err := c.pack(Sentences(section))
		if err != nil {
			return nil, err
		}
		out = append(out, chunks...)
	}
	return out, nil
}

// ChunkDocument chunks text and tags every chunk with documentID and its ordinal.
func (c *Chunker) ChunkDocument(documentID, text string) ([]models.Chunk, error) {
	texts, err := c.Chunk(text)
	if err != nil {
		return nil, err
	}
	chunks := make([]models.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = models.Chunk{Text: t, DocumentID: documentID, Ordinal: i}
	}
	return chunks, nil
}

func (c *Chunker) pack(sents []string) ([]string, error) {
	var out []string
	var current []string
	for _, s := range sents {
		n, err := c.count(append(current, s))
		if err != nil {
			return nil, err
		}
		if n <= c.chunkSize || len(current) == 0 {
			current = append(current, s)
			continue
		}
		out = append(out, strings.Join(current, " "))
		seed, err := c.overlapSeed(current, s)
		if err != nil {
			return nil, err
		}
		current = append(seed, s)
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}
	return out, nil
}

// overlapSeed returns the longest tail of closed whose token count fits the
// overlap. The tail is shortened further if it would push next past the chunk size.
func (c *Chunker) overlapSeed(closed []string, next string) ([]string, error) {
	if c.overlap == 0 {
		return nil, nil
	}
	start := len(closed)
	for start > 0 {
		n, err := c.count(closed[start-1:])
		if err != nil {
			return nil, err
		}
		if n > c.overlap {
			break
		}
		start--
	}
	seed := append([]string(nil), closed[start:]...)
	for len(seed) > 0 {
		n, err := c.count(append(append([]string(nil), seed...), next))
		if err != nil {
			return nil, err
		}
		if n <= c.chunkSize {
			break
		}
		seed = seed[1:]
	}
	return seed, nil
}

func (c *Chunker) count(sents []string) (int, error) {
	return c.tok.Count(strings.Join(sents, " "))
}

// Sections splits text before every enumerated heading line. Sections are
// trimmed and empty ones dropped.
func Sections(text string) []string {
	var sections []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			sections = append(sections, s)
		}
		b.Reset()
	}
	for _, line := range strings.Split(text, "\n") {
		if headingRe.MatchString(line) {
			flush()
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	flush()
	return sections
}

// Sentences segments text with the Unicode sentence boundary algorithm.
// Whitespace inside a sentence is collapsed.
func Sentences(text string) []string {
	var out []string
	seg := sentences.FromString(text)
	for seg.Next() {
		if s := strings.Join(strings.Fields(seg.Value()), " "); s != "" {
			out = append(out, s)
		}
	}
	return out
}
