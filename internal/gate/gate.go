// Package gate holds the lexical heuristics that decide whether to answer at
// all and whether a generated answer stays within its context.
package gate

import (
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// DefaultMinSharedWords is the number of query words a chunk must contain to support it.
const DefaultMinSharedWords = 2

// DefaultNovelRatio is the share of answer words missing from the context above
// which an answer is treated as unsupported.
const DefaultNovelRatio = 0.3

// DefaultHedges are phrases that mark an answer as unsupported, Vietnamese and English.
var DefaultHedges = []string{
	"tôi không có thông tin",
	"không có thông tin",
	"tôi nghĩ",
	"có lẽ",
	"có thể là",
	"tôi không chắc",
	"theo tôi",
	"i don't have information",
	"i do not have information",
	"i think",
	"possibly",
	"perhaps",
	"probably",
	"i'm not sure",
	"i am not sure",
}

var wordAnalyzer = &analysis.DefaultAnalyzer{
	Tokenizer:    unicode.NewUnicodeTokenizer(),
	TokenFilters: []analysis.TokenFilter{lowercase.NewLowerCaseFilter()},
}

// Words returns the lowercase word set of s. Words follow Unicode word
// boundaries, so diacritics stay inside the word.
func Words(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range wordAnalyzer.Analyze([]byte(s)) {
		set[string(tok.Term)] = struct{}{}
	}
	return set
}

// Gate applies the relevance and hallucination heuristics.
type Gate struct {
	minShared  int
	novelRatio float64
	hedges     []string
}

// Option configures a Gate.
type Option func(*Gate)

// WithMinSharedWords sets how many words a chunk must share with the query.
func WithMinSharedWords(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.minShared = n
		}
	}
}

// WithNovelRatio sets the tolerated share of answer words absent from the context.
func WithNovelRatio(r float64) Option {
	return func(g *Gate) {
		if r > 0 {
			g.novelRatio = r
		}
	}
}

// WithHedges replaces the hedge phrase list.
func WithHedges(hedges []string) Option {
	return func(g *Gate) {
		if len(hedges) > 0 {
			g.hedges = hedges
		}
	}
}

// New returns a gate with default thresholds overridden by opts.
func New(opts ...Option) *Gate {
	g := &Gate{
		minShared:  DefaultMinSharedWords,
		novelRatio: DefaultNovelRatio,
		hedges:     DefaultHedges,
	}
	for _, opt := range opts {
		opt(g)
	}
	lowered := make([]string, len(g.hedges))
	for i, h := range g.hedges {
		lowered[i] = strings.ToLower(h)
	}
	g.hedges = lowered
	return g
}

// IsRelevant reports whether at least one chunk shares enough words with the query.
// It is a lexical overlap check and errs toward refusing.
func (g *Gate) IsRelevant(query string, chunks []string) bool {
	q := Words(query)
	if len(q) == 0 {
		return false
	}
	for _, c := range chunks {
		shared := 0
		for w := range Words(c) {
			if _, ok := q[w]; ok {
				shared++
				if shared >= g.minShared {
					return true
				}
			}
		}
	}
	return false
}

// IsHallucinated reports whether answer hedges or uses too many words that
// appear nowhere in context.
func (g *Gate) IsHallucinated(answer, context string) bool {
	lower := strings.ToLower(answer)
	for _, h := range g.hedges {
		if strings.Contains(lower, h) {
			return true
		}
	}
	words := Words(answer)
	if len(words) == 0 {
		return false
	}
	known := Words(context)
	novel := 0
	for w := range words {
		if _, ok := known[w]; !ok {
			novel++
		}
	}
	return float64(novel)/float64(len(words)) > g.novelRatio
}
