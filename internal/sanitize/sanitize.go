// Package sanitize cleans user queries, retrieved chunks, and generated output.
//
// Chunk and Output are applied until the text stops changing, so applying
// either one twice gives the same result as applying it once.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// allowedPunct is the punctuation kept by Query, besides letters, marks, digits, underscore and whitespace.
const allowedPunct = ".,;:()[]?!\"'-–—…°%‰≥≤→←≠=+/*<>"

// extendedPunct is kept in chunks and output in addition to allowedPunct.
const extendedPunct = "&@#$€£¥§•·|~^{}"

// maxPassesPerCall bounds the fixpoint loop; every pass only removes or
// normalizes characters, so real inputs settle within a few passes.
const maxPassesPerCall = 32

var (
	markdownImage = regexp.MustCompile(`!\[[^\]\n]*\]\([^)\n]*\)`)
	// openImage matches text that a markdownImage match could still start with.
	openImage = regexp.MustCompile(`^!(\[[^\]\n]*(\]\([^)\n]*)?)?$`)
	blankLineRun  = regexp.MustCompile(`\n{3,}`)
	specialTokens = []string{"<|im_start|>", "<|im_end|>", "<|endoftext|>", "<|eot_id|>"}
)

// Question-style artifact lines are dropped; answer-style prefixes are removed
// and the rest of the line kept. Matching is case-insensitive on the trimmed line.
var (
	questionPrefixes = []string{"question:", "q:", "câu hỏi:", "hỏi:"}
	answerPrefixes   = []string{"answer:", "a:", "trả lời:", "đáp:"}
)

// Query removes every character outside the query allow-list and trims the result.
func Query(s string) string {
	return strings.TrimSpace(keepAllowed(s, allowedPunct))
}

// Chunk cleans retrieved text before it is used as prompt context.
func Chunk(s string) string {
	return fixpoint(s, func(x string) string { return chunkPass(x, true) })
}

// Output cleans accumulated generated text: the chunk rules, plus removal of
// chat-template tokens and of lines holding only punctuation.
func Output(s string) string {
	return fixpoint(s, func(x string) string { return outputPass(x, true) })
}

// OutputUncollapsed applies the Output rules except repeated-substring collapsing.
// Repetition detection runs on this form, since collapsing would hide the repeats.
func OutputUncollapsed(s string) string {
	return fixpoint(s, func(x string) string { return outputPass(x, false) })
}

func fixpoint(s string, pass func(string) string) string {
	for i := 0; i < maxPassesPerCall; i++ {
		next := pass(s)
		if next == s {
			return next
		}
		s = next
	}
	return s
}

func chunkPass(s string, collapse bool) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = markdownImage.ReplaceAllString(s, "")
	s = keepAllowed(s, allowedPunct+extendedPunct)
	s = collapsePunctuationRuns(s)
	if collapse {
		s = CollapseRepeats(s)
	}
	s = stripArtifactLines(s)
	return collapseWhitespace(s)
}

func outputPass(s string, collapse bool) string {
	s = StripSpecialTokens(s)
	s = chunkPass(s, collapse)
	s = dropPunctuationLines(s)
	return collapseWhitespace(s)
}

// StripSpecialTokens removes chat-template control tokens.
func StripSpecialTokens(s string) string {
	for _, tok := range specialTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	return s
}

func keepAllowed(s, punct string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsMark(r), unicode.IsDigit(r), unicode.IsNumber(r):
			return r
		case r == '_' || r == '\n' || r == '\r' || r == '\t' || r == ' ':
			return r
		case unicode.IsSpace(r):
			return ' '
		case strings.ContainsRune(punct, r):
			return r
		}
		return -1
	}, s)
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// collapsePunctuationRuns replaces a run of the same punctuation rune with one occurrence.
func collapsePunctuationRuns(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev rune = -1
	for _, r := range s {
		if r == prev && isPunct(r) {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

func stripArtifactLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if hasAnyPrefix(lower, questionPrefixes) {
			continue
		}
		if p := matchedPrefix(lower, answerPrefixes); p != "" {
			line = strings.TrimSpace(trimmed[len(p):])
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func hasAnyPrefix(s string, prefixes []string) bool {
	return matchedPrefix(s, prefixes) != ""
}

// matchedPrefix returns the matching prefix. Lowercasing keeps byte lengths for
// the prefixes in use, so the result can slice the original line.
func matchedPrefix(s string, prefixes []string) string {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return p
		}
	}
	return ""
}

// IsArtifactPrefix reports whether line could still grow into an artifact-prefixed
// line, i.e. it is a non-empty prefix of one of the artifact labels.
func IsArtifactPrefix(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	if lower == "" {
		return false
	}
	for _, list := range [][]string{questionPrefixes, answerPrefixes} {
		for _, p := range list {
			if strings.HasPrefix(p, lower) {
				return true
			}
		}
	}
	return false
}

// OpenImageStart returns the byte offset where s ends in an unterminated
// markdown image, such as "![sơ đồ](http://x", or -1. Text from the offset on
// may disappear once the image is closed.
func OpenImageStart(s string) int {
	line := 0
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		line = i + 1
	}
	for i := line; i < len(s); i++ {
		if s[i] == '!' && openImage.MatchString(s[i:]) {
			return i
		}
	}
	return -1
}

func dropPunctuationLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" && onlyPunctuation(line) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func onlyPunctuation(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) && !isPunct(r) {
			return false
		}
	}
	return true
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	s = strings.Join(lines, "\n")
	s = blankLineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// PunctuationRatio returns the share of punctuation among the non-space runes
// of the last window runes of s. A window of zero or less uses all of s.
func PunctuationRatio(s string, window int) (ratio float64, counted int) {
	if window > 0 && utf8.RuneCountInString(s) > window {
		runes := []rune(s)
		s = string(runes[len(runes)-window:])
	}
	var punct int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		counted++
		if isPunct(r) {
			punct++
		}
	}
	if counted == 0 {
		return 0, 0
	}
	return float64(punct) / float64(counted), counted
}
