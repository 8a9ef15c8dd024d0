package indexer

import (
	"regexp"
	"strings"
)

var (
	hyphenBreak = regexp.MustCompile(`(\p{L})-\n[ \t]*(\p{L})`)
	longDots    = regexp.MustCompile(`\.{4,}`)
	hspace      = regexp.MustCompile(`[ \t\x{00A0}]+`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

// CleanText repairs extraction artifacts before chunking: words hyphenated
// across line breaks are joined, wrapped lines inside a paragraph are unwrapped,
// dot leaders shrink to "...", and whitespace runs collapse. Lines that open an
// enumerated heading keep their line break so sections survive.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = hyphenBreak.ReplaceAllString(text, "$1$2")
	text = longDots.ReplaceAllString(text, "...")
	text = hspace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	var b strings.Builder
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if i > 0 {
			prev := strings.TrimSpace(lines[i-1])
			if line != "" && prev != "" && !headingRe.MatchString(line) {
				b.WriteByte(' ')
			} else {
				b.WriteByte('\n')
			}
		}
		b.WriteString(line)
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(b.String(), "\n\n"))
}
