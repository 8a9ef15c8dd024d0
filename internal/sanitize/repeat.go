package sanitize

import "unicode"

// MinRepeatPeriod is the shortest substring, in runes, considered for repetition.
const MinRepeatPeriod = 3

// MinRepeatCount is how many consecutive copies make a repetition.
const MinRepeatCount = 3

// maxRepeatPeriod caps the substring length searched; longer loops are rare and
// the search cost grows with the period.
const maxRepeatPeriod = 256

// HasRepetition reports whether s contains a substring of at least
// MinRepeatPeriod runes repeated MinRepeatCount times back to back. The
// substring must contain a letter, so digit runs such as "1,000,000,000" are data.
func HasRepetition(s string) bool {
	runes := []rune(s)
	for i := range runes {
		if p, _ := repeatAt(runes, i); p > 0 {
			return true
		}
	}
	return false
}

// CollapseRepeats replaces every back-to-back run of MinRepeatCount or more
// copies of a substring with a single copy. The shortest period wins at each position.
func CollapseRepeats(s string) string {
	runes := []rune(s)
	out := make([]rune, 0, len(runes))
	changed := false
	for i := 0; i < len(runes); {
		p, n := repeatAt(runes, i)
		if p == 0 {
			out = append(out, runes[i])
			i++
			continue
		}
		out = append(out, runes[i:i+p]...)
		i += p * n
		changed = true
	}
	if !changed {
		return s
	}
	return string(out)
}

// repeatAt returns the period and copy count of a repetition starting at i, or 0, 0.
func repeatAt(runes []rune, i int) (period, count int) {
	remaining := len(runes) - i
	limit := remaining / MinRepeatCount
	if limit > maxRepeatPeriod {
		limit = maxRepeatPeriod
	}
	for p := MinRepeatPeriod; p <= limit; p++ {
		n := 1
		for i+(n+1)*p <= len(runes) && equalRunes(runes[i:i+p], runes[i+n*p:i+(n+1)*p]) {
			n++
		}
		if n >= MinRepeatCount && hasLetter(runes[i:i+p]) {
			return p, n
		}
	}
	return 0, 0
}

func equalRunes(a, b []rune) bool {
	for k := range a {
		if a[k] != b[k] {
			return false
		}
	}
	return true
}

func hasLetter(rs []rune) bool {
	for _, r := range rs {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// RepetitionCut returns the byte offset in s where the first repetition turns
// into a detectable one, i.e. the start of its MinRepeatCount-th copy. The
// text before the offset holds at most MinRepeatCount-1 copies.
func RepetitionCut(s string) (int, bool) {
	runes := []rune(s)
	for i := range runes {
		if p, _ := repeatAt(runes, i); p > 0 {
			cut := i + p*(MinRepeatCount-1)
			return len(string(runes[:cut])), true
		}
	}
	return 0, false
}
