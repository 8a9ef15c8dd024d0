// Package fileid derives stable document IDs from file paths and names.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const prefix = "file:"

// FileDocID returns a stable opaque ID for the given absolute path.
func FileDocID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}

var fold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName turns a file name into a readable ASCII document ID:
// the extension is dropped, diacritics are removed (đ becomes d), letters are
// lowercased and every other character becomes '_'. Runs of '_' collapse.
func NormalizeName(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	folded, _, err := transform.String(fold, base)
	if err != nil {
		folded = base
	}
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r == 'đ':
			r = 'd'
		case r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)):
			r = '_'
		}
		if r == '_' {
			if lastUnderscore || b.Len() == 0 {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), "_")
}

// DocumentID returns NormalizeName(path), falling back to FileDocID when the
// name has no ASCII letters or digits left.
func DocumentID(path string) string {
	if id := NormalizeName(path); id != "" {
		return id
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return FileDocID(abs)
}
