// Package extract turns uploaded or watched files into plain text for ingestion.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Extractor extracts plain text from document files.
type Extractor struct {
	cropPDF    bool
	cropTop    float64
	cropBottom float64
	logger     *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPDFCrop trims top and bottom bands (in points) from every PDF page
// before reading text, dropping running headers and footers.
func WithPDFCrop(top, bottom float64) Option {
	return func(e *Extractor) {
		e.cropPDF = top > 0 || bottom > 0
		e.cropTop = top
		e.cropBottom = bottom
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Supported reports whether ext (with leading dot) has a dedicated extractor.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".odt", ".rtf", ".xlsx", ".ods", ".pptx", ".odp", ".txt", ".md", ".rst":
		return true
	}
	return false
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). Unknown extensions are
// read as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		if e.cropPDF {
			cropped, err := CropPDF(content, e.cropTop, e.cropBottom)
			if err != nil {
				e.logger.Warn("PDF crop failed, reading full pages", zap.Error(err))
			} else {
				content = cropped
			}
		}
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".odt", ".rtf":
		return extractWithCat(content)
	case ".xlsx":
		return extractExcel(content)
	case ".ods":
		return extractODS(content)
	case ".pptx":
		return extractPPTX(content)
	case ".odp":
		return extractODP(content)
	default:
		return extractPlain(content)
	}
}
