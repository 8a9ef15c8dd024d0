package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const odfContentPath = "content.xml"

var (
	pptxSlidePath = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	pptxParaEnd   = regexp.MustCompile(`</a:p>`)
	pptxTextRun   = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)

	odpPage = regexp.MustCompile(`<draw:page[\s>]`)

	// A text:p or text:h element that is not self-closing; ODF never nests them.
	odfParagraph = regexp.MustCompile(`(?s)<text:[ph](?:\s[^>]*[^/>])?>(.*?)</text:[ph]>`)
	odfSpacer    = regexp.MustCompile(`<text:(?:s|tab|line-break)(?:\s[^>]*)?/>`)
	anyTag       = regexp.MustCompile(`<[^>]+>`)
)

// extractPPTX writes one block per slide in slide-number order, one line per
// paragraph. Slides are separated by a blank line.
func extractPPTX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract PPTX: not a zip: %w", err)
	}
	type slide struct {
		n    int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		if m := pptxSlidePath.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{n, f})
		}
	}
	if len(slides) == 0 {
		return "", fmt.Errorf("extract PPTX: no slides")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var blocks []string
	for _, s := range slides {
		xml, err := readZipFile(zr, s.file.Name)
		if err != nil {
			return "", fmt.Errorf("extract PPTX: read %s: %w", s.file.Name, err)
		}
		var lines []string
		for _, para := range pptxParaEnd.Split(string(xml), -1) {
			var b strings.Builder
			for _, m := range pptxTextRun.FindAllStringSubmatch(para, -1) {
				b.WriteString(html.UnescapeString(m[1]))
			}
			if line := strings.TrimSpace(b.String()); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			blocks = append(blocks, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

// extractODP reads an OpenDocument presentation the same way: one block per
// draw:page, one line per paragraph or heading.
func extractODP(content []byte) (string, error) {
	xml, err := odfContent(content, "ODP")
	if err != nil {
		return "", err
	}
	pages := odpPage.Split(xml, -1)
	if len(pages) > 1 {
		// Text before the first page is styles and metadata.
		pages = pages[1:]
	}
	var blocks []string
	for _, page := range pages {
		if lines := odfLines(page); len(lines) > 0 {
			blocks = append(blocks, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(blocks, "\n\n"), nil
}

func odfContent(content []byte, kind string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract %s: not a zip: %w", kind, err)
	}
	xml, err := readZipFile(zr, odfContentPath)
	if err != nil {
		return "", fmt.Errorf("extract %s: read %s: %w", kind, odfContentPath, err)
	}
	if xml == nil {
		return "", fmt.Errorf("extract %s: %s not found", kind, odfContentPath)
	}
	return string(xml), nil
}

// odfLines returns the non-empty paragraphs in s, spans flattened.
func odfLines(s string) []string {
	var lines []string
	for _, m := range odfParagraph.FindAllStringSubmatch(s, -1) {
		if line := odfText(m[1]); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func odfText(inner string) string {
	inner = odfSpacer.ReplaceAllString(inner, " ")
	inner = anyTag.ReplaceAllString(inner, "")
	return strings.Join(strings.Fields(html.UnescapeString(inner)), " ")
}
