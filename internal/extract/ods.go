package extract

import (
	"html"
	"regexp"
	"strings"
)

var (
	odsTable = regexp.MustCompile(`<table:table\s[^>]*table:name="([^"]*)"[^>]*>`)
	odsRow   = regexp.MustCompile(`(?s)<table:table-row(?:\s[^>]*[^/>])?>(.*?)</table:table-row>`)
	odsCell  = regexp.MustCompile(`(?s)<table:table-cell(?:\s[^>]*[^/>])?>(.*?)</table:table-cell>`)
)

const odsTableEnd = "</table:table>"

// extractODS lays an OpenDocument spreadsheet out like extractExcel: the sheet
// name on its own line, then one line per non-empty row with cells joined by " | ".
func extractODS(content []byte) (string, error) {
	xml, err := odfContent(content, "ODS")
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	for _, loc := range odsTable.FindAllStringSubmatchIndex(xml, -1) {
		name := html.UnescapeString(xml[loc[2]:loc[3]])
		body := xml[loc[1]:]
		if end := strings.Index(body, odsTableEnd); end >= 0 {
			body = body[:end]
		}
		buf.WriteString(name)
		buf.WriteString(":\n")
		for _, row := range odsRow.FindAllStringSubmatch(body, -1) {
			var cells []string
			for _, cell := range odsCell.FindAllStringSubmatch(row[1], -1) {
				if text := strings.Join(odfLines(cell[1]), " "); text != "" {
					cells = append(cells, text)
				}
			}
			if len(cells) == 0 {
				continue
			}
			buf.WriteString(strings.Join(cells, " | "))
			buf.WriteByte('\n')
		}
	}
	return strings.TrimSpace(buf.String()), nil
}
