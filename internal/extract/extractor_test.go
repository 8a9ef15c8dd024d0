package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractBytes_plain(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		ext     string
		want    string
	}{
		{"txt", []byte("Hello world\nLine 2"), ".txt", "Hello world\nLine 2"},
		{"utf8", []byte("Điều 1. Phạm vi"), ".md", "Điều 1. Phạm vi"},
		{"bom", append([]byte{0xEF, 0xBB, 0xBF}, []byte("xin chào")...), ".txt", "xin chào"},
		{"invalid utf8", []byte("hello\x80world"), ".rst", "hello�world"},
		{"unknown extension", []byte("raw content"), ".xyz", "raw content"},
	}
	e := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ExtractBytes(tt.content, tt.ext)
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractBytes_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Chức danh")
	f.SetCellValue("Sheet1", "B1", "Phụ cấp")
	f.SetCellValue("Sheet1", "A3", "Trưởng phòng")
	f.SetCellValue("Sheet1", "B3", "2.000.000")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	got, err := NewExtractor().ExtractBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	want := "Sheet1:\nChức danh | Phụ cấp\nTrưởng phòng | 2.000.000"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func docxWith(parts map[string]string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range parts {
		fw, _ := w.Create(name)
		_, _ = fw.Write([]byte(body))
	}
	_ = w.Close()
	return buf.Bytes()
}

const docxBody = `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
	`<w:p w:rsidR="00A1"><w:r><w:t>1. Giờ </w:t></w:r><w:r><w:t xml:space="preserve">làm việc</w:t></w:r></w:p>` +
	`<w:p><w:r><w:t>a) Sáng&amp;chiều</w:t></w:r><w:r><w:tab/><w:t>8h</w:t></w:r></w:p>` +
	`<w:p></w:p>` +
	`</w:body></w:document>`

func TestExtractBytes_docxParagraphs(t *testing.T) {
	got, err := NewExtractor().ExtractBytes(docxWith(map[string]string{"word/document.xml": docxBody}), ".docx")
	if err != nil {
		t.Fatal(err)
	}
	want := "1. Giờ làm việc\na) Sáng&chiều 8h"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractBytes_docxContentTypes(t *testing.T) {
	tests := []struct {
		name  string
		types string
	}{
		{"partname first", `<Override PartName="/word/document2.xml" ContentType="` + docxMainType + `"/>`},
		{"contenttype first", `<Override ContentType="` + docxMainType + `" PartName="/word/document2.xml"/>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := docxWith(map[string]string{
				contentTypesPath:     `<Types>` + tt.types + `</Types>`,
				"word/document2.xml": docxBody,
			})
			got, err := NewExtractor().ExtractBytes(content, ".docx")
			if err != nil {
				t.Fatal(err)
			}
			if got == "" {
				t.Error("expected text from document2.xml")
			}
		})
	}
}

func TestExtractBytes_docxErrors(t *testing.T) {
	e := NewExtractor()
	if _, err := e.ExtractBytes([]byte("not a zip"), ".docx"); err == nil {
		t.Error("expected error for non-zip input")
	}
	if _, err := e.ExtractBytes(docxWith(map[string]string{"other.xml": "x"}), ".docx"); err == nil {
		t.Error("expected error when document part is missing")
	}
}

func TestExtract_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	if err := os.WriteFile(path, []byte("file content"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != "file content" {
		t.Errorf("got %q", got)
	}
	if _, err := NewExtractor().Extract(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExtractBytes_pdfInvalid(t *testing.T) {
	e := NewExtractor(WithPDFCrop(40, 40))
	if _, err := e.ExtractBytes([]byte("%PDF-garbage"), ".pdf"); err == nil {
		t.Error("expected error for invalid PDF")
	}
}

func TestSupported(t *testing.T) {
	for _, ext := range []string{".pdf", ".DOCX", ".odt", ".rtf", ".xlsx", ".ods", ".pptx", ".odp", ".md"} {
		if !Supported(ext) {
			t.Errorf("%s should be supported", ext)
		}
	}
	for _, ext := range []string{".png", ".ppt", ""} {
		if Supported(ext) {
			t.Errorf("%s should not be supported", ext)
		}
	}
}

func TestExtractBytes_pptx(t *testing.T) {
	slide := func(paras ...string) string {
		var b strings.Builder
		b.WriteString(`<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree>`)
		for _, p := range paras {
			b.WriteString(`<a:p><a:r><a:t>` + p + `</a:t></a:r></a:p>`)
		}
		b.WriteString(`</p:spTree></p:cSld></p:sld>`)
		return b.String()
	}
	content := docxWith(map[string]string{
		"ppt/slides/slide1.xml":  slide("Quy chế bảo mật", "Mật khẩu &amp; thẻ từ"),
		"ppt/slides/slide2.xml":  `<p:sld><a:p><a:r><a:t xml:space="preserve">Đổi mật </a:t></a:r><a:r><a:t>khẩu</a:t></a:r></a:p></p:sld>`,
		"ppt/slides/slide10.xml": slide("Phụ lục"),
		"ppt/notesSlides/x.xml":  slide("ghi chú"),
	})
	got, err := NewExtractor().ExtractBytes(content, ".pptx")
	if err != nil {
		t.Fatal(err)
	}
	want := "Quy chế bảo mật\nMật khẩu & thẻ từ\n\nĐổi mật khẩu\n\nPhụ lục"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if _, err := NewExtractor().ExtractBytes(docxWith(map[string]string{"a.xml": "x"}), ".pptx"); err == nil {
		t.Error("expected error for a zip without slides")
	}
}

func TestExtractBytes_odp(t *testing.T) {
	body := `<office:document-content><office:automatic-styles><style:style style:name="P1"/></office:automatic-styles>` +
		`<office:body><office:presentation>` +
		`<draw:page draw:name="page1"><draw:frame><draw:text-box>` +
		`<text:h text:outline-level="1">Điều 1</text:h>` +
		`<text:p text:style-name="P1">Giờ làm <text:span text:style-name="T1">việc</text:span><text:tab/>8h</text:p>` +
		`<text:p text:style-name="P2"/>` +
		`</draw:text-box></draw:frame></draw:page>` +
		`<draw:page draw:name="page2"><draw:frame><draw:text-box><text:p>Nghỉ trưa</text:p></draw:text-box></draw:frame></draw:page>` +
		`</office:presentation></office:body></office:document-content>`
	got, err := NewExtractor().ExtractBytes(docxWith(map[string]string{"content.xml": body}), ".odp")
	if err != nil {
		t.Fatal(err)
	}
	want := "Điều 1\nGiờ làm việc 8h\n\nNghỉ trưa"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if _, err := NewExtractor().ExtractBytes(docxWith(map[string]string{"meta.xml": "x"}), ".odp"); err == nil {
		t.Error("expected error when content.xml is missing")
	}
}

func TestExtractBytes_ods(t *testing.T) {
	body := `<office:document-content><office:body><office:spreadsheet>` +
		`<table:table table:name="Phụ cấp" table:style-name="ta1">` +
		`<table:table-column table:number-columns-repeated="2"/>` +
		`<table:table-row><table:table-cell office:value-type="string"><text:p>Chức danh</text:p></table:table-cell>` +
		`<table:table-cell office:value-type="string"><text:p>Mức</text:p></table:table-cell></table:table-row>` +
		`<table:table-row><table:table-cell table:number-columns-repeated="2"/></table:table-row>` +
		`<table:table-row><table:table-cell><text:p>Trưởng phòng</text:p></table:table-cell>` +
		`<table:table-cell/><table:table-cell office:value-type="float" office:value="2000000"><text:p>2.000.000</text:p></table:table-cell></table:table-row>` +
		`</table:table>` +
		`<table:table table:name="Trống"><table:table-row><table:table-cell/></table:table-row></table:table>` +
		`</office:spreadsheet></office:body></office:document-content>`
	got, err := NewExtractor().ExtractBytes(docxWith(map[string]string{"content.xml": body}), ".ods")
	if err != nil {
		t.Fatal(err)
	}
	want := "Phụ cấp:\nChức danh | Mức\nTrưởng phòng | 2.000.000\nTrống:"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
