package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"lpoflow/internal/util"
)

// Document is the format-independent view of an order file. Text is the
// full plain-text rendering; Tables carries explicit row structure for
// formats that have one (spreadsheets, HTML tables).
type Document struct {
	Text   string
	Tables [][][]string
}

// Extractor turns a stored file into a Document.
type Extractor interface {
	Extract(path string) (Document, error)
}

// FileExtractor dispatches on the file extension.
type FileExtractor struct{}

func NewFileExtractor() *FileExtractor {
	return &FileExtractor{}
}

func (e *FileExtractor) Extract(path string) (Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(content)
	case ".xlsx", ".xls":
		return extractXLSX(content)
	case ".html", ".htm":
		return extractHTML(content)
	case ".txt", ".csv":
		return Document{Text: string(content)}, nil
	default:
		return Document{}, fmt.Errorf("unsupported document type: %s", filepath.Ext(path))
	}
}

func extractPDF(content []byte) (Document, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Document{}, fmt.Errorf("open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	if strings.TrimSpace(sb.String()) == "" {
		return Document{}, fmt.Errorf("pdf contains no extractable text")
	}
	return Document{Text: sb.String()}, nil
}

func extractXLSX(content []byte) (Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return Document{}, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	doc := Document{}
	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		table := make([][]string, 0, len(rows))
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, cell := range row {
				cells = append(cells, util.CollapseSpaces(cell))
			}
			if rowIsEmpty(cells) {
				continue
			}
			table = append(table, cells)
			sb.WriteString(strings.Join(cells, " | "))
			sb.WriteString("\n")
		}
		if len(table) > 0 {
			doc.Tables = append(doc.Tables, table)
		}
	}

	doc.Text = sb.String()
	if strings.TrimSpace(doc.Text) == "" {
		return Document{}, fmt.Errorf("spreadsheet contains no data")
	}
	return doc, nil
}

func extractHTML(content []byte) (Document, error) {
	htmlDoc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return Document{}, fmt.Errorf("parse html: %w", err)
	}

	doc := Document{}
	htmlDoc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := [][]string{}
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			cells := []string{}
			tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.CollapseSpaces(cell.Text()))
			})
			if !rowIsEmpty(cells) {
				rows = append(rows, cells)
			}
		})
		if len(rows) > 0 {
			doc.Tables = append(doc.Tables, rows)
		}
	})

	htmlDoc.Find("script,style").Remove()
	doc.Text = util.CollapseSpaces(htmlDoc.Text())
	// Keep table rows line-oriented so line scanners still see them.
	var sb strings.Builder
	sb.WriteString(doc.Text)
	for _, table := range doc.Tables {
		for _, row := range table {
			sb.WriteString("\n")
			sb.WriteString(strings.Join(row, " | "))
		}
	}
	doc.Text = sb.String()
	return doc, nil
}

func rowIsEmpty(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
