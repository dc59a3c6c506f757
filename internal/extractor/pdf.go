package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/iliyamo/exam-seating/internal/model"
)

// DefaultCellGap is the horizontal gap, in points, that separates two
// cells of the same text row.
const DefaultCellGap = 6.0

var (
	ErrNotPDF        = errors.New("not a PDF document")
	ErrUnreadablePDF = errors.New("unreadable PDF")
)

// ValidatePDF checks the %PDF- magic bytes.
func ValidatePDF(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}

// ReadPDF parses data into pages of tables.  Every page yields a single
// table whose rows are the page's text rows split into cells on wide
// horizontal gaps.
func ReadPDF(data []byte, cellGap float64) (pages []Page, err error) {
	if !ValidatePDF(data) {
		return nil, ErrNotPDF
	}
	if cellGap <= 0 {
		cellGap = DefaultCellGap
	}
	// the pdf package panics on some malformed inputs
	defer func() {
		if p := recover(); p != nil {
			pages, err = nil, fmt.Errorf("%w: %v", ErrUnreadablePDF, p)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrUnreadablePDF, i, err)
		}
		var table Table
		for _, row := range rows {
			if cells := splitCells(row.Content, cellGap); len(cells) > 0 {
				table = append(table, cells)
			}
		}
		p := Page{Number: i}
		if len(table) > 0 {
			p.Tables = []Table{table}
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// ReadPDFFile is ReadPDF over a file on disk.
func ReadPDFFile(path string, cellGap float64) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadPDF(data, cellGap)
}

// Extract reads a PDF and scans its rows in one step.
func Extract(data []byte, cellGap float64) ([]model.SeatRow, []Diagnostic, error) {
	pages, err := ReadPDF(data, cellGap)
	if err != nil {
		return nil, nil, err
	}
	rows, diags := ScanRows(pages)
	return rows, diags, nil
}

// splitCells orders text runs left to right and starts a new cell
// wherever the gap to the previous run exceeds gap.
func splitCells(texts pdf.TextHorizontal, gap float64) []string {
	runs := make([]pdf.Text, len(texts))
	copy(runs, texts)
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].X < runs[j].X })

	var (
		cells []string
		cur   strings.Builder
		end   float64
	)
	flush := func() {
		if cell := strings.TrimSpace(cur.String()); cell != "" {
			cells = append(cells, cell)
		}
		cur.Reset()
	}
	for i, t := range runs {
		if i > 0 && t.X-end > gap {
			flush()
		}
		cur.WriteString(t.S)
		if e := t.X + t.W; e > end || i == 0 {
			end = e
		}
	}
	flush()
	return cells
}
