// Package extractor recovers seating rows from tables found in a PDF.
//
// The row rules are deliberately loose heuristics: a row either looks
// like "seat | enrolment | name..." or it contains an enrolment-like
// token somewhere.  Rows matching neither are dropped.  Callers that
// want to know what was dropped or looked suspicious can inspect the
// diagnostics returned alongside the rows.
package extractor

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/iliyamo/exam-seating/internal/model"
)

// Table is a sequence of rows of raw cell strings.
type Table [][]string

// Page holds the tables found on one page, in reading order.
type Page struct {
	Number int
	Tables []Table
}

// Diagnostic kinds.
const (
	Dropped   = "dropped"
	Ambiguous = "ambiguous"
)

// Diagnostic describes a raw row that was dropped or emitted with a
// questionable match.  Positions are 1-based.
type Diagnostic struct {
	Page   int      `json:"page"`
	Table  int      `json:"table"`
	Row    int      `json:"row"`
	Cells  []string `json:"cells"`
	Kind   string   `json:"kind"`
	Reason string   `json:"reason"`
}

// enrolmentPattern is letters followed by three or more digits, e.g. ABC1234.
var enrolmentPattern = regexp.MustCompile(`[A-Za-z]+\p{Nd}{3,}`)

const nameTrimSet = " |-,:"

// ScanRows applies the row heuristics to every row of every table, in
// page, table and row order.  It never fails; an empty result means
// nothing looked like seating data.
func ScanRows(pages []Page) ([]model.SeatRow, []Diagnostic) {
	var (
		rows  []model.SeatRow
		diags []Diagnostic
	)
	for _, page := range pages {
		for ti, table := range page.Tables {
			for ri, raw := range table {
				cells := cleanCells(raw)
				row, ok, notes := scanRow(cells)
				kind := Ambiguous
				if ok {
					rows = append(rows, row)
				} else {
					kind = Dropped
				}
				for _, note := range notes {
					diags = append(diags, Diagnostic{
						Page:   page.Number,
						Table:  ti + 1,
						Row:    ri + 1,
						Cells:  cells,
						Kind:   kind,
						Reason: note,
					})
				}
			}
		}
	}
	return rows, diags
}

func cleanCells(raw []string) []string {
	cells := make([]string, len(raw))
	for i, c := range raw {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

// scanRow converts one cleaned row.  notes explain a drop, or flag an
// emitted row whose match is doubtful.
func scanRow(cells []string) (model.SeatRow, bool, []string) {
	if len(cells) >= 3 {
		return scanStructured(cells)
	}
	return scanJoined(cells)
}

func scanStructured(cells []string) (model.SeatRow, bool, []string) {
	if strings.IndexFunc(cells[0], unicode.IsDigit) < 0 {
		return model.SeatRow{}, false, []string{"first cell has no digit"}
	}
	if utf8.RuneCountInString(cells[1]) < 4 {
		return model.SeatRow{}, false, []string{"second cell shorter than 4 characters"}
	}
	var notes []string
	if strings.IndexFunc(cells[1], unicode.IsDigit) < 0 {
		notes = append(notes, "enrolment cell has no digits; possibly a header row")
	}
	return model.SeatRow{
		SeatNo:      cells[0],
		EnrolmentNo: cells[1],
		StudentName: strings.TrimSpace(strings.Join(cells[2:], " ")),
	}, true, notes
}

func scanJoined(cells []string) (model.SeatRow, bool, []string) {
	joined := strings.Join(cells, " ")
	matches := enrolmentPattern.FindAllString(joined, 2)
	if len(matches) == 0 {
		if strings.TrimSpace(joined) == "" {
			return model.SeatRow{}, false, nil
		}
		return model.SeatRow{}, false, []string{"no enrolment-like token"}
	}
	enrol := matches[0]
	seat := firstShortNumber(joined)

	var notes []string
	if len(matches) > 1 {
		notes = append(notes, "several enrolment-like tokens; using the first")
	}
	if seat == "" {
		notes = append(notes, "no seat number found")
	}

	name := strings.ReplaceAll(joined, enrol, "")
	if seat != "" {
		name = strings.ReplaceAll(name, seat, "")
	}
	return model.SeatRow{
		SeatNo:      seat,
		EnrolmentNo: enrol,
		StudentName: strings.Trim(name, nameTrimSet),
	}, true, notes
}

// firstShortNumber returns the first standalone number of one to three
// digits, where standalone means the whole word consists of it.  Word
// characters are letters, digits and underscore in the Unicode sense.
func firstShortNumber(s string) string {
	start := -1
	for i, r := range s + " " {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			word := s[start:i]
			if n := utf8.RuneCountInString(word); n <= 3 && allDigits(word) {
				return word
			}
			start = -1
		}
	}
	return ""
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}
