// Package seatfile reads and writes seating tables in the exchange
// formats used by administrators: CSV and XLSX.  Both share the header
// room,seat_no,enrolment_no,student_name.
package seatfile

import (
	"strings"

	"github.com/iliyamo/exam-seating/internal/model"
)

// Header is the column order written by every exporter.
var Header = []string{"room", "seat_no", "enrolment_no", "student_name"}

const utf8BOM = "\ufeff"

// rowsFromRecords maps records to SeatRows using the first record as
// header.  Columns are matched by name; unknown columns are ignored
// and missing ones read as empty.
func rowsFromRecords(records [][]string) []model.SeatRow {
	if len(records) == 0 {
		return nil
	}
	index := map[string]int{}
	for i, name := range records[0] {
		name = strings.TrimSpace(strings.TrimPrefix(name, utf8BOM))
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}
	get := func(rec []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	out := make([]model.SeatRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		out = append(out, model.SeatRow{
			Room:        get(rec, "room"),
			SeatNo:      get(rec, "seat_no"),
			EnrolmentNo: get(rec, "enrolment_no"),
			StudentName: get(rec, "student_name"),
		})
	}
	return out
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func recordOf(r model.SeatRow) []string {
	return []string{r.Room, r.SeatNo, r.EnrolmentNo, r.StudentName}
}
