package seatfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/iliyamo/exam-seating/internal/model"
)

// ReadCSV parses a comma separated seating table with a header row.
// An empty input yields no rows.
func ReadCSV(r io.Reader) ([]model.SeatRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		records = append(records, rec)
	}
	return rowsFromRecords(records), nil
}

// WriteCSV writes the header followed by one line per row.
func WriteCSV(w io.Writer, rows []model.SeatRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(recordOf(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
