package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iliyamo/exam-seating/internal/extractor"
	"github.com/iliyamo/exam-seating/internal/model"
	"github.com/iliyamo/exam-seating/internal/seatfile"
	"github.com/iliyamo/exam-seating/internal/service"
)

func newExtractCmd(g *globals) *cobra.Command {
	var (
		pdfPath string
		outPath string
		room    string
		gap     float64
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract seating rows from a PDF into CSV or XLSX",
		Example: "  seatctl extract --pdf seating.pdf --out seating.csv\n" +
			"  seatctl extract --pdf seating.pdf --room LT-1 --out seating.xlsx",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pages, err := extractor.ReadPDFFile(pdfPath, gap)
			if err != nil {
				return err
			}
			rows, diags := extractor.ScanRows(pages)
			if verbose {
				for _, d := range diags {
					fmt.Fprintf(cmd.ErrOrStderr(), "page %d row %d: %s: %s %q\n", d.Page, d.Row, d.Kind, d.Reason, d.Cells)
				}
			}
			if len(rows) == 0 {
				return service.ErrEmptyExtraction
			}
			fillRoom(rows, room)
			if err := writeRows(cmd.OutOrStdout(), outPath, rows); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "extracted %d rows (%d diagnostics)\n", len(rows), len(diags))
			return nil
		},
	}
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "seating plan PDF")
	cmd.Flags().StringVar(&outPath, "out", "", "output file (.csv or .xlsx); CSV on stdout when empty")
	cmd.Flags().StringVar(&room, "room", "", "room code for rows without one")
	cmd.Flags().Float64Var(&gap, "gap", extractor.DefaultCellGap, "horizontal gap in points that separates cells")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print dropped and ambiguous rows")
	_ = cmd.MarkFlagRequired("pdf")
	return cmd
}

func fillRoom(rows []model.SeatRow, room string) {
	room = strings.TrimSpace(room)
	if room == "" {
		return
	}
	for i := range rows {
		if strings.TrimSpace(rows[i].Room) == "" {
			rows[i].Room = room
		}
	}
}

// writeRows writes rows to path, picking the format from its extension.
// An empty path writes CSV to stdout.  A failed write removes the file.
func writeRows(stdout io.Writer, path string, rows []model.SeatRow) error {
	if path == "" {
		return seatfile.WriteCSV(stdout, rows)
	}
	var write func(io.Writer, []model.SeatRow) error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		write = seatfile.WriteXLSX
	case ".csv":
		write = seatfile.WriteCSV
	default:
		return fmt.Errorf("unsupported output format %q (want .csv or .xlsx)", ext)
	}

	return createFile(path, func(w io.Writer) error { return write(w, rows) })
}

// createFile creates path and fills it with write.  The file is removed
// again when writing or closing fails.
func createFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	return write(f)
}

// readRows loads a seating file by extension.
func readRows(path string, gap float64) ([]model.SeatRow, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		rows, err := seatfile.ReadCSV(bytes.NewReader(data))
		return rows, "csv", err
	case ".xlsx":
		rows, err := seatfile.ReadXLSX(bytes.NewReader(data))
		return rows, "xlsx", err
	case ".pdf":
		rows, _, err := extractor.Extract(data, gap)
		if err == nil && len(rows) == 0 {
			err = service.ErrEmptyExtraction
		}
		return rows, "pdf", err
	default:
		return nil, "", fmt.Errorf("unsupported input format %q (want .csv, .xlsx or .pdf)", ext)
	}
}
