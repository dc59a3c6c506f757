package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/exam-seating/internal/extractor"
	"github.com/iliyamo/exam-seating/internal/service"
)

func newImportCmd(g *globals) *cobra.Command {
	var (
		strict bool
		room   string
		gap    float64
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a seating file (.csv, .xlsx or .pdf)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, source, err := readRows(args[0], gap)
			if err != nil {
				return err
			}
			fillRoom(rows, room)

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			stores, err := g.openStores(ctx)
			if err != nil {
				return err
			}
			defer stores.Close()
			_, importer, cleanup := g.services(stores)
			defer cleanup()

			res, err := importer.Import(ctx, rows, service.ImportOptions{Strict: strict, Source: source, Actor: "seatctl"})
			if res != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if eerr := enc.Encode(res); eerr != nil && err == nil {
					err = eerr
				}
			}
			if errors.Is(err, service.ErrMalformedInput) {
				return fmt.Errorf("import rejected: %d diagnostics", len(res.Diagnostics))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "reject the whole file on any row problem")
	cmd.Flags().StringVar(&room, "room", "", "room code for rows without one")
	cmd.Flags().Float64Var(&gap, "gap", extractor.DefaultCellGap, "PDF cell gap in points")
	return cmd
}

func newExportCmd(g *globals) *cobra.Command {
	var room, outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export one room as CSV or XLSX",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			stores, err := g.openStores(ctx)
			if err != nil {
				return err
			}
			defer stores.Close()
			seating, _, cleanup := g.services(stores)
			defer cleanup()

			_, rows, err := seating.ExportRoomByCode(ctx, room)
			if err != nil {
				return err
			}
			return writeRows(cmd.OutOrStdout(), outPath, rows)
		},
	}
	cmd.Flags().StringVar(&room, "room", "", "room code")
	cmd.Flags().StringVar(&outPath, "out", "", "output file (.csv or .xlsx); CSV on stdout when empty")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}
