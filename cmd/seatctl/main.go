// Command seatctl is the operator tool for the exam seating service: it
// extracts seating tables from PDFs, imports and exports seating files
// and manages admin credentials and the schema.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
