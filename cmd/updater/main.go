// Package main is the entry point for the metrics updater. It refreshes the
// financial metrics of every due ticker in the metrics spreadsheet, either
// once from the command line or on a schedule with a small status API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
