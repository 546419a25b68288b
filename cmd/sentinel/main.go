// Command sentinel is the thin CLI surface over the ingestion pipeline
// (§6): it never implements pipeline logic itself, only wires flags to
// internal/ingest calls and prints a human-readable summary.
package main

import (
	"fmt"
	"os"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}
