package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentinelrisk/hardstop/internal/determinism"
	"github.com/sentinelrisk/hardstop/internal/ingest"
)

var (
	briefToday  bool
	briefSince  string
	briefFormat string
)

var briefCmd = &cobra.Command{
	Use:   "brief",
	Short: "Query alerts touched within a recent window (data only, no rendering)",
	RunE: func(cmd *cobra.Command, args []string) error {
		since := briefSince
		if briefToday && since == "" {
			since = "24h"
		}
		if since == "" {
			since = "24h"
		}
		sinceHours, err := parseSinceHours(since)
		if err != nil {
			return err
		}

		day, err := ingest.BriefQuery(cmd.Context(), db, sinceHours, briefFormat, determinism.NewLiveClock())
		if err != nil {
			exitCode = 1
			return err
		}

		enc, err := json.MarshalIndent(day, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	},
}

func init() {
	briefCmd.Flags().BoolVar(&briefToday, "today", false, "Shorthand for --since 24h")
	briefCmd.Flags().StringVar(&briefSince, "since", "", "Window to query, e.g. 24h, 72h, 7d (defaults to 24h)")
	briefCmd.Flags().StringVar(&briefFormat, "format", "json", "Output format tag to embed in the query result: md or json")
}
