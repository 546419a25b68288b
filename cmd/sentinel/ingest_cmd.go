package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sentinelrisk/hardstop/internal/types"
)

// Styles for the ingest command's human-readable summary line, in the
// teacher's bd-examples convention of package-level lipgloss.NewStyle vars.
var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"})
	boldStyle = lipgloss.NewStyle().Bold(true)
)

var (
	ingestLimit  int
	ingestTier   string
	ingestSource string
	ingestSince  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch and process a batch of NEW raw items into alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		sinceHours, err := parseSinceHours(ingestSince)
		if err != nil {
			return err
		}

		tier, err := parseTier(ingestTier)
		if err != nil {
			return err
		}

		orch := newOrchestrator()
		summary, err := orch.Ingest(cmd.Context(), ingestLimit, tier, ingestSource, sinceHours)
		if err != nil {
			exitCode = 1
			return err
		}

		line := fmt.Sprintf("processed=%d events=%d alerts=%d errors=%d",
			summary.Processed, summary.Events, summary.Alerts, summary.Errors)
		if summary.Errors > 0 {
			fmt.Println(boldStyle.Render("ingest: ") + warnStyle.Render(line))
			exitCode = 2
		} else {
			fmt.Println(boldStyle.Render("ingest: ") + okStyle.Render(line))
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestLimit, "limit", 100, "Maximum number of raw items to process")
	ingestCmd.Flags().StringVar(&ingestTier, "tier", "local", "Minimum source tier to admit: global, regional, or local")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "Restrict to a single source id (empty admits all)")
	ingestCmd.Flags().StringVar(&ingestSince, "since", "24h", "Only admit items fetched within this window, e.g. 24h, 72h, 7d")
}

// parseTier maps the --tier flag's value to types.Tier, defaulting the
// empty string to the most permissive (local) minimum tier.
func parseTier(s string) (types.Tier, error) {
	switch s {
	case "", "local":
		return types.TierLocal, nil
	case "regional":
		return types.TierRegional, nil
	case "global":
		return types.TierGlobal, nil
	default:
		return "", fmt.Errorf("invalid --tier %q: want global, regional, or local", s)
	}
}
