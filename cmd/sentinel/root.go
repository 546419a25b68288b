package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/sentinelrisk/hardstop/internal/config"
	"github.com/sentinelrisk/hardstop/internal/metrics"
	"github.com/sentinelrisk/hardstop/internal/storage/sqlite"
)

// Persistent flags and the shared state they build up, mirroring the
// teacher's package-level dbPath/store convention in cmd/bd/main.go.
var (
	dbPath          string
	sourcesPath     string
	localConfigPath string
	evidenceDir     string
	metricsAddr     string
	verbose         bool

	log         *zap.Logger
	db          *sqlite.SQLiteStorage
	watcher     *config.Watcher
	metricsSet  *metrics.Metrics
	tracerClose func(context.Context) error

	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "sentinel ingests supply-chain risk signals into correlated alerts",
	Long: `sentinel is the CLI surface over a local-first supply-chain risk
ingestion pipeline: dedupe, canonicalize, link, score, and correlate raw
feed items into alerts with deterministically replayable evidence.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return bootstrap(cmd.Context())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return shutdown(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "sentinel.db", "Path to the embedded SQLite database")
	rootCmd.PersistentFlags().StringVar(&sourcesPath, "sources", "sources.yaml", "Path to the source-configuration file")
	rootCmd.PersistentFlags().StringVar(&localConfigPath, "local-config", "sentinel.local.toml", "Path to the per-machine override file")
	rootCmd.PersistentFlags().StringVar(&evidenceDir, "evidence-dir", "evidence", "Directory evidence artifacts are written to")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (empty disables)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug-level logging")

	rootCmd.AddCommand(ingestCmd, briefCmd)
}

// bootstrap constructs every shared dependency once per process invocation:
// the zap logger, the embedded database, the source-configuration watcher,
// the prometheus registry, and an otel stdout trace exporter. Failures here
// are configuration/database errors (§6 exit code 1).
func bootstrap(ctx context.Context) error {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	built, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	log = built

	db, err = sqlite.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	watcher, err = config.NewWatcher(sourcesPath, func(err error) {
		log.Warn("source config reload failed", zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("load source config: %w", err)
	}

	if _, err := config.LoadLocalOverrides(localConfigPath); err != nil {
		return fmt.Errorf("load local overrides: %w", err)
	}

	var reg *prometheus.Registry
	metricsSet, reg = metrics.New()
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	exporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return fmt.Errorf("build trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	tracerClose = tp.Shutdown

	return nil
}

func shutdown(ctx context.Context) error {
	if tracerClose != nil {
		_ = tracerClose(ctx)
	}
	if watcher != nil {
		_ = watcher.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	if log != nil {
		_ = log.Sync()
	}
	return nil
}
