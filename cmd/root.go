package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/abhisek/cohortwatch/internal/artifact"
	"github.com/abhisek/cohortwatch/internal/classify"
	"github.com/abhisek/cohortwatch/internal/config"
	"github.com/abhisek/cohortwatch/internal/eventlog"
	"github.com/abhisek/cohortwatch/internal/logging"
	"github.com/abhisek/cohortwatch/internal/metrics"
	"github.com/abhisek/cohortwatch/internal/pipeline"
	"github.com/abhisek/cohortwatch/internal/replay"
	"github.com/abhisek/cohortwatch/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "cohortwatch",
	Short: "Point-in-time cohort tracking from an append-only event log",
	Long: `cohortwatch keeps a static base table of entities plus an append-only log of
dated field updates. It reconstructs the table as of any date, classifies each
entity as On Track, Behind or At Risk, and writes dated CSV reports.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("config", "", "Path to a YAML config file")
	f.String("run-date", "", "As-of date, YYYY-MM-DD (default today)")
	f.String("base-table", "", "Path to the base table CSV")
	f.String("event-log", "", "Event log: CSV path, sqlite://<path> or postgres:// DSN")
	f.String("snapshot-dir", "", "Snapshot destination: directory or s3://bucket/prefix")
	f.String("output-dir", "", "Report destination: directory or s3://bucket/prefix")
	f.String("unknown-entity", "", "Events for entities missing from the base table: ignore or fail")
	f.String("metrics-file", "", "Write Prometheus metrics to this file after a successful run")
	f.String("log-level", "", "Log level: debug, info, warn, error")
	f.String("log-format", "", "Log format: text or json")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(versionCmd)
}

// stringFlags maps flag names to the config fields they override.
func stringFlags(cfg *config.Config) map[string]*string {
	return map[string]*string{
		"run-date":       &cfg.RunDate,
		"base-table":     &cfg.BaseTablePath,
		"event-log":      &cfg.EventLog,
		"snapshot-dir":   &cfg.SnapshotDir,
		"output-dir":     &cfg.OutputDir,
		"unknown-entity": &cfg.UnknownEntity,
		"metrics-file":   &cfg.MetricsFile,
		"log-level":      &cfg.LogLevel,
		"log-format":     &cfg.LogFormat,
	}
}

// loadConfig layers defaults, the config file, the environment and the
// flags that were set explicitly, then validates the result.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	for name, dst := range stringFlags(&cfg) {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed, _ = cmd.Flags().GetUint64("seed")
	}
	if cmd.Flags().Changed("count") {
		cfg.EventCount, _ = cmd.Flags().GetInt("count")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// env is everything a command needs, built from the resolved config.
type env struct {
	cfg    config.Config
	log    *slog.Logger
	runner *pipeline.Runner
	db     *store.Store // nil for a CSV event log
}

func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

// setup resolves the config and opens the event log. With create set, a
// missing CSV log is created with only its header.
func setup(cmd *cobra.Command, create bool) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	policy, err := replay.ParsePolicy(cfg.UnknownEntity)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, log: log}
	var backend eventlog.Backend
	if store.IsDSN(cfg.EventLog) {
		db, err := store.Open(cfg.EventLog)
		if err != nil {
			return nil, fmt.Errorf("open event store: %w", err)
		}
		e.db = db
		backend = db.EventBackend()
	} else {
		f := eventlog.NewCSVFile(cfg.EventLog)
		if create {
			if err := f.Ensure(); err != nil {
				return nil, err
			}
		}
		backend = f
	}

	e.runner = &pipeline.Runner{
		Log:        log,
		BasePath:   cfg.BaseTablePath,
		Events:     eventlog.NewStore(backend),
		Engine:     replay.New(replay.Config{UnknownEntity: policy}),
		Classifier: classify.New(cfg.Categories),
	}
	if e.db != nil {
		e.runner.Cache = e.db.SnapshotRepo()
		e.runner.CacheKeep = cfg.SnapshotKeep
	}
	if cfg.MetricsFile != "" {
		e.runner.Metrics = metrics.New()
		e.runner.MetricsFile = cfg.MetricsFile
	}
	return e, nil
}

// openSinks attaches the artifact destinations to the runner.
func (e *env) openSinks(ctx context.Context) error {
	var err error
	if e.runner.Snapshots, err = artifact.Open(ctx, e.cfg.SnapshotDir); err != nil {
		return fmt.Errorf("open snapshot dir: %w", err)
	}
	if e.runner.Outputs, err = artifact.Open(ctx, e.cfg.OutputDir); err != nil {
		return fmt.Errorf("open output dir: %w", err)
	}
	return nil
}
