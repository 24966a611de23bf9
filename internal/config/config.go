// Package config resolves the settings for a cohortwatch run. Values are
// layered: built-in defaults, then an optional YAML file, then
// COHORTWATCH_* environment variables, then command-line flags (applied by
// the caller). Validate must be called once all layers are in.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/cohortwatch/internal/classify"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "COHORTWATCH_"

// Config holds all settings for a run.
type Config struct {
	// RunDate is the as-of date (YYYY-MM-DD). Empty means today.
	RunDate string `yaml:"run_date" env:"RUN_DATE" validate:"omitempty,datetime=2006-01-02"`
	Seed    uint64 `yaml:"seed" env:"SEED"`
	// EventCount is the number of synthetic events per generate run.
	EventCount int `yaml:"event_count" env:"EVENT_COUNT" validate:"gte=0"`

	BaseTablePath string `yaml:"base_table_path" env:"BASE_TABLE_PATH" validate:"required"`
	// EventLog is a CSV path, a sqlite:// DSN or a postgres:// DSN.
	EventLog    string `yaml:"event_log" env:"EVENT_LOG" validate:"required"`
	SnapshotDir string `yaml:"snapshot_dir" env:"SNAPSHOT_DIR" validate:"required"`
	// OutputDir is a local directory or s3://bucket/prefix.
	OutputDir string `yaml:"output_dir" env:"OUTPUT_DIR" validate:"required"`

	UnknownEntity string `yaml:"unknown_entity" env:"UNKNOWN_ENTITY" validate:"oneof=ignore fail"`
	MetricsFile   string `yaml:"metrics_file" env:"METRICS_FILE"`
	// SnapshotKeep bounds the SQL snapshot cache. 0 keeps everything.
	SnapshotKeep int `yaml:"snapshot_keep" env:"SNAPSHOT_KEEP" validate:"gte=0"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" validate:"oneof=text json"`

	// Categories overrides the threshold table. A category listed here
	// replaces the built-in rule for that category. File only.
	Categories classify.Rules `yaml:"categories"`
}

// Default returns a Config with the built-in defaults.
func Default() Config {
	return Config{
		Seed:          42,
		EventCount:    6,
		BaseTablePath: "data/cohort.csv",
		EventLog:      "data/events/update_events_log.csv",
		SnapshotDir:   "data/snapshots",
		OutputDir:     "outputs",
		UnknownEntity: "ignore",
		SnapshotKeep:  30,
		LogLevel:      "info",
		LogFormat:     "text",
		Categories:    classify.DefaultRules(),
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped
// when path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the category table.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Categories.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// RunDay returns the as-of date, defaulting to today in local time.
func (c *Config) RunDay() (civil.Date, error) {
	if c.RunDate == "" {
		return civil.DateOf(time.Now()), nil
	}
	d, err := civil.ParseDate(c.RunDate)
	if err != nil {
		return civil.Date{}, fmt.Errorf("run date: %w", err)
	}
	return d, nil
}
