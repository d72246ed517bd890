// Package config defines the gradeetl configuration and its defaults.
//
// Conventions:
// - Every setting has a koanf key; nested sections map to nested structs.
// - Defaults live in New; Load layers file and environment on top.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// LogFormat selects json or text output.
	LogFormat string `koanf:"log_format" validate:"oneof=json text"`

	Storage  Storage  `koanf:"storage"`
	Pipeline Pipeline `koanf:"pipeline"`
	Sinks    Sinks    `koanf:"sinks"`
	Metrics  Metrics  `koanf:"metrics"`
	Generate Generate `koanf:"generate"`
	Sync     Sync     `koanf:"sync"`
}

// Storage selects where source files are listed from.
type Storage struct {
	// Backend is s3 or dir.
	Backend  string `koanf:"backend" validate:"oneof=s3 dir"`
	Bucket   string `koanf:"bucket" validate:"required_if=Backend s3"`
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint" validate:"omitempty,url"`
	Prefix   string `koanf:"prefix"`
	// Dir is the landing directory for the dir backend.
	Dir string `koanf:"dir" validate:"required_if=Backend dir"`
	// Include holds glob patterns; empty means every file.
	Include []string `koanf:"include"`
}

// Pipeline tunes a run.
type Pipeline struct {
	Table         string `koanf:"table" validate:"required"`
	WorkerCount   int    `koanf:"worker_count" validate:"gte=1"`
	QueueSize     int    `koanf:"queue_size" validate:"gte=1"`
	FailurePolicy string `koanf:"failure_policy" validate:"oneof=abort skip"`
	Rounding      string `koanf:"rounding" validate:"oneof=half_even half_up"`
	// LedgerPath is the YAML file of processed names; empty disables it.
	// Sinks are full-table replaced, so with a ledger each run leaves only
	// the records of the files it loaded. Rows from earlier runs are gone.
	LedgerPath string `koanf:"ledger_path"`
}

// Sinks enables the load targets.
type Sinks struct {
	Postgres  Postgres `koanf:"postgres"`
	MySQL     DSNSink  `koanf:"mysql"`
	SQLite    DSNSink  `koanf:"sqlite"`
	Snowflake DSNSink  `koanf:"snowflake"`
	// BatchSize is the rows per INSERT for database/sql sinks.
	BatchSize int `koanf:"batch_size" validate:"gte=1"`
}

// Postgres configures the COPY based sink.
type Postgres struct {
	Enabled  bool   `koanf:"enabled"`
	URL      string `koanf:"url" validate:"required_if=Enabled true"`
	MaxConns int32  `koanf:"max_conns" validate:"gte=0"`
}

// DSNSink configures a database/sql sink.
type DSNSink struct {
	Enabled bool   `koanf:"enabled"`
	DSN     string `koanf:"dsn" validate:"required_if=Enabled true"`
}

// Metrics configures the Pushgateway.
type Metrics struct {
	PushURL string `koanf:"push_url" validate:"omitempty,url"`
	Job     string `koanf:"job" validate:"required"`
}

// Generate configures the synthetic data generator.
type Generate struct {
	Dir      string `koanf:"dir" validate:"required"`
	MaxFiles int    `koanf:"max_files" validate:"gte=1"`
	MinRows  int    `koanf:"min_rows" validate:"gte=1"`
	MaxRows  int    `koanf:"max_rows" validate:"gtefield=MinRows"`
	// Seed makes output reproducible; 0 means random.
	Seed uint64 `koanf:"seed"`
}

// Sync configures staging of local files.
type Sync struct {
	LocalDir     string        `koanf:"local_dir" validate:"required"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`
	MaxWait      time.Duration `koanf:"max_wait" validate:"gtefield=PollInterval"`
}

// Enabled reports whether any sink is switched on.
func (s Sinks) Enabled() bool {
	return s.Postgres.Enabled || s.MySQL.Enabled || s.SQLite.Enabled || s.Snowflake.Enabled
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Storage: Storage{
			Backend: "dir",
			Region:  "us-east-1",
			Dir:     "landing",
		},
		Pipeline: Pipeline{
			Table:         "grades",
			WorkerCount:   runtime.NumCPU(),
			QueueSize:     64,
			FailurePolicy: "abort",
			Rounding:      "half_even",
		},
		Sinks: Sinks{
			Postgres:  Postgres{MaxConns: 4},
			BatchSize: 500,
		},
		Metrics: Metrics{
			Job: "gradeetl",
		},
		Generate: Generate{
			Dir:      "data",
			MaxFiles: 10,
			MinRows:  5,
			MaxRows:  500,
		},
		Sync: Sync{
			LocalDir:     "data",
			PollInterval: 2 * time.Second,
			MaxWait:      2 * time.Minute,
		},
	}
}

// RequireSinks fails when no sink is enabled.
func (c *Config) RequireSinks() error {
	if !c.Sinks.Enabled() {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrNoSinks)
	}
	return nil
}
