package config_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/okian/gradeetl/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Storage.Dir, convey.ShouldEqual, "landing")
				convey.So(cfg.Pipeline.QueueSize, convey.ShouldEqual, 64)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("GRADEETL_LOG_LEVEL", "debug")
			_ = os.Setenv("GRADEETL_STORAGE__BACKEND", "s3")
			_ = os.Setenv("GRADEETL_STORAGE__BUCKET", "grades-landing")
			_ = os.Setenv("GRADEETL_PIPELINE__WORKER_COUNT", "16")
			_ = os.Setenv("GRADEETL_PIPELINE__FAILURE_POLICY", "skip")
			_ = os.Setenv("GRADEETL_SINKS__POSTGRES__ENABLED", "true")
			_ = os.Setenv("GRADEETL_SINKS__POSTGRES__URL", "postgres://etl@localhost/grades")
			_ = os.Setenv("GRADEETL_SYNC__POLL_INTERVAL", "500ms")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then nested sections should be overridden", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.Storage.Backend, convey.ShouldEqual, "s3")
				convey.So(cfg.Storage.Bucket, convey.ShouldEqual, "grades-landing")
				convey.So(cfg.Pipeline.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.Pipeline.FailurePolicy, convey.ShouldEqual, "skip")
				convey.So(cfg.Sinks.Postgres.Enabled, convey.ShouldBeTrue)
				convey.So(cfg.Sinks.Postgres.URL, convey.ShouldEqual, "postgres://etl@localhost/grades")
				convey.So(cfg.Sync.PollInterval, convey.ShouldEqual, 500*time.Millisecond)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
log_format: text
storage:
  backend: dir
  dir: /srv/landing
  include:
    - "csv_data_*.csv"
pipeline:
  table: analytics.grades
  rounding: half_up
sinks:
  sqlite:
    enabled: true
    dsn: /tmp/grades.db
  batch_size: 100
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("GRADEETL_CONFIG", tmpFile)
			_ = os.Setenv("GRADEETL_PIPELINE__TABLE", "grades_override")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values should merge with defaults and env should win", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
				convey.So(cfg.Storage.Dir, convey.ShouldEqual, "/srv/landing")
				convey.So(cfg.Storage.Include, convey.ShouldResemble, []string{"csv_data_*.csv"})
				convey.So(cfg.Pipeline.Table, convey.ShouldEqual, "grades_override")
				convey.So(cfg.Pipeline.Rounding, convey.ShouldEqual, "half_up")
				convey.So(cfg.Pipeline.FailurePolicy, convey.ShouldEqual, "abort")
				convey.So(cfg.Sinks.SQLite.DSN, convey.ShouldEqual, "/tmp/grades.db")
				convey.So(cfg.Sinks.BatchSize, convey.ShouldEqual, 100)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("GRADEETL_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a missing file", func() {
			_ = os.Setenv("GRADEETL_CONFIG", "/nonexistent/gradeetl.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("GRADEETL_PIPELINE__WORKER_COUNT", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When an override breaks validation", func() {
			_ = os.Setenv("GRADEETL_STORAGE__BACKEND", "s3")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "Bucket")
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When a dotenv file supplies credentials", func() {
			dotenv := createTempConfigFile("GRADEETL_SINKS__MYSQL__ENABLED=true\nGRADEETL_SINKS__MYSQL__DSN=etl:secret@tcp(localhost:3306)/grades\n")
			defer func() { _ = os.Remove(dotenv) }()

			_ = os.Setenv("GRADEETL_DOTENV", dotenv)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then the values should be loaded like environment variables", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Sinks.MySQL.Enabled, convey.ShouldBeTrue)
				convey.So(cfg.Sinks.MySQL.DSN, convey.ShouldEqual, "etl:secret@tcp(localhost:3306)/grades")
			})
		})
	})
}

// Helper functions

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "GRADEETL_") {
			_ = os.Unsetenv(name)
		}
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "gradeetl-config-*")
	if err != nil {
		panic(err)
	}
	defer func() { _ = tmpFile.Close() }()

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
