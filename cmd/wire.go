package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/gradeetl/internal/adapters/sink"
	"github.com/okian/gradeetl/internal/adapters/sink/postgres"
	"github.com/okian/gradeetl/internal/adapters/sink/sqlsink"
	"github.com/okian/gradeetl/internal/adapters/storage"
	"github.com/okian/gradeetl/internal/adapters/storage/dirstore"
	"github.com/okian/gradeetl/internal/adapters/storage/s3store"
	service "github.com/okian/gradeetl/internal/app"
	"github.com/okian/gradeetl/internal/config"
	"github.com/okian/gradeetl/internal/domain/normalize"
)

// buildStore returns the landing store selected by storage.backend.
func buildStore(ctx context.Context, cfg *config.Config) (storage.Stager, error) {
	switch cfg.Storage.Backend {
	case "s3":
		opts := []s3store.Option{
			s3store.WithRegion(cfg.Storage.Region),
			s3store.WithPrefix(cfg.Storage.Prefix),
		}
		if cfg.Storage.Endpoint != "" {
			opts = append(opts, s3store.WithEndpoint(cfg.Storage.Endpoint))
		}
		return s3store.New(ctx, cfg.Storage.Bucket, opts...)
	case "dir":
		return dirstore.New(cfg.Storage.Dir), nil
	default:
		return nil, fmt.Errorf("%w: storage backend %q", config.ErrInvalidConfig, cfg.Storage.Backend)
	}
}

// buildSinks connects every enabled sink. The returned func closes them.
func buildSinks(ctx context.Context, cfg *config.Config) ([]sink.Sink, func(), error) {
	var (
		sinks   []sink.Sink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if pg := cfg.Sinks.Postgres; pg.Enabled {
		pool, err := postgres.Connect(ctx, pg.URL, pg.MaxConns)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		sinks = append(sinks, postgres.New(pool))
	}

	dsnSinks := []struct {
		dialect sqlsink.Dialect
		cfg     config.DSNSink
	}{
		{sqlsink.MySQL, cfg.Sinks.MySQL},
		{sqlsink.SQLite, cfg.Sinks.SQLite},
		{sqlsink.Snowflake, cfg.Sinks.Snowflake},
	}
	for _, s := range dsnSinks {
		if !s.cfg.Enabled {
			continue
		}
		db, err := sqlsink.Open(ctx, s.dialect, s.cfg.DSN)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		sinks = append(sinks, sqlsink.New(db, s.dialect, sqlsink.WithBatchSize(cfg.Sinks.BatchSize)))
	}

	if len(sinks) == 0 {
		return nil, nil, errors.Join(config.ErrInvalidConfig, config.ErrNoSinks)
	}
	return sinks, closeAll, nil
}

// pipelineOptions maps the pipeline section onto service options.
func pipelineOptions(cfg *config.Config) ([]service.Option, error) {
	policy, err := service.ParseFailurePolicy(cfg.Pipeline.FailurePolicy)
	if err != nil {
		return nil, err
	}
	rounding, err := normalize.ParseRounding(cfg.Pipeline.Rounding)
	if err != nil {
		return nil, err
	}
	return []service.Option{
		service.WithTable(cfg.Pipeline.Table),
		service.WithWorkerCount(cfg.Pipeline.WorkerCount),
		service.WithQueueSize(cfg.Pipeline.QueueSize),
		service.WithFailurePolicy(policy),
		service.WithInclude(cfg.Storage.Include...),
		service.WithNormalizer(normalize.New(normalize.WithRounding(rounding))),
	}, nil
}
