// Package postgres replaces a Postgres table with COPY inside a transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	sink "github.com/okian/gradeetl/internal/adapters/sink"
	model "github.com/okian/gradeetl/internal/domain/model"
	"github.com/okian/gradeetl/pkg/logger"
)

const (
	defaultName     = "postgres"
	defaultMaxConns = 4
	connectTimeout  = 10 * time.Second
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
	id CHAR(6) PRIMARY KEY,
	year TEXT NOT NULL,
	midterm1 DOUBLE PRECISION NOT NULL,
	midterm2 DOUBLE PRECISION NOT NULL,
	midterm3 DOUBLE PRECISION NOT NULL,
	passed BOOLEAN NOT NULL
)`

// DB is the pgx-compatible handle the sink writes through. *pgxpool.Pool
// and pgxmock pools satisfy it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Sink writes record sets to Postgres.
type Sink struct {
	db     DB
	name   string
	logger logger.Logger
}

// New returns a Sink writing through db.
func New(db DB, opts ...Option) *Sink {
	s := &Sink{
		db:     db,
		name:   defaultName,
		logger: logger.Get().Named("postgres"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a pool for url and verifies it with a ping.
func Connect(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse url: %w", model.ErrConnection, err)
	}
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	cfg.MaxConns = maxConns

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, classify(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classify(err)
	}
	return pool, nil
}

// Name implements sink.Sink.
func (s *Sink) Name() string { return s.name }

// ReplaceTable creates table if needed, truncates it and copies set in, all
// in one transaction.
func (s *Sink) ReplaceTable(ctx context.Context, table string, set model.RecordSet) error {
	ident := identifier(table)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return s.fail(table, err)
	}

	if err := s.replace(ctx, tx, ident, set); err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
			s.logger.Warn(ctx, "rollback failed", logger.String("table", table), logger.Error(rerr))
		}
		return s.fail(table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return s.fail(table, err)
	}

	s.logger.Info(ctx, "table replaced", logger.String("table", table), logger.Int("records", set.Len()))
	return nil
}

func (s *Sink) replace(ctx context.Context, tx pgx.Tx, ident pgx.Identifier, set model.RecordSet) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf(createTableSQL, ident.Sanitize())); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+ident.Sanitize()); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}

	n, err := tx.CopyFrom(ctx, ident, sink.Columns(), pgx.CopyFromSlice(set.Len(), func(i int) ([]any, error) {
		return sink.Values(set[i]), nil
	}))
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if n != int64(set.Len()) {
		return fmt.Errorf("%w: copied %d of %d rows", model.ErrSchema, n, set.Len())
	}
	return nil
}

func (s *Sink) fail(table string, err error) error {
	return &model.SinkError{Sink: s.name, Table: table, Err: classify(err)}
}

// identifier splits an optionally schema qualified table name.
func identifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

// classify maps driver errors onto the sink error kinds using SQLSTATE classes.
func classify(err error) error {
	if errors.Is(err, model.ErrConnection) || errors.Is(err, model.ErrSchema) || errors.Is(err, model.ErrAuth) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "28"):
			return fmt.Errorf("%w: %w", model.ErrAuth, err)
		case strings.HasPrefix(pgErr.Code, "42"), strings.HasPrefix(pgErr.Code, "22"):
			return fmt.Errorf("%w: %w", model.ErrSchema, err)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
			return fmt.Errorf("%w: %w", model.ErrConnection, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", model.ErrConnection, err)
	}
	return err
}
