// Package sqlsink replaces tables through database/sql for MySQL, SQLite and
// Snowflake.
package sqlsink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	sink "github.com/okian/gradeetl/internal/adapters/sink"
	model "github.com/okian/gradeetl/internal/domain/model"
	"github.com/okian/gradeetl/pkg/logger"
)

const (
	defaultBatchSize = 500
	pingTimeout      = 10 * time.Second
)

// Dialect captures what differs between the supported databases.
type Dialect struct {
	// Name is the sink name used in logs and metrics.
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// CreateTable is a format string taking the quoted table name.
	CreateTable string
	// Quote renders one identifier part.
	Quote func(string) string
}

// Supported dialects.
var (
	MySQL = Dialect{ //nolint:gochecknoglobals // immutable dialect table
		Name:   "mysql",
		Driver: "mysql",
		CreateTable: `CREATE TABLE IF NOT EXISTS %s (
	id CHAR(6) NOT NULL PRIMARY KEY,
	year VARCHAR(16) NOT NULL,
	midterm1 DOUBLE NOT NULL,
	midterm2 DOUBLE NOT NULL,
	midterm3 DOUBLE NOT NULL,
	passed BOOLEAN NOT NULL
)`,
		Quote: func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
	}
	SQLite = Dialect{ //nolint:gochecknoglobals // immutable dialect table
		Name:   "sqlite",
		Driver: "sqlite",
		CreateTable: `CREATE TABLE IF NOT EXISTS %s (
	id TEXT NOT NULL PRIMARY KEY,
	year TEXT NOT NULL,
	midterm1 REAL NOT NULL,
	midterm2 REAL NOT NULL,
	midterm3 REAL NOT NULL,
	passed INTEGER NOT NULL
)`,
		Quote: doubleQuote,
	}
	Snowflake = Dialect{ //nolint:gochecknoglobals // immutable dialect table
		Name:   "snowflake",
		Driver: "snowflake",
		CreateTable: `CREATE TABLE IF NOT EXISTS %s (
	id CHAR(6) NOT NULL PRIMARY KEY,
	year VARCHAR(16) NOT NULL,
	midterm1 FLOAT NOT NULL,
	midterm2 FLOAT NOT NULL,
	midterm3 FLOAT NOT NULL,
	passed BOOLEAN NOT NULL
)`,
		// Unquoted so Snowflake folds names to upper case like its own tools.
		Quote: func(s string) string { return s },
	}
)

// DialectByName returns the dialect for name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case MySQL.Name:
		return MySQL, nil
	case SQLite.Name, "sqlite3":
		return SQLite, nil
	case Snowflake.Name:
		return Snowflake, nil
	default:
		return Dialect{}, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
}

func doubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Sink writes record sets through a *sql.DB.
type Sink struct {
	db        *sql.DB
	dialect   Dialect
	name      string
	batchSize int
	logger    logger.Logger
}

// New returns a Sink for db speaking dialect.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Sink {
	s := &Sink{
		db:        db,
		dialect:   dialect,
		name:      dialect.Name,
		batchSize: defaultBatchSize,
		logger:    logger.Get().Named(dialect.Name),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens and pings a database for dialect.
func Open(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", model.ErrConnection, dialect.Name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classify(err)
	}
	return db, nil
}

// Name implements sink.Sink.
func (s *Sink) Name() string { return s.name }

// ReplaceTable creates table if needed, deletes its rows and inserts set in
// batches, all in one transaction. DELETE is used instead of TRUNCATE since
// MySQL commits implicitly on TRUNCATE.
func (s *Sink) ReplaceTable(ctx context.Context, table string, set model.RecordSet) error {
	quoted := s.quoteTable(table)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail(table, err)
	}

	if err := s.replace(ctx, tx, quoted, set); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.logger.Warn(ctx, "rollback failed", logger.String("table", table), logger.Error(rerr))
		}
		return s.fail(table, err)
	}
	if err := tx.Commit(); err != nil {
		return s.fail(table, err)
	}

	s.logger.Info(ctx, "table replaced", logger.String("table", table), logger.Int("records", set.Len()))
	return nil
}

func (s *Sink) replace(ctx context.Context, tx *sql.Tx, quoted string, set model.RecordSet) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(s.dialect.CreateTable, quoted)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	query, args, err := squirrel.Delete(quoted).ToSql()
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	for start := 0; start < set.Len(); start += s.batchSize {
		end := min(start+s.batchSize, set.Len())
		qb := squirrel.Insert(quoted).Columns(s.columns()...).PlaceholderFormat(squirrel.Question)
		for _, r := range set[start:end] {
			qb = qb.Values(sink.Values(r)...)
		}
		query, args, err := qb.ToSql()
		if err != nil {
			return fmt.Errorf("building insert query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert rows %d..%d: %w", start, end, err)
		}
	}
	return nil
}

// Count returns the number of rows in table.
func (s *Sink) Count(ctx context.Context, table string) (int, error) {
	query, args, err := squirrel.Select("COUNT(*)").From(s.quoteTable(table)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, s.fail(table, err)
	}
	return n, nil
}

func (s *Sink) columns() []string {
	cols := sink.Columns()
	for i, c := range cols {
		cols[i] = s.dialect.Quote(c)
	}
	return cols
}

func (s *Sink) quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = s.dialect.Quote(p)
	}
	return strings.Join(parts, ".")
}

func (s *Sink) fail(table string, err error) error {
	return &model.SinkError{Sink: s.name, Table: table, Err: classify(err)}
}
