package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sink "github.com/okian/gradeetl/internal/adapters/sink"
	postgres "github.com/okian/gradeetl/internal/adapters/sink/postgres"
	model "github.com/okian/gradeetl/internal/domain/model"
	"github.com/okian/gradeetl/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func records() model.RecordSet {
	return model.RecordSet{
		{ID: "000007", Year: model.Sophomore, Midterm1: 85.5, Midterm2: 92, Midterm3: 60, Passed: true},
		{ID: "000042", Year: model.Senior, Midterm1: 70, Midterm2: 71, Midterm3: 72.5, Passed: false},
	}
}

func TestSink_ReplaceTable(t *testing.T) {
	t.Run("Should create, truncate and copy in one transaction", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		s := postgres.New(mock)
		mock.ExpectBegin()
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "grades"`).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mock.ExpectExec(`TRUNCATE TABLE "grades"`).
			WillReturnResult(pgxmock.NewResult("TRUNCATE TABLE", 0))
		mock.ExpectCopyFrom(pgx.Identifier{"grades"}, sink.Columns()).
			WillReturnResult(2)
		mock.ExpectCommit()
		err = s.ReplaceTable(context.Background(), "grades", records())
		assert.NoError(t, err)
		assert.Equal(t, "postgres", s.Name())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should quote schema qualified tables", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		s := postgres.New(mock, postgres.WithName("warehouse"))
		mock.ExpectBegin()
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "analytics"\."grades"`).
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mock.ExpectExec(`TRUNCATE TABLE "analytics"\."grades"`).
			WillReturnResult(pgxmock.NewResult("TRUNCATE TABLE", 0))
		mock.ExpectCopyFrom(pgx.Identifier{"analytics", "grades"}, sink.Columns()).
			WillReturnResult(0)
		mock.ExpectCommit()
		err = s.ReplaceTable(context.Background(), "analytics.grades", model.RecordSet{})
		assert.NoError(t, err)
		assert.Equal(t, "warehouse", s.Name())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should roll back and report schema errors when copy fails", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		s := postgres.New(mock)
		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mock.ExpectExec("TRUNCATE TABLE").
			WillReturnResult(pgxmock.NewResult("TRUNCATE TABLE", 0))
		mock.ExpectCopyFrom(pgx.Identifier{"grades"}, sink.Columns()).
			WillReturnError(&pgconn.PgError{Code: "42703", Message: `column "passed" does not exist`})
		mock.ExpectRollback()
		err = s.ReplaceTable(context.Background(), "grades", records())
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrSink))
		assert.True(t, errors.Is(err, model.ErrSchema))
		var serr *model.SinkError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, "grades", serr.Table)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should report auth errors from begin", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		s := postgres.New(mock)
		mock.ExpectBegin().WillReturnError(&pgconn.PgError{Code: "28P01", Message: "password authentication failed"})
		err = s.ReplaceTable(context.Background(), "grades", records())
		assert.True(t, errors.Is(err, model.ErrAuth))
		assert.Equal(t, "auth", model.SinkErrorKind(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should report connection errors from commit", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		s := postgres.New(mock)
		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mock.ExpectExec("TRUNCATE TABLE").
			WillReturnResult(pgxmock.NewResult("TRUNCATE TABLE", 0))
		mock.ExpectCopyFrom(pgx.Identifier{"grades"}, sink.Columns()).
			WillReturnResult(2)
		mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})
		err = s.ReplaceTable(context.Background(), "grades", records())
		assert.True(t, errors.Is(err, model.ErrConnection))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should fail when fewer rows were copied than sent", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		s := postgres.New(mock)
		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").
			WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mock.ExpectExec("TRUNCATE TABLE").
			WillReturnResult(pgxmock.NewResult("TRUNCATE TABLE", 0))
		mock.ExpectCopyFrom(pgx.Identifier{"grades"}, sink.Columns()).
			WillReturnResult(1)
		mock.ExpectRollback()
		err = s.ReplaceTable(context.Background(), "grades", records())
		assert.True(t, errors.Is(err, model.ErrSchema))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConnect(t *testing.T) {
	t.Run("Should reject a malformed url as a connection error", func(t *testing.T) {
		_, err := postgres.Connect(context.Background(), "postgres://%zz", 2)
		require.Error(t, err)
		assert.True(t, errors.Is(err, model.ErrConnection))
	})
}
