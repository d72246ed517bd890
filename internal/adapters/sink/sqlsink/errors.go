package sqlsink

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	model "github.com/okian/gradeetl/internal/domain/model"
)

// ErrUnknownDialect is returned for an unsupported dialect name.
var ErrUnknownDialect = errors.New("unknown sql dialect")

// MySQL server error numbers.
const (
	mysqlDBAccessDenied   = 1044
	mysqlAccessDenied     = 1045
	mysqlBadField         = 1054
	mysqlNoSuchTable      = 1146
	mysqlTruncatedWrong   = 1366
	mysqlServerGone       = 2006
	mysqlServerLost       = 2013
	mysqlWrongValueForCol = 1264
)

// Snowflake error numbers.
const (
	snowflakeObjectMissing = 2003
	snowflakeBadIdentifier = 904
	snowflakeBadLogin      = 390100
	snowflakeBadToken      = 390144
)

var sqliteSchemaMarkers = []string{ //nolint:gochecknoglobals // lookup table
	"no such table",
	"no such column",
	"has no column named",
	"datatype mismatch",
	"constraint failed",
}

// classify maps driver errors onto the sink error kinds.
func classify(err error) error {
	if errors.Is(err, model.ErrConnection) || errors.Is(err, model.ErrSchema) || errors.Is(err, model.ErrAuth) {
		return err
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlAccessDenied, mysqlDBAccessDenied:
			return fmt.Errorf("%w: %w", model.ErrAuth, err)
		case mysqlBadField, mysqlNoSuchTable, mysqlTruncatedWrong, mysqlWrongValueForCol:
			return fmt.Errorf("%w: %w", model.ErrSchema, err)
		case mysqlServerGone, mysqlServerLost:
			return fmt.Errorf("%w: %w", model.ErrConnection, err)
		}
		return err
	}

	var sfErr *gosnowflake.SnowflakeError
	if errors.As(err, &sfErr) {
		switch sfErr.Number {
		case snowflakeBadLogin, snowflakeBadToken:
			return fmt.Errorf("%w: %w", model.ErrAuth, err)
		case snowflakeObjectMissing, snowflakeBadIdentifier:
			return fmt.Errorf("%w: %w", model.ErrSchema, err)
		}
		return err
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", model.ErrConnection, err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range sqliteSchemaMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %w", model.ErrSchema, err)
		}
	}
	return err
}
