package sqlsink

import (
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"

	model "github.com/okian/gradeetl/internal/domain/model"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"mysql access denied", &mysql.MySQLError{Number: 1045, Message: "Access denied"}, model.ErrAuth},
		{"mysql unknown column", &mysql.MySQLError{Number: 1054, Message: "Unknown column"}, model.ErrSchema},
		{"mysql server gone", &mysql.MySQLError{Number: 2006, Message: "gone away"}, model.ErrConnection},
		{"mysql invalid connection", mysql.ErrInvalidConn, model.ErrConnection},
		{"bad driver connection", driver.ErrBadConn, model.ErrConnection},
		{"snowflake bad login", &gosnowflake.SnowflakeError{Number: 390100, Message: "Incorrect username or password"}, model.ErrAuth},
		{"snowflake missing object", &gosnowflake.SnowflakeError{Number: 2003, Message: "does not exist"}, model.ErrSchema},
		{"sqlite missing column", errors.New("table grades has no column named passed"), model.ErrSchema},
	}
	for _, tc := range cases {
		t.Run("Should classify "+tc.name, func(t *testing.T) {
			assert.True(t, errors.Is(classify(tc.err), tc.want))
		})
	}

	t.Run("Should pass unknown errors through", func(t *testing.T) {
		err := errors.New("disk full")
		assert.Equal(t, err, classify(err))
		assert.Equal(t, "other", model.SinkErrorKind(classify(err)))
	})
}
