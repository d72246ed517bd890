// Package sink defines the load contract and the column layout shared by
// every table writer.
package sink

import (
	"context"

	model "github.com/okian/gradeetl/internal/domain/model"
)

// Sink replaces the contents of a table with a record set.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// ReplaceTable overwrites table with set inside one transaction. Either
	// all records are visible afterwards or the previous contents are kept.
	ReplaceTable(ctx context.Context, table string, set model.RecordSet) error
}

// Destination column names, in insert order.
const (
	ColumnID       = "id"
	ColumnYear     = "year"
	ColumnMidterm1 = "midterm1"
	ColumnMidterm2 = "midterm2"
	ColumnMidterm3 = "midterm3"
	ColumnPassed   = "passed"
)

// Columns lists the destination columns in insert order.
func Columns() []string {
	return []string{ColumnID, ColumnYear, ColumnMidterm1, ColumnMidterm2, ColumnMidterm3, ColumnPassed}
}

// Values returns r's column values in Columns order.
func Values(r model.Record) []any {
	return []any{r.ID, string(r.Year), r.Midterm1, r.Midterm2, r.Midterm3, r.Passed}
}
