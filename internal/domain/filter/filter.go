// Package filter turns normalizer outcomes into canonical records or rejections.
package filter

import (
	model "github.com/okian/gradeetl/internal/domain/model"
	normalize "github.com/okian/gradeetl/internal/domain/normalize"
)

// Accept returns the canonical record when every field rule passed, or the
// validation error of the first failing field. There is no partial output.
func Accept(out normalize.Outcome) (model.Record, error) {
	if out.Valid() {
		return out.Record, nil
	}
	if f, ok := out.FirstFailure(); ok && f.Err != nil {
		return model.Record{}, f.Err
	}
	return model.Record{}, &model.ValidationError{Field: "row", Message: "incomplete outcome"}
}

// Report counts what happened to the rows of one file.
type Report struct {
	Parsed   int
	Accepted int
	// Rejected is keyed by the column that invalidated the row.
	Rejected map[string]int
}

// RejectedTotal sums the rejections over all columns.
func (r Report) RejectedTotal() int {
	total := 0
	for _, n := range r.Rejected {
		total += n
	}
	return total
}

// Rows normalizes and filters rows in order, keeping accepted records in
// input order. Rejected rows are dropped and only counted.
func Rows(n *normalize.Normalizer, rows []model.RawRow) ([]model.Record, Report) {
	report := Report{Parsed: len(rows), Rejected: map[string]int{}}
	records := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		out := n.Normalize(row)
		rec, err := Accept(out)
		if err != nil {
			column := "row"
			if f, ok := out.FirstFailure(); ok {
				column = f.Column
			}
			report.Rejected[column]++
			continue
		}
		records = append(records, rec)
	}
	report.Accepted = len(records)
	return records, report
}
