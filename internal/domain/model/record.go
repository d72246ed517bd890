// Package model contains domain models passed between layers.
package model

import "slices"

// Source column names as they appear in the CSV header.
const (
	ColumnID       = "ID"
	ColumnYear     = "Year"
	ColumnMidterm1 = "Midterm1"
	ColumnMidterm2 = "Midterm2"
	ColumnMidterm3 = "Midterm3"
	ColumnPassed   = "Final Exam Pass?"
)

// SourceColumns is the expected column set, in rule order.
var SourceColumns = []string{ //nolint:gochecknoglobals // fixed schema
	ColumnID,
	ColumnYear,
	ColumnMidterm1,
	ColumnMidterm2,
	ColumnMidterm3,
	ColumnPassed,
}

// Cell is one raw value. Present is false for missing columns, short rows
// and NA markers.
type Cell struct {
	Text    string
	Present bool
}

// RawRow maps a source column name to its raw cell.
type RawRow map[string]Cell

// Get returns the cell for column, absent if the column is not in the row.
func (r RawRow) Get(column string) Cell {
	return r[column]
}

// Year is the enumerated class year.
type Year string

const (
	Freshman  Year = "Freshman"
	Sophomore Year = "Sophomore"
	Junior    Year = "Junior"
	Senior    Year = "Senior"
)

// Years lists the class years by their numeric code minus one.
var Years = []Year{Freshman, Sophomore, Junior, Senior} //nolint:gochecknoglobals // fixed enum

// Valid reports whether y is one of the four class years.
func (y Year) Valid() bool {
	return slices.Contains(Years, y)
}

// Record is a canonical, fully validated grade row.
type Record struct {
	ID       string // 6-digit zero padded, 000001..999999
	Year     Year
	Midterm1 float64 // [0,100], half-point granularity
	Midterm2 float64
	Midterm3 float64
	Passed   bool
}

// RecordSet is unique by ID and sorted ascending by ID. Treat as read-only.
type RecordSet []Record

// Len returns the number of records.
func (s RecordSet) Len() int { return len(s) }

// IDs returns the record ids in set order.
func (s RecordSet) IDs() []string {
	ids := make([]string, len(s))
	for i, r := range s {
		ids[i] = r.ID
	}
	return ids
}

// Lookup returns the record with id.
func (s RecordSet) Lookup(id string) (Record, bool) {
	i, ok := slices.BinarySearchFunc(s, id, func(r Record, target string) int {
		switch {
		case r.ID < target:
			return -1
		case r.ID > target:
			return 1
		default:
			return 0
		}
	})
	if !ok {
		return Record{}, false
	}
	return s[i], true
}
