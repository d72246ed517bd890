package gendata

import (
	"math/rand/v2"
	"strconv"

	model "github.com/okian/gradeetl/internal/domain/model"
)

// Mutation rewrites one cell value. An empty result is written as an empty
// cell, which readers treat as missing.
type Mutation func(value string) string

// Share of rows receiving a corrupted cell: between 1/100 and 1/20.
const (
	minCorruptDivisor = 100
	maxCorruptDivisor = 20
	idTrim            = 3
	midtermShift      = 100
)

// Corruptor damages random cells using per-column mutation tables.
type Corruptor struct {
	rng    *rand.Rand
	tables map[string][]Mutation
}

// CorruptorOption applies a configuration option to the Corruptor.
type CorruptorOption func(*Corruptor)

// WithMutations replaces the mutation table of column.
func WithMutations(column string, mutations ...Mutation) CorruptorOption {
	return func(c *Corruptor) {
		if len(mutations) == 0 {
			delete(c.tables, column)
			return
		}
		c.tables[column] = mutations
	}
}

// NewCorruptor returns a Corruptor drawing from rng with the default tables.
func NewCorruptor(rng *rand.Rand, opts ...CorruptorOption) *Corruptor {
	c := &Corruptor{rng: rng, tables: DefaultMutations()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultMutations returns the standard damage for each source column.
func DefaultMutations() map[string][]Mutation {
	missing := Const("")
	midterm := []Mutation{Const("0"), Const("-1"), Const("999"), Const("NA"), missing, Negate, Shift(midtermShift)}

	return map[string][]Mutation{
		model.ColumnID: {
			missing, Const("-1"), Const("0"), Const("999"), Const("NOT ID!"), Const("NA"),
			func(v string) string {
				if len(v) <= idTrim {
					return ""
				}
				return v[idTrim:]
			},
			func(v string) string { return v + "00000" },
		},
		model.ColumnYear:     {Const("0"), Const("-1"), Const("999"), Const("NA"), missing, Negate},
		model.ColumnPassed:   {Const("-1"), Const("999"), Const("NA"), missing},
		model.ColumnMidterm1: midterm,
		model.ColumnMidterm2: midterm,
		model.ColumnMidterm3: midterm,
	}
}

// Const always writes s.
func Const(s string) Mutation {
	return func(string) string { return s }
}

// Negate flips the sign of a numeric value and leaves anything else alone.
func Negate(v string) string {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return v
	}
	return FormatFloat(-f)
}

// Shift adds delta to a numeric value and leaves anything else alone.
func Shift(delta float64) Mutation {
	return func(v string) string {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return v
		}
		return FormatFloat(f + delta)
	}
}

// Corrupt damages cells of rows in place, assuming Header column order, and
// returns how many mutations were applied. A row may be hit more than once.
func (c *Corruptor) Corrupt(rows [][]string) int {
	lo, hi := len(rows)/minCorruptDivisor, len(rows)/maxCorruptDivisor
	if hi <= lo || len(rows) == 0 {
		return 0
	}
	count := lo + c.rng.IntN(hi-lo)

	header := Header()
	for range count {
		row := rows[c.rng.IntN(len(rows))]
		col := c.rng.IntN(len(header))
		table := c.tables[header[col]]
		if len(table) == 0 || col >= len(row) {
			continue
		}
		row[col] = table[c.rng.IntN(len(table))](row[col])
	}
	return count
}
