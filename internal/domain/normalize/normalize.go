// Package normalize applies the per-field coercion and validation rules that
// turn a raw row into canonical values.
package normalize

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	model "github.com/okian/gradeetl/internal/domain/model"
)

// Field rule bounds.
const (
	minID      = 1
	maxID      = 999999
	idWidth    = 6
	minScore   = 0
	maxScore   = 100
	scoreSteps = 2 // half points
)

// Rounding selects how midterm scores are snapped to half points.
type Rounding int

const (
	// HalfEven rounds ties to the even half point (85.25 -> 85.0, 85.75 -> 86.0).
	HalfEven Rounding = iota
	// HalfUp rounds ties away from zero (85.25 -> 85.5).
	HalfUp
)

// ParseRounding maps a config value to a Rounding.
func ParseRounding(s string) (Rounding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "half_even", "half-even", "bank":
		return HalfEven, nil
	case "half_up", "half-up":
		return HalfUp, nil
	default:
		return HalfEven, fmt.Errorf("%w: %q", ErrUnknownRounding, s)
	}
}

// Status is the result of one field rule.
type Status int

const (
	// Skipped means an earlier rule already invalidated the row.
	Skipped Status = iota
	Valid
	Invalid
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "skipped"
	}
}

// FieldOutcome is the result of applying one rule to one column.
type FieldOutcome struct {
	Column string
	Status Status
	Err    *model.ValidationError // set when Status is Invalid
}

// Outcome carries the per-field results for a row, in rule order, and the
// values coerced so far. Record is only meaningful when every field is Valid.
type Outcome struct {
	Fields []FieldOutcome
	Record model.Record
}

// Valid reports whether every rule passed.
func (o Outcome) Valid() bool {
	if len(o.Fields) != len(model.SourceColumns) {
		return false
	}
	for _, f := range o.Fields {
		if f.Status != Valid {
			return false
		}
	}
	return true
}

// FirstFailure returns the first invalid field, if any.
func (o Outcome) FirstFailure() (FieldOutcome, bool) {
	for _, f := range o.Fields {
		if f.Status == Invalid {
			return f, true
		}
	}
	return FieldOutcome{}, false
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithRounding sets the midterm tie-breaking rule. Defaults to HalfEven.
func WithRounding(r Rounding) Option {
	return func(n *Normalizer) {
		n.rounding = r
	}
}

// Normalizer applies the field rules in a fixed order and stops evaluating at
// the first failure. It is safe for concurrent use.
type Normalizer struct {
	rounding Rounding
	rules    []rule
}

type rule struct {
	column string
	apply  func(n *Normalizer, text string, rec *model.Record) *model.ValidationError
}

// New returns a Normalizer with the given options applied.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{rounding: HalfEven}
	for _, opt := range opts {
		opt(n)
	}
	n.rules = []rule{
		{column: model.ColumnID, apply: (*Normalizer).id},
		{column: model.ColumnYear, apply: (*Normalizer).year},
		{column: model.ColumnMidterm1, apply: midterm(model.ColumnMidterm1, func(r *model.Record) *float64 { return &r.Midterm1 })},
		{column: model.ColumnMidterm2, apply: midterm(model.ColumnMidterm2, func(r *model.Record) *float64 { return &r.Midterm2 })},
		{column: model.ColumnMidterm3, apply: midterm(model.ColumnMidterm3, func(r *model.Record) *float64 { return &r.Midterm3 })},
		{column: model.ColumnPassed, apply: (*Normalizer).passed},
	}
	return n
}

// Normalize evaluates row. Absent required values fail the row before any
// coercion runs.
func (n *Normalizer) Normalize(row model.RawRow) Outcome {
	out := Outcome{Fields: make([]FieldOutcome, len(n.rules))}
	for i, r := range n.rules {
		out.Fields[i].Column = r.column
	}

	for i, r := range n.rules {
		if !row.Get(r.column).Present {
			out.Fields[i].Status = Invalid
			out.Fields[i].Err = &model.ValidationError{Field: r.column, Message: "missing value"}
			return out
		}
	}

	for i, r := range n.rules {
		if verr := r.apply(n, row.Get(r.column).Text, &out.Record); verr != nil {
			out.Fields[i].Status = Invalid
			out.Fields[i].Err = verr
			return out
		}
		out.Fields[i].Status = Valid
	}
	return out
}

func (n *Normalizer) id(text string, rec *model.Record) *model.ValidationError {
	v, verr := integer(model.ColumnID, text)
	if verr != nil {
		return verr
	}
	if v < minID || v > maxID {
		return &model.ValidationError{Field: model.ColumnID, Value: text, Message: "out of range 1..999999"}
	}
	rec.ID = fmt.Sprintf("%0*d", idWidth, v)
	return nil
}

func (n *Normalizer) year(text string, rec *model.Record) *model.ValidationError {
	for _, y := range model.Years {
		if strings.EqualFold(text, string(y)) {
			rec.Year = y
			return nil
		}
	}
	v, verr := integer(model.ColumnYear, text)
	if verr != nil {
		return verr
	}
	if v < 1 || v > int64(len(model.Years)) {
		return &model.ValidationError{Field: model.ColumnYear, Value: text, Message: "not a class year"}
	}
	rec.Year = model.Years[v-1]
	return nil
}

func midterm(column string, target func(*model.Record) *float64) func(*Normalizer, string, *model.Record) *model.ValidationError {
	return func(n *Normalizer, text string, rec *model.Record) *model.ValidationError {
		d, err := decimal.NewFromString(text)
		if err != nil {
			return &model.ValidationError{Field: column, Value: text, Message: "not a number"}
		}
		if d.LessThan(decimal.NewFromInt(minScore)) || d.GreaterThan(decimal.NewFromInt(maxScore)) {
			return &model.ValidationError{Field: column, Value: text, Message: "out of range 0..100"}
		}
		*target(rec) = n.RoundHalf(d)
		return nil
	}
}

func (n *Normalizer) passed(text string, rec *model.Record) *model.ValidationError {
	switch strings.ToLower(text) {
	case "true":
		rec.Passed = true
		return nil
	case "false":
		rec.Passed = false
		return nil
	}
	v, verr := integer(model.ColumnPassed, text)
	if verr != nil {
		return verr
	}
	if v != 0 && v != 1 {
		return &model.ValidationError{Field: model.ColumnPassed, Value: text, Message: "not 0 or 1"}
	}
	rec.Passed = v == 1
	return nil
}

// RoundHalf snaps d to the nearest half point using the configured rounding.
func (n *Normalizer) RoundHalf(d decimal.Decimal) float64 {
	doubled := d.Mul(decimal.NewFromInt(scoreSteps))
	if n.rounding == HalfUp {
		doubled = doubled.Round(0)
	} else {
		doubled = doubled.RoundBank(0)
	}
	return doubled.Div(decimal.NewFromInt(scoreSteps)).InexactFloat64()
}

// integer parses text as a whole number. Integral decimals such as "42.0"
// are accepted; fractional values are not.
func integer(column, text string) (int64, *model.ValidationError) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, &model.ValidationError{Field: column, Value: text, Message: "not a number"}
	}
	if !d.IsInteger() {
		return 0, &model.ValidationError{Field: column, Value: text, Message: "not an integer"}
	}
	// Anything this large fails every integer rule; keeps IntPart exact.
	if d.Abs().GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return 0, &model.ValidationError{Field: column, Value: text, Message: "out of range"}
	}
	return d.IntPart(), nil
}
