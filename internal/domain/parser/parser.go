// Package parser decodes raw delimited files into loosely typed rows.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	model "github.com/okian/gradeetl/internal/domain/model"
)

const textPlain = "text/plain"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF} //nolint:gochecknoglobals // constant byte sequence

// naMarkers are cell values read as absent, matching the pandas defaults.
var naMarkers = map[string]struct{}{ //nolint:gochecknoglobals // lookup table
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

// Option configures a Parser.
type Option func(*Parser)

// WithColumns sets the expected column set. Defaults to model.SourceColumns.
func WithColumns(columns []string) Option {
	return func(p *Parser) {
		if len(columns) > 0 {
			p.columns = append([]string(nil), columns...)
		}
	}
}

// WithComma sets the field delimiter.
func WithComma(r rune) Option {
	return func(p *Parser) {
		if r != 0 && r != '"' && r != '\r' && r != '\n' {
			p.comma = r
		}
	}
}

// Parser turns file bytes into raw rows keyed by expected column name.
type Parser struct {
	columns []string
	comma   rune
}

// New returns a Parser with the given options applied.
func New(opts ...Option) *Parser {
	p := &Parser{
		columns: model.SourceColumns,
		comma:   ',',
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse decodes data with a default parser restricted to columns.
func Parse(data []byte, columns []string) ([]model.RawRow, error) {
	return New(WithColumns(columns)).Parse("", data)
}

// Parse decodes one file. name is only used in errors. Expected columns that
// are missing from the header produce absent cells; extra columns are ignored.
func (p *Parser) Parse(name string, data []byte) ([]model.RawRow, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &model.ParseError{File: name, Err: ErrEmptyFile}
	}
	if !isText(data) {
		return nil, &model.ParseError{File: name, Err: ErrNotText}
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = p.comma
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, &model.ParseError{File: name, Line: 1, Err: fmt.Errorf("%w: %w", ErrHeader, err)}
	}
	width := len(header)
	positions := p.positions(header)

	var rows []model.RawRow
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			line := 0
			if errors.As(err, &perr) {
				line = perr.Line
			}
			return nil, &model.ParseError{File: name, Line: line, Err: err}
		}
		if len(record) > width {
			line, _ := r.FieldPos(0)
			return nil, &model.ParseError{
				File: name,
				Line: line,
				Err:  fmt.Errorf("%w: expected %d fields, saw %d", ErrTooManyFields, width, len(record)),
			}
		}

		row := make(model.RawRow, len(p.columns))
		for column, pos := range positions {
			if pos >= len(record) {
				continue
			}
			row[column] = cell(record[pos])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// positions maps each expected column to its index in header. The first
// matching header cell wins.
func (p *Parser) positions(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, ok := index[key]; !ok {
			index[key] = i
		}
	}

	out := make(map[string]int, len(p.columns))
	for _, column := range p.columns {
		if i, ok := index[strings.ToLower(column)]; ok {
			out[column] = i
		}
	}
	return out
}

func cell(raw string) model.Cell {
	text := strings.TrimSpace(raw)
	if _, na := naMarkers[text]; na {
		return model.Cell{}
	}
	return model.Cell{Text: text, Present: true}
}

// isText reports whether data sniffs as some text/plain descendant.
func isText(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is(textPlain) {
			return true
		}
	}
	return false
}

// CleanCell removes common spreadsheet export artifacts from a header cell:
// surrounding whitespace, an Excel formula prefix (="...") and quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "\ufeff")

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}
