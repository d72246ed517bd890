// Package gendata produces synthetic grade CSV files with a controlled share
// of corrupted cells, for demos and end-to-end tests.
package gendata

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"math/rand/v2"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	model "github.com/okian/gradeetl/internal/domain/model"
	"github.com/okian/gradeetl/pkg/logger"
)

// Score distribution. The rough average is 60 plus |N|*20 capped at 100;
// weaker students spread their three midterms wider around it.
const (
	averageBase   = 60.0
	averageScale  = 20.0
	maxScore      = 100.0
	spreadCeiling = 10.0
	spreadDivisor = 10.0
	spreadFactor  = 2.0
	spreadOffset  = 2.0
	passThreshold = 210.0
	scoreDecimals = 2
)

// Identifier and class year distribution.
const (
	idCeiling   = 2.0
	idScale     = 500000.0
	yearCeiling = 1.0
	yearScale   = 3.0
)

const (
	defaultMinRows  = 5
	defaultMaxRows  = 500
	defaultMaxFiles = 10
	filePrefix      = "csv_data_"
	fileExt         = ".csv"
	filePerm        = 0o644
)

var fileName = regexp.MustCompile(`^` + filePrefix + `(\d+)\` + fileExt + `$`) //nolint:gochecknoglobals // compiled once

// Generator writes batches of student grade rows.
type Generator struct {
	rng       *rand.Rand
	fs        afero.Fs
	minRows   int
	maxRows   int
	maxFiles  int
	files     int
	corruptor *Corruptor
	logger    logger.Logger
}

// New returns a Generator. Without WithSeed the output is not reproducible.
func New(opts ...Option) *Generator {
	g := &Generator{
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // synthetic data
		fs:       afero.NewOsFs(),
		minRows:  defaultMinRows,
		maxRows:  defaultMaxRows,
		maxFiles: defaultMaxFiles,
		logger:   logger.Get().Named("gendata"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.corruptor == nil {
		g.corruptor = NewCorruptor(g.rng)
	}
	return g
}

// Header returns the column names written to every file.
func Header() []string {
	return append([]string(nil), model.SourceColumns...)
}

// Rows returns n clean rows in Header order. Values are written the way a
// float column is exported, so identifiers look like "123456.0".
func (g *Generator) Rows(n int) [][]string {
	rows := make([][]string, n)
	for i := range rows {
		average := math.Min(math.Abs(g.rng.NormFloat64())*averageScale+averageBase, maxScore)
		spread := (spreadCeiling - average/spreadDivisor) * spreadFactor * (math.Abs(g.rng.NormFloat64()) + spreadOffset)
		split := math.Min(math.Abs(g.rng.NormFloat64()), 1)

		m1 := average - spread*split
		m2 := average
		m3 := average + spread*(1-split)
		passed := 0.0
		if m1+m2+m3 >= passThreshold {
			passed = 1
		}

		year := math.Round(math.Min(math.Abs(g.rng.NormFloat64()), yearCeiling)*yearScale + 1)
		id := math.Round(math.Min(math.Abs(g.rng.NormFloat64()), idCeiling) * idScale)

		rows[i] = []string{
			FormatFloat(id),
			FormatFloat(year),
			FormatFloat(round(m1, scoreDecimals)),
			FormatFloat(round(m2, scoreDecimals)),
			FormatFloat(round(m3, scoreDecimals)),
			FormatFloat(passed),
		}
	}
	return rows
}

// File returns the encoded CSV for a random number of rows, with a share of
// cells corrupted. It also returns how many cells were corrupted.
func (g *Generator) File() ([]byte, int, error) {
	n := g.minRows
	if g.maxRows > g.minRows {
		n += g.rng.IntN(g.maxRows - g.minRows)
	}
	rows := g.Rows(n)
	corrupted := g.corruptor.Corrupt(rows)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header()); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return buf.Bytes(), corrupted, nil
}

// WriteDir writes files into dir and returns their names. Numbering continues
// after the highest csv_data_N.csv already present. The file count is
// WithFiles when set, otherwise random in [1, max files].
func (g *Generator) WriteDir(ctx context.Context, dir string) ([]string, error) {
	if err := g.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	next, err := g.nextIndex(dir)
	if err != nil {
		return nil, err
	}

	count := g.files
	if count <= 0 {
		count = 1 + g.rng.IntN(max(g.maxFiles, 1))
	}

	names := make([]string, 0, count)
	for i := range count {
		if err := ctx.Err(); err != nil {
			return names, err
		}
		data, corrupted, err := g.File()
		if err != nil {
			return names, err
		}
		name := filePrefix + strconv.Itoa(next+i) + fileExt
		if err := afero.WriteFile(g.fs, path.Join(dir, name), data, filePerm); err != nil {
			return names, fmt.Errorf("%w: %s: %w", ErrWrite, name, err)
		}
		g.logger.Info(ctx, "generated file",
			logger.String("file", name),
			logger.Int("bytes", len(data)),
			logger.Int("corrupted", corrupted),
		)
		names = append(names, name)
	}
	return names, nil
}

func (g *Generator) nextIndex(dir string) (int, error) {
	entries, err := afero.ReadDir(g.fs, dir)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	highest := 0
	for _, e := range entries {
		m := fileName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// FormatFloat renders v like a float column export: shortest form, always
// with a decimal point.
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
