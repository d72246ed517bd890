package gendata

import (
	"math/rand/v2"

	"github.com/spf13/afero"

	"github.com/okian/gradeetl/pkg/logger"
)

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithSeed makes the output reproducible.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed)) //nolint:gosec // synthetic data
	}
}

// WithFs sets the filesystem files are written to.
func WithFs(fsys afero.Fs) Option {
	return func(g *Generator) {
		if fsys != nil {
			g.fs = fsys
		}
	}
}

// WithRowRange sets the bounds of rows per file, max exclusive.
func WithRowRange(minRows, maxRows int) Option {
	return func(g *Generator) {
		if minRows > 0 && maxRows >= minRows {
			g.minRows = minRows
			g.maxRows = maxRows
		}
	}
}

// WithMaxFiles bounds the random file count.
func WithMaxFiles(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxFiles = n
		}
	}
}

// WithFiles fixes the number of files written by WriteDir.
func WithFiles(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.files = n
		}
	}
}

// WithCorruptor replaces the corruptor. It should share the generator's
// seed when reproducible output is wanted.
func WithCorruptor(c *Corruptor) Option {
	return func(g *Generator) {
		g.corruptor = c
	}
}

// WithLogger sets a custom logger for the generator.
func WithLogger(l logger.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}
