package service

import (
	"time"

	"github.com/okian/gradeetl/internal/adapters/sink"
	"github.com/okian/gradeetl/internal/adapters/storage"
	"github.com/okian/gradeetl/internal/domain/normalize"
	"github.com/okian/gradeetl/internal/domain/parser"
	"github.com/okian/gradeetl/pkg/logger"
)

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithStore sets the source store files are listed and fetched from.
func WithStore(store storage.Store) Option {
	return func(p *Pipeline) {
		p.store = store
	}
}

// WithSinks sets the sinks the Record Set is loaded into.
func WithSinks(sinks ...sink.Sink) Option {
	return func(p *Pipeline) {
		p.sinks = append(p.sinks, sinks...)
	}
}

// WithTable sets the destination table name.
func WithTable(table string) Option {
	return func(p *Pipeline) {
		if table != "" {
			p.table = table
		}
	}
}

// WithWorkerCount sets the number of file workers.
func WithWorkerCount(count int) Option {
	return func(p *Pipeline) {
		if count > 0 {
			p.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the file job queue.
func WithQueueSize(size int) Option {
	return func(p *Pipeline) {
		if size > 0 {
			p.queueSize = size
		}
	}
}

// WithFailurePolicy sets what happens when a file cannot be fetched or parsed.
func WithFailurePolicy(policy FailurePolicy) Option {
	return func(p *Pipeline) {
		p.policy = policy
	}
}

// WithProcessed sets the file names already loaded by earlier runs. They are
// skipped during listing.
func WithProcessed(names []string) Option {
	return func(p *Pipeline) {
		p.processed = append([]string(nil), names...)
	}
}

// WithInclude restricts listing to names matching any of the glob patterns.
func WithInclude(patterns ...string) Option {
	return func(p *Pipeline) {
		p.include = append(p.include, patterns...)
	}
}

// WithParser replaces the record parser.
func WithParser(ps *parser.Parser) Option {
	return func(p *Pipeline) {
		if ps != nil {
			p.parser = ps
		}
	}
}

// WithNormalizer replaces the field normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(p *Pipeline) {
		if n != nil {
			p.normalizer = n
		}
	}
}

// WithLogger sets a custom logger for the pipeline.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}
