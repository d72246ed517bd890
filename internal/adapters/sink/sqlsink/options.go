package sqlsink

import "github.com/okian/gradeetl/pkg/logger"

// Option applies a configuration option to the Sink.
type Option func(*Sink)

// WithBatchSize sets how many records go into one INSERT statement.
func WithBatchSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithName overrides the sink name used in logs and metrics.
func WithName(name string) Option {
	return func(s *Sink) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger sets the sink logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l
		}
	}
}
