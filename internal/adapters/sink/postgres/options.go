package postgres

import "github.com/okian/gradeetl/pkg/logger"

// Option applies a configuration option to the Sink.
type Option func(*Sink)

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
