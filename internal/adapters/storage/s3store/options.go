package s3store

import "github.com/okian/gradeetl/pkg/logger"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClient sets the S3 client, bypassing AWS config loading.
func WithClient(c API) Option {
	return func(s *Store) {
		if c != nil {
			s.client = c
		}
	}
}

// WithPrefix restricts the store to keys under prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithRegion sets the bucket region.
func WithRegion(region string) Option {
	return func(s *Store) {
		if region != "" {
			s.region = region
		}
	}
}

// WithEndpoint points the client at an S3 compatible endpoint such as MinIO.
func WithEndpoint(endpoint string) Option {
	return func(s *Store) {
		s.endpoint = endpoint
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}
