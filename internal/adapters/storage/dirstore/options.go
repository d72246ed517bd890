package dirstore

import "github.com/spf13/afero"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithFs replaces the filesystem, typically with afero.NewMemMapFs in tests.
func WithFs(fsys afero.Fs) Option {
	return func(s *Store) {
		if fsys != nil {
			s.fs = fsys
		}
	}
}
