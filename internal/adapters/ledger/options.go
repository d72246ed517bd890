package ledger

import "github.com/spf13/afero"

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithFs replaces the filesystem the ledger is stored on.
func WithFs(fsys afero.Fs) Option {
	return func(l *Ledger) {
		if fsys != nil {
			l.fs = fsys
		}
	}
}
