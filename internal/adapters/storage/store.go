// Package storage defines the object store contract used by the pipeline.
package storage

import "context"

// Store lists and fetches raw source files.
type Store interface {
	// List returns every file name in the store. The order is stable for the
	// lifetime of a run.
	List(ctx context.Context) ([]string, error)

	// Fetch returns the bytes of name. Failures wrap model.ErrNotFound or
	// model.ErrIO inside a *model.StorageError.
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// Stager is a Store that also accepts uploads.
type Stager interface {
	Store

	// Put writes data under name, replacing any existing object.
	Put(ctx context.Context, name string, data []byte) error
}
