// Package dirstore implements storage.Stager on a directory tree.
package dirstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	model "github.com/okian/gradeetl/internal/domain/model"
)

const filePerm = 0o644

// Store serves the regular files below a root directory. Names are slash
// separated paths relative to the root.
type Store struct {
	fs   afero.Fs
	root string
}

// New returns a Store rooted at root on the OS filesystem.
func New(root string, opts ...Option) *Store {
	s := &Store{fs: afero.NewOsFs(), root: root}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List walks the root and returns file names in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var names []string
	err := afero.Walk(s.fs, s.root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, &model.StorageError{Op: "list", Key: s.root, Err: classify(err)}
	}
	sort.Strings(names)
	return names, nil
}

// Fetch reads the file name.
func (s *Store) Fetch(_ context.Context, name string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.path(name))
	if err != nil {
		return nil, &model.StorageError{Op: "fetch", Key: name, Err: classify(err)}
	}
	return data, nil
}

// Put writes data to name, creating parent directories.
func (s *Store) Put(_ context.Context, name string, data []byte) error {
	p := s.path(name)
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return &model.StorageError{Op: "put", Key: name, Err: classify(err)}
	}
	if err := afero.WriteFile(s.fs, p, data, filePerm); err != nil {
		return &model.StorageError{Op: "put", Key: name, Err: classify(err)}
	}
	return nil
}

// EnsureBucket creates the root directory when it does not exist yet.
func (s *Store) EnsureBucket(_ context.Context) error {
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return &model.StorageError{Op: "create", Key: s.root, Err: classify(err)}
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(path.Clean("/" + name)))
}

func classify(err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %w", model.ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", model.ErrIO, err)
}
