// Package ledger persists the names of files already loaded so later runs
// can skip them.
package ledger

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const filePerm = 0o644

// Entry records one processed file.
type Entry struct {
	Name   string    `yaml:"name"`
	RunID  string    `yaml:"run_id"`
	Loaded time.Time `yaml:"loaded_at"`
}

type document struct {
	Version int     `yaml:"version"`
	Files   []Entry `yaml:"files"`
}

// Ledger reads and appends to a YAML file of processed names.
type Ledger struct {
	fs   afero.Fs
	path string
}

// New returns a Ledger stored at path.
func New(path string, opts ...Option) *Ledger {
	l := &Ledger{fs: afero.NewOsFs(), path: path}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Names returns the processed file names in ascending order. A missing
// ledger file is an empty ledger.
func (l *Ledger) Names() ([]string, error) {
	doc, err := l.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(doc.Files))
	for _, e := range doc.Files {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names, nil
}

// Append records names as loaded by runID. Names already present are kept
// with their original entry.
func (l *Ledger) Append(runID string, at time.Time, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	doc, err := l.load()
	if err != nil {
		return err
	}

	known := make(map[string]struct{}, len(doc.Files))
	for _, e := range doc.Files {
		known[e.Name] = struct{}{}
	}
	for _, name := range names {
		if _, ok := known[name]; ok {
			continue
		}
		known[name] = struct{}{}
		doc.Files = append(doc.Files, Entry{Name: name, RunID: runID, Loaded: at.UTC()})
	}
	doc.Version = 1

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrLedger, err)
	}
	if err := l.fs.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrLedger, err)
	}
	if err := afero.WriteFile(l.fs, l.path, data, filePerm); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrLedger, l.path, err)
	}
	return nil
}

func (l *Ledger) load() (document, error) {
	var doc document
	data, err := afero.ReadFile(l.fs, l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("%w: read %s: %w", ErrLedger, l.path, err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("%w: decode %s: %w", ErrLedger, l.path, err)
	}
	return doc, nil
}
