// Package dedupe tracks which keys have already been seen.
package dedupe

import (
	"sync"
	"sync/atomic"
)

// Deduper records seen keys so each is accepted at most once.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(key string) bool

	// Seen reports whether key was recorded, without recording it.
	Seen(key string) bool

	Size() int64
}

// inMemoryDeduper implements Deduper with a map guarded by a RWMutex.
type inMemoryDeduper struct {
	mu       sync.RWMutex
	seen     map[string]struct{}
	size     atomic.Int64
	capacity int
	initial  []string
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}

	for _, opt := range opts {
		opt(d)
	}

	capacity := d.capacity
	if capacity < len(d.initial) {
		capacity = len(d.initial)
	}
	d.seen = make(map[string]struct{}, capacity)
	for _, key := range d.initial {
		d.SeenAndRecord(key)
	}
	d.initial = nil

	return d
}

func (d *inMemoryDeduper) SeenAndRecord(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		return true
	}
	d.seen[key] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Seen(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, exists := d.seen[key]
	return exists
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
