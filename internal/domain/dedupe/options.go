package dedupe

// Option applies a configuration option to the InMemoryDeduper.
type Option func(*inMemoryDeduper)

// WithCapacity pre-sizes the key set. Non-positive values are ignored.
func WithCapacity(n int) Option {
	return func(d *inMemoryDeduper) {
		if n > 0 {
			d.capacity = n
		}
	}
}

// WithKeys seeds the deduper with keys that count as already seen.
func WithKeys(keys []string) Option {
	return func(d *inMemoryDeduper) {
		d.initial = append(d.initial, keys...)
	}
}
