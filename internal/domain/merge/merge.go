// Package merge combines per-file records into the final record set.
package merge

import (
	"cmp"
	"slices"

	dedupe "github.com/okian/gradeetl/internal/domain/dedupe"
	model "github.com/okian/gradeetl/internal/domain/model"
)

// Merge concatenates batches in the given order, keeps the first record for
// each ID and sorts the result ascending by ID. It also returns how many
// duplicate records were dropped. Inputs are not modified.
func Merge(batches ...[]model.Record) (model.RecordSet, int) {
	total := 0
	for _, b := range batches {
		total += len(b)
	}

	seen := dedupe.NewInMemoryDeduper(dedupe.WithCapacity(total))
	set := make(model.RecordSet, 0, total)
	for _, batch := range batches {
		for _, r := range batch {
			if seen.SeenAndRecord(r.ID) {
				continue
			}
			set = append(set, r)
		}
	}

	// IDs are fixed width, so lexical order is numeric order.
	slices.SortStableFunc(set, func(a, b model.Record) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return set, total - int(seen.Size())
}
