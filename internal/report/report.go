// Package report turns a finished tick store into serializable output.
package report

import (
	"fmt"
	"time"

	"github.com/tickfold/tickfold/internal/analyze"
	"github.com/tickfold/tickfold/internal/tickstore"
)

// Flattener converts the per-tick accumulators into the analyzer's final
// result shape.
type Flattener func(ticks map[int]analyze.Accumulator) (any, error)

// Builder assembles the final report from a tick store.
type Builder struct {
	// Name keys the analyzer payload in the report.
	Name string

	// TickSize is the duration of one tick, recorded in the report so
	// consumers can map tick indices back to time.
	TickSize time.Duration

	// AuthorIndex maps author IDs back to identity strings.
	AuthorIndex map[int]string

	// Flatten produces the analyzer-specific result payload.
	Flatten Flattener
}

// Build boots every tick and flattens the accumulators into a report.
// Hibernated ticks are restored transparently through the store's booter.
func (b *Builder) Build(store *tickstore.Store) (analyze.Report, error) {
	ticks := make(map[int]analyze.Accumulator, store.Len())

	for _, tick := range store.Ticks() {
		acc, err := store.Accumulator(tick)
		if err != nil {
			return nil, fmt.Errorf("load tick %d: %w", tick, err)
		}

		ticks[tick] = acc
	}

	result, err := b.Flatten(ticks)
	if err != nil {
		return nil, fmt.Errorf("flatten ticks: %w", err)
	}

	return analyze.Report{
		b.Name:         result,
		"author_index": b.AuthorIndex,
		"tick_size":    b.TickSize.String(),
		"commits":      store.Cursor().Index,
	}, nil
}
