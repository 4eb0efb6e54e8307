package tickstore

import (
	"fmt"
	"sort"

	"github.com/tickfold/tickfold/internal/analyze"
)

// Snapshot is the serialized form of a store: the commit cursor plus every
// tick's accumulator bytes. It is embedded in checkpoint blobs.
type Snapshot struct {
	Cursor Cursor
	Ticks  map[int][]byte
}

// Snapshot serializes the full store state. Hibernated ticks are booted
// first so the snapshot is always complete; the hibernation controller may
// re-evict them afterwards.
func (s *Store) Snapshot() (*Snapshot, error) {
	snap := &Snapshot{
		Cursor: s.cursor,
		Ticks:  make(map[int][]byte, len(s.slots)),
	}

	for _, tick := range s.Ticks() {
		acc, err := s.Accumulator(tick)
		if err != nil {
			return nil, fmt.Errorf("snapshot tick %d: %w", tick, err)
		}

		data, marshalErr := acc.MarshalBinary()
		if marshalErr != nil {
			return nil, fmt.Errorf("snapshot tick %d: %w", tick, marshalErr)
		}

		snap.Ticks[tick] = data
	}

	return snap, nil
}

// FromSnapshot reconstructs a store from a snapshot.
func FromSnapshot(factory analyze.Factory, snap *Snapshot) (*Store, error) {
	s := New(factory)
	s.cursor = snap.Cursor

	ticks := make([]int, 0, len(snap.Ticks))
	for tick := range snap.Ticks {
		ticks = append(ticks, tick)
	}

	// Restore in tick order so post-restore eviction recency is deterministic.
	sort.Ints(ticks)

	for _, tick := range ticks {
		acc := factory()

		err := acc.UnmarshalBinary(snap.Ticks[tick])
		if err != nil {
			return nil, fmt.Errorf("restore tick %d: %w", tick, err)
		}

		s.seq++
		s.slots[tick] = &slot{acc: acc, lastFold: s.seq}
	}

	return s, nil
}
