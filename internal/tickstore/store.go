// Package tickstore maintains the full in-memory state of one engine
// instance: a mapping from tick index to Accumulator plus the last-processed
// commit cursor. Fold and merge are single-threaded per store; parallelism
// happens across stores, never inside one.
package tickstore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tickfold/tickfold/internal/analyze"
)

// Sentinel errors for tick store access.
var (
	// ErrUnknownTick is returned when a tick has no accumulator.
	ErrUnknownTick = errors.New("unknown tick")

	// ErrNoBooter is returned when a hibernated tick is accessed and no
	// booter has been attached to the store.
	ErrNoBooter = errors.New("hibernated tick access without booter")
)

// Cursor is the last-processed commit position of a store.
type Cursor struct {
	// Index is the number of commits folded so far; equivalently the index
	// of the next commit to process in the owning range.
	Index int `json:"index"`

	// Hash identifies the last folded commit. Empty until the first fold.
	Hash string `json:"hash"`
}

// Booter transparently reloads a hibernated tick's accumulator.
// The hibernation controller implements it; the store calls it on first
// access to a hibernated tick.
type Booter interface {
	Boot(tick int) (analyze.Accumulator, error)
}

// slot holds one tick's state. The accumulator is resident XOR hibernated,
// never both.
type slot struct {
	acc        analyze.Accumulator
	hibernated bool
	lastFold   uint64
}

// Store maps tick indices to accumulators and tracks the commit cursor.
type Store struct {
	factory analyze.Factory
	slots   map[int]*slot
	seq     uint64
	cursor  Cursor
	booter  Booter
}

// New creates an empty store. The factory produces accumulators for ticks
// seen for the first time and for deserialization.
func New(factory analyze.Factory) *Store {
	return &Store{
		factory: factory,
		slots:   map[int]*slot{},
	}
}

// SetBooter attaches the hibernation booter used to reload spilled ticks.
func (s *Store) SetBooter(b Booter) {
	s.booter = b
}

// Booter returns the attached hibernation booter, or nil.
func (s *Store) Booter() Booter {
	return s.booter
}

// Cursor returns the last-processed commit cursor.
func (s *Store) Cursor() Cursor {
	return s.cursor
}

// SetCursor overwrites the cursor. Used by checkpoint restore.
func (s *Store) SetCursor(c Cursor) {
	s.cursor = c
}

// Len returns the number of ticks with state (resident or hibernated).
func (s *Store) Len() int {
	return len(s.slots)
}

// Ticks returns all tick indices with state, in increasing order.
func (s *Store) Ticks() []int {
	ticks := make([]int, 0, len(s.slots))
	for tick := range s.slots {
		ticks = append(ticks, tick)
	}

	sort.Ints(ticks)

	return ticks
}

// Fold ingests one commit's entries into their ticks' accumulators,
// creating accumulators for unseen ticks and booting hibernated ones.
// The cursor strictly advances on every call.
func (s *Store) Fold(tc analyze.TC) error {
	for _, e := range tc.Entries {
		acc, err := s.ensure(e.Tick)
		if err != nil {
			return fmt.Errorf("fold commit %s: %w", tc.CommitHash, err)
		}

		acc.Fold(e)
	}

	// Entry-less commits still touch their tick so recency reflects the
	// commit stream, not just fact density.
	if len(tc.Entries) == 0 {
		_, err := s.ensure(tc.Tick)
		if err != nil {
			return fmt.Errorf("fold commit %s: %w", tc.CommitHash, err)
		}
	}

	s.cursor.Index++
	s.cursor.Hash = tc.CommitHash

	return nil
}

// Merge combines another store into this one, tick by tick: accumulators
// present in both are merged pairwise; ticks only present in the other store
// are adopted as-is. Merge is associative and identity-preserving, which is
// what makes fork/merge parallelization safe.
func (s *Store) Merge(other *Store) error {
	for _, tick := range other.Ticks() {
		theirs, err := other.Accumulator(tick)
		if err != nil {
			return fmt.Errorf("merge tick %d: %w", tick, err)
		}

		sl, exists := s.slots[tick]
		if !exists {
			s.seq++
			s.slots[tick] = &slot{acc: theirs, lastFold: s.seq}

			continue
		}

		ours, accErr := s.residentAcc(tick, sl)
		if accErr != nil {
			return fmt.Errorf("merge tick %d: %w", tick, accErr)
		}

		mergeErr := ours.Merge(theirs)
		if mergeErr != nil {
			return fmt.Errorf("merge tick %d: %w", tick, mergeErr)
		}
	}

	return nil
}

// Accumulator returns the accumulator for a tick, booting it first if
// hibernated. Returns ErrUnknownTick for ticks without state.
func (s *Store) Accumulator(tick int) (analyze.Accumulator, error) {
	sl, exists := s.slots[tick]
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTick, tick)
	}

	return s.residentAcc(tick, sl)
}

// Size returns the size estimate of one tick's resident accumulator.
// Hibernated ticks report zero: their memory has been released.
func (s *Store) Size(tick int) int64 {
	sl, exists := s.slots[tick]
	if !exists || sl.hibernated {
		return 0
	}

	return sl.acc.SizeEstimate()
}

// ResidentSize returns the total size estimate of all resident accumulators.
func (s *Store) ResidentSize() int64 {
	var total int64

	for _, sl := range s.slots {
		if !sl.hibernated {
			total += sl.acc.SizeEstimate()
		}
	}

	return total
}

// ResidentTicks returns the ticks whose accumulators are in memory.
func (s *Store) ResidentTicks() []int {
	ticks := make([]int, 0, len(s.slots))

	for tick, sl := range s.slots {
		if !sl.hibernated {
			ticks = append(ticks, tick)
		}
	}

	sort.Ints(ticks)

	return ticks
}

// Hibernated reports whether the given tick is currently spilled.
func (s *Store) Hibernated(tick int) bool {
	sl, exists := s.slots[tick]

	return exists && sl.hibernated
}

// Coldest returns the least-recently-folded resident tick, excluding the
// most-recently-folded one, which is the likeliest target of the next fold.
// Returns false when no tick is evictable.
func (s *Store) Coldest() (int, bool) {
	var (
		coldTick, hotTick int
		coldSeq           uint64
		hotSeq            uint64
		found             bool
	)

	for tick, sl := range s.slots {
		if sl.hibernated {
			continue
		}

		if sl.lastFold > hotSeq {
			hotSeq = sl.lastFold
			hotTick = tick
		}

		if !found || sl.lastFold < coldSeq || (sl.lastFold == coldSeq && tick < coldTick) {
			coldSeq = sl.lastFold
			coldTick = tick
			found = true
		}
	}

	if !found || coldTick == hotTick {
		return 0, false
	}

	return coldTick, true
}

// Evict removes a resident tick's accumulator from memory, leaving a
// hibernation marker, and returns the accumulator for spilling. Returns
// false when the tick is absent or already hibernated.
func (s *Store) Evict(tick int) (analyze.Accumulator, bool) {
	sl, exists := s.slots[tick]
	if !exists || sl.hibernated {
		return nil, false
	}

	acc := sl.acc
	sl.acc = nil
	sl.hibernated = true

	return acc, true
}

// Install places a booted accumulator back into a hibernated tick's slot.
func (s *Store) Install(tick int, acc analyze.Accumulator) {
	sl, exists := s.slots[tick]
	if !exists {
		s.slots[tick] = &slot{acc: acc}

		return
	}

	sl.acc = acc
	sl.hibernated = false
}

// ensure returns the resident accumulator for a tick, creating or booting
// it as needed, and refreshes the tick's fold recency.
func (s *Store) ensure(tick int) (analyze.Accumulator, error) {
	sl, exists := s.slots[tick]
	if !exists {
		sl = &slot{acc: s.factory()}
		s.slots[tick] = sl
	}

	acc, err := s.residentAcc(tick, sl)
	if err != nil {
		return nil, err
	}

	s.seq++
	sl.lastFold = s.seq

	return acc, nil
}

// residentAcc returns the slot's accumulator, booting it if hibernated.
func (s *Store) residentAcc(tick int, sl *slot) (analyze.Accumulator, error) {
	if !sl.hibernated {
		return sl.acc, nil
	}

	if s.booter == nil {
		return nil, fmt.Errorf("%w: tick %d", ErrNoBooter, tick)
	}

	acc, err := s.booter.Boot(tick)
	if err != nil {
		return nil, err
	}

	sl.acc = acc
	sl.hibernated = false

	return acc, nil
}
