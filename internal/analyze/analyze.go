// Package analyze defines the core contracts of the aggregation engine:
// extracted entries, per-commit tick-commits, and the opaque per-tick
// Accumulator that analyzers implement.
package analyze

import "errors"

// ErrMergeConflict is returned when two accumulators of incompatible types
// are merged. This indicates a programming invariant violation and is never
// retried.
var ErrMergeConflict = errors.New("accumulator merge conflict")

// Entry is one extracted fact from one file in one commit.
// Entries are consumed immediately by the tick store fold and never persisted
// on their own.
type Entry struct {
	// Category is the fact's category label, e.g. the source language.
	Category string

	// Key is the fact's key within the category, e.g. an import path.
	Key string

	// AuthorID is the numeric identity of the commit author.
	AuthorID int

	// Tick is the time-bucket index this entry belongs to.
	Tick int
}

// TC is the set of entries produced by one commit. It is created once per
// commit by the extractor and consumed exactly once by the fold step.
type TC struct {
	// CommitHash identifies the extracted commit.
	CommitHash string

	// Tick is the time-bucket index of the commit. Every entry carries the
	// same tick; it is resolved once from commit metadata.
	Tick int

	// AuthorID is the resolved author of the commit.
	AuthorID int

	// Entries holds the extracted facts. Order is irrelevant: folding is
	// commutative within a tick.
	Entries []Entry
}

// Accumulator is the opaque, analyzer-specific partial state for one tick.
// The engine never inspects its contents; it only folds entries in, merges
// accumulators pairwise, asks for a size estimate, and round-trips it
// through the binary marshalling methods for checkpointing and hibernation.
//
// Merge must be associative and identity-preserving: merging in a freshly
// created (empty) accumulator changes nothing, and any grouping of pairwise
// merges yields the same per-key counts.
type Accumulator interface {
	// Fold incorporates one entry.
	Fold(e Entry)

	// Merge combines another accumulator of the same concrete type into
	// this one. Returns ErrMergeConflict on a type mismatch.
	Merge(other Accumulator) error

	// SizeEstimate returns a cheap heuristic of the resident size in bytes.
	// It drives hibernation decisions only, never correctness.
	SizeEstimate() int64

	// MarshalBinary serializes the accumulator state.
	MarshalBinary() ([]byte, error)

	// UnmarshalBinary restores the accumulator state. The receiver must be
	// freshly created by the Factory.
	UnmarshalBinary(data []byte) error
}

// Factory creates an empty Accumulator. It is used by the tick store on the
// first entry of a tick, by checkpoint restore, and by hibernation boot.
type Factory func() Accumulator

// Fact is a single typed fact extracted from file content by an Extractor.
type Fact struct {
	// Category is the fact's category label, e.g. the source language.
	Category string

	// Key is the fact's key, e.g. an import path.
	Key string
}

// Extractor produces typed facts from file content. Implementations are
// analyzer-specific; extraction errors are treated as soft failures by the
// extractor pool (the file is skipped).
type Extractor interface {
	// Supported reports whether the file's extension maps to a recognized
	// language. Unsupported files are soft-skipped without calling Extract.
	Supported(path string) bool

	// Extract parses the file content and returns its facts.
	Extract(path string, data []byte) ([]Fact, error)
}

// Report is the externally consumed analysis result: a nested mapping plus
// side metadata, ready for downstream serialization.
type Report map[string]any
