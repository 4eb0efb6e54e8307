// Package streaming splits a commit range into partitions, runs each
// partition through its own extraction pipeline, and reduces the partial
// results back into one tick store.
package streaming

// Size constants.
const (
	kib = 1024
	mib = 1024 * kib
)

// Planner constraints.
const (
	// MinPartitionSize is the minimum commits per partition to amortize
	// per-partition setup cost.
	MinPartitionSize = 500

	// MaxPartitionSize is the maximum commits per partition to bound memory
	// growth between hibernation sweeps.
	MaxPartitionSize = 5000

	// BaseOverhead is the fixed memory overhead for the Go runtime and the
	// open repository.
	BaseOverhead = 50 * mib

	// AvgStateGrowthPerCommit is the estimated accumulator growth per commit.
	AvgStateGrowthPerCommit = 2 * kib
)

// Planner calculates partition boundaries for a commit range.
type Planner struct {
	TotalCommits int
	MemoryBudget int64
	Partitions   int
}

// Bounds represents a contiguous partition of commits as a [Start, End)
// index pair.
type Bounds struct {
	Start int // Inclusive index.
	End   int // Exclusive index.
}

// Len returns the number of commits in the partition.
func (b Bounds) Len() int {
	return b.End - b.Start
}

// Plan returns partition boundaries covering [0, TotalCommits) exactly once.
// An explicit Partitions count wins over the memory-derived size.
func (p *Planner) Plan() []Bounds {
	if p.TotalCommits <= 0 {
		return nil
	}

	size := p.partitionSize()

	if p.TotalCommits <= size {
		return []Bounds{{Start: 0, End: p.TotalCommits}}
	}

	var bounds []Bounds

	for start := 0; start < p.TotalCommits; start += size {
		end := min(start+size, p.TotalCommits)
		bounds = append(bounds, Bounds{Start: start, End: end})
	}

	return bounds
}

// partitionSize determines the partition size from the explicit count or the
// memory budget.
func (p *Planner) partitionSize() int {
	if p.Partitions > 0 {
		size := (p.TotalCommits + p.Partitions - 1) / p.Partitions

		return max(size, 1)
	}

	if p.MemoryBudget <= 0 {
		return MaxPartitionSize
	}

	available := p.MemoryBudget - BaseOverhead
	if available <= 0 {
		return MinPartitionSize
	}

	maxCommits := int(available / AvgStateGrowthPerCommit)

	if maxCommits < MinPartitionSize {
		return MinPartitionSize
	}

	if maxCommits > MaxPartitionSize {
		return MaxPartitionSize
	}

	return maxCommits
}
