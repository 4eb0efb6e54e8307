package streaming

// Detection thresholds.
const (
	// DefaultCommitThreshold is the commit count above which partitioned
	// execution is recommended.
	DefaultCommitThreshold = 50000

	// BudgetSafetyFactor is the fraction of budget to use (leave headroom).
	BudgetSafetyFactor = 80

	// percentDivisor is used for percentage calculations.
	percentDivisor = 100
)

// Detector determines whether a history is large enough to warrant
// partitioned execution.
type Detector struct {
	CommitCount  int
	MemoryBudget int64
}

// ShouldPartition returns true if partitioned execution is recommended.
func (d *Detector) ShouldPartition() bool {
	if d.CommitCount >= DefaultCommitThreshold {
		return true
	}

	if d.MemoryBudget > 0 {
		estimated := d.estimatePeakMemory()
		usableBudget := d.MemoryBudget * BudgetSafetyFactor / percentDivisor

		return estimated > usableBudget
	}

	return false
}

// estimatePeakMemory calculates the estimated peak memory for a single-pass
// run over the whole history.
func (d *Detector) estimatePeakMemory() int64 {
	stateGrowth := int64(d.CommitCount) * AvgStateGrowthPerCommit

	return BaseOverhead + stateGrowth
}
