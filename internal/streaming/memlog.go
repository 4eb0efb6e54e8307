package streaming

import (
	"context"
	"log/slog"
	"runtime"
)

// PartitionMemoryLog holds memory measurements for a single partition run.
type PartitionMemoryLog struct {
	PartitionIndex  int
	Commits         int
	HeapAfter       int64
	SysAfter        int64
	ResidentState   int64
	HibernatedTicks int
}

// CapturePartitionMemory samples runtime memory after a partition finishes.
func CapturePartitionMemory(index int, bounds Bounds, residentState int64, hibernated int) PartitionMemoryLog {
	var ms runtime.MemStats

	runtime.ReadMemStats(&ms)

	return PartitionMemoryLog{
		PartitionIndex:  index,
		Commits:         bounds.Len(),
		HeapAfter:       int64(ms.HeapAlloc),
		SysAfter:        int64(ms.Sys),
		ResidentState:   residentState,
		HibernatedTicks: hibernated,
	}
}

// LogPartitionMemory emits a structured log entry with per-partition memory
// telemetry.
func LogPartitionMemory(ctx context.Context, logger *slog.Logger, entry PartitionMemoryLog) {
	logger.InfoContext(ctx, "partition memory",
		"partition", entry.PartitionIndex+1,
		"commits", entry.Commits,
		"heap_mib", entry.HeapAfter/int64(mib),
		"sys_mib", entry.SysAfter/int64(mib),
		"resident_state_mib", entry.ResidentState/int64(mib),
		"hibernated_ticks", entry.HibernatedTicks,
	)
}
