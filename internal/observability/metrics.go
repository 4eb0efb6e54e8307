package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Skip reason labels for the files_skipped counter.
const (
	SkipReasonTooLarge    = "too_large"
	SkipReasonEmpty       = "empty"
	SkipReasonUnsupported = "unsupported"
	SkipReasonExtract     = "extract_error"
)

// EngineMetrics records aggregation engine metrics. All methods are nil-safe:
// a nil *EngineMetrics records nothing, so wiring metrics stays optional.
type EngineMetrics struct {
	commitsProcessed prometheus.Counter
	entriesFolded    prometheus.Counter
	filesSkipped     *prometheus.CounterVec
	checkpointSaves  prometheus.Counter
	hibernateSpills  prometheus.Counter
	hibernateBoots   prometheus.Counter
	residentBytes    prometheus.Gauge
}

// NewEngineMetrics creates engine metrics and registers them with reg.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		commitsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickfold_commits_processed_total",
			Help: "Commits folded into tick stores.",
		}),
		entriesFolded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickfold_entries_folded_total",
			Help: "Extracted entries folded into accumulators.",
		}),
		filesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickfold_files_skipped_total",
			Help: "Files soft-skipped during extraction, by reason.",
		}, []string{"reason"}),
		checkpointSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickfold_checkpoint_saves_total",
			Help: "Checkpoint blobs written.",
		}),
		hibernateSpills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickfold_hibernation_spills_total",
			Help: "Tick accumulators spilled to storage.",
		}),
		hibernateBoots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickfold_hibernation_boots_total",
			Help: "Tick accumulators reloaded from storage.",
		}),
		residentBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tickfold_resident_accumulator_bytes",
			Help: "Estimated resident accumulator bytes of the active store.",
		}),
	}

	reg.MustRegister(
		m.commitsProcessed, m.entriesFolded, m.filesSkipped,
		m.checkpointSaves, m.hibernateSpills, m.hibernateBoots,
		m.residentBytes,
	)

	return m
}

// CommitProcessed records one folded commit and its entry count.
func (m *EngineMetrics) CommitProcessed(entries int) {
	if m == nil {
		return
	}

	m.commitsProcessed.Inc()
	m.entriesFolded.Add(float64(entries))
}

// FileSkipped records one soft-skipped file with the given reason label.
func (m *EngineMetrics) FileSkipped(reason string) {
	if m == nil {
		return
	}

	m.filesSkipped.WithLabelValues(reason).Inc()
}

// CheckpointSaved records one checkpoint write.
func (m *EngineMetrics) CheckpointSaved() {
	if m == nil {
		return
	}

	m.checkpointSaves.Inc()
}

// Spilled records one hibernation spill.
func (m *EngineMetrics) Spilled() {
	if m == nil {
		return
	}

	m.hibernateSpills.Inc()
}

// Booted records one hibernation boot.
func (m *EngineMetrics) Booted() {
	if m == nil {
		return
	}

	m.hibernateBoots.Inc()
}

// ResidentBytes records the current resident accumulator size estimate.
func (m *EngineMetrics) ResidentBytes(n int64) {
	if m == nil {
		return
	}

	m.residentBytes.Set(float64(n))
}
