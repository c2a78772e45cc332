package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/KashirApp/Kashir-sub002/pkg/monitoring"
)

// Metrics holds all Prometheus metrics for the Lookout service
type Metrics struct {
	// Pipeline metrics
	PipelineRuns       *prometheus.CounterVec
	SnapshotsPublished *prometheus.CounterVec
	RunDuration        *prometheus.HistogramVec

	// Resolution metrics
	NotesResolved *prometheus.CounterVec

	// Stats cache metrics
	StatsBatches *prometheus.CounterVec
	StatsRecords *prometheus.CounterVec
}

// New registers all Lookout metrics against the collector's registry.
func New(collector *monitoring.MetricsCollector) *Metrics {
	return &Metrics{
		PipelineRuns: collector.NewCounter(
			"lookout_pipeline_runs_total",
			"Enrichment pipeline runs by outcome",
			[]string{"outcome"},
		),
		SnapshotsPublished: collector.NewCounter(
			"lookout_snapshots_published_total",
			"Feed snapshots published by phase",
			[]string{"phase"},
		),
		RunDuration: collector.NewHistogram(
			"lookout_run_duration_seconds",
			"Wall-clock duration of one pipeline run",
			[]string{"outcome"},
			[]float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		),
		NotesResolved: collector.NewCounter(
			"lookout_notes_resolved_total",
			"Note resolution attempts by outcome",
			[]string{"outcome"},
		),
		StatsBatches: collector.NewCounter(
			"lookout_stats_batches_total",
			"Stats cache batch requests by outcome",
			[]string{"outcome"},
		),
		StatsRecords: collector.NewCounter(
			"lookout_stats_records_total",
			"Engagement statistics records parsed",
			nil,
		),
	}
}

// RecordPipelineRun increments the run counter when metrics are wired.
func (m *Metrics) RecordPipelineRun(outcome string) {
	if m == nil || m.PipelineRuns == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(outcome).Inc()
}

// RecordSnapshot counts one published snapshot.
func (m *Metrics) RecordSnapshot(phase string) {
	if m == nil || m.SnapshotsPublished == nil {
		return
	}
	m.SnapshotsPublished.WithLabelValues(phase).Inc()
}

// RecordRunDuration observes a completed run's wall-clock time.
func (m *Metrics) RecordRunDuration(outcome string, seconds float64) {
	if m == nil || m.RunDuration == nil {
		return
	}
	m.RunDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordNoteResolution counts one resolution attempt by outcome.
func (m *Metrics) RecordNoteResolution(outcome string) {
	if m == nil || m.NotesResolved == nil {
		return
	}
	m.NotesResolved.WithLabelValues(outcome).Inc()
}

// RecordStatsBatch counts one stats batch by outcome.
func (m *Metrics) RecordStatsBatch(outcome string) {
	if m == nil || m.StatsBatches == nil {
		return
	}
	m.StatsBatches.WithLabelValues(outcome).Inc()
}

// RecordStatsRecords counts parsed statistics records.
func (m *Metrics) RecordStatsRecords(n int) {
	if m == nil || m.StatsRecords == nil || n == 0 {
		return
	}
	m.StatsRecords.WithLabelValues().Add(float64(n))
}
