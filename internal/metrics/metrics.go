// Package metrics exposes Prometheus instrumentation for harvest runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the harvester collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	pagesFetched     *prometheus.CounterVec
	articlesInserted *prometheus.CounterVec
	articlesSkipped  *prometheus.CounterVec
	fetchErrors      *prometheus.CounterVec
	fetchRetries     *prometheus.CounterVec
	fieldAnomalies   *prometheus.CounterVec
	runsFinished     *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	activeRuns       prometheus.Gauge
	publishFailures  *prometheus.CounterVec
}

// New registers the collectors on reg. Passing prometheus.DefaultRegisterer
// publishes them on the default /metrics handler.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		pagesFetched: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_fetched_total",
				Help: "Pages successfully fetched from the works endpoint",
			},
			[]string{"query"},
		),
		articlesInserted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_articles_inserted_total",
				Help: "Articles newly written to the store",
			},
			[]string{"query"},
		),
		articlesSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_articles_skipped_total",
				Help: "Articles skipped because their DOI was already stored",
			},
			[]string{"query"},
		),
		fetchErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_errors_total",
				Help: "Failed page fetches by error kind",
			},
			[]string{"query", "kind"},
		),
		fetchRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_retries_total",
				Help: "Page fetches retried after a retryable failure",
			},
			[]string{"query"},
		),
		fieldAnomalies: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_field_anomalies_total",
				Help: "Record fields that were present but unusable",
			},
			[]string{"query", "field"},
		),
		runsFinished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_runs_total",
				Help: "Completed ingest runs by termination reason",
			},
			[]string{"query", "reason"},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_run_duration_seconds",
				Help:    "Duration of ingest runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"query"},
		),
		activeRuns: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_runs",
				Help: "Ingest runs currently in progress",
			},
		),
		publishFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_publish_failures_total",
				Help: "Article events that failed to publish",
			},
			[]string{"query"},
		),
	}
}

func (r *Recorder) PageFetched(query string) {
	if r == nil {
		return
	}
	r.pagesFetched.WithLabelValues(query).Inc()
}

func (r *Recorder) ArticlesStored(query string, inserted, skipped int) {
	if r == nil {
		return
	}
	r.articlesInserted.WithLabelValues(query).Add(float64(inserted))
	r.articlesSkipped.WithLabelValues(query).Add(float64(skipped))
}

func (r *Recorder) FetchFailed(query, kind string) {
	if r == nil {
		return
	}
	r.fetchErrors.WithLabelValues(query, kind).Inc()
}

func (r *Recorder) FetchRetried(query string) {
	if r == nil {
		return
	}
	r.fetchRetries.WithLabelValues(query).Inc()
}

func (r *Recorder) FieldAnomaly(query, field string) {
	if r == nil {
		return
	}
	r.fieldAnomalies.WithLabelValues(query, field).Inc()
}

// RunStarted marks a run active; call the returned func when it finishes.
func (r *Recorder) RunStarted() func() {
	if r == nil {
		return func() {}
	}
	r.activeRuns.Inc()
	return r.activeRuns.Dec
}

func (r *Recorder) RunFinished(query, reason string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.runsFinished.WithLabelValues(query, reason).Inc()
	r.runDuration.WithLabelValues(query).Observe(elapsed.Seconds())
}

func (r *Recorder) PublishFailed(query string) {
	if r == nil {
		return
	}
	r.publishFailures.WithLabelValues(query).Inc()
}
