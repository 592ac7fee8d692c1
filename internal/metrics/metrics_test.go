package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg)

	rec.PageFetched("q1")
	rec.PageFetched("q1")
	rec.ArticlesStored("q1", 3, 2)
	rec.FetchFailed("q1", "rate_limited")
	rec.FetchRetried("q1")
	rec.FieldAnomaly("q1", "year")
	rec.RunFinished("q1", "exhausted", 2*time.Second)
	rec.PublishFailed("q1")

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.pagesFetched.WithLabelValues("q1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(rec.articlesInserted.WithLabelValues("q1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.articlesSkipped.WithLabelValues("q1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.fetchErrors.WithLabelValues("q1", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.fetchRetries.WithLabelValues("q1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.fieldAnomalies.WithLabelValues("q1", "year")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runsFinished.WithLabelValues("q1", "exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.publishFailures.WithLabelValues("q1")))

	n, err := testutil.GatherAndCount(reg, "harvester_run_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecorderActiveRuns(t *testing.T) {
	rec := New(prometheus.NewRegistry())

	done := rec.RunStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.activeRuns))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.activeRuns))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.PageFetched("q")
	rec.ArticlesStored("q", 1, 1)
	rec.FetchFailed("q", "transport")
	rec.FetchRetried("q")
	rec.FieldAnomaly("q", "title")
	rec.RunFinished("q", "cancelled", time.Second)
	rec.PublishFailed("q")
	rec.RunStarted()()
}
