package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHTTPRequest(t *testing.T) {
	m := New()

	m.RecordHTTPRequest("GET", "/api/runs/:id", 200, 50*time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/runs/:id", 200, 30*time.Millisecond)
	m.RecordHTTPRequest("POST", "/api/generate", 400, 5*time.Millisecond)

	count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/runs/:id", "200"))
	assert.Equal(t, float64(2), count)

	count = testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/generate", "400"))
	assert.Equal(t, float64(1), count)
}

func TestRecordGenerationCall(t *testing.T) {
	m := New()

	m.RecordGenerationCall("background", nil)
	m.RecordGenerationCall("background", nil)
	m.RecordGenerationCall("background", errors.New("model error"))
	m.RecordGenerationCall("", nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.GenerationCallsTotal.WithLabelValues("background", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GenerationCallsTotal.WithLabelValues("background", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GenerationCallsTotal.WithLabelValues("standard", "success")),
		"untyped calls are labelled standard")
}

func TestRecordRun(t *testing.T) {
	m := New()

	m.RecordRun("completed", 45*time.Second)
	m.RecordRun("failed", 2*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsTotal.WithLabelValues("failed")))
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances must not collide, unlike the default registry.
	a := New()
	b := New()

	a.RecordRun("completed", time.Second)

	families, err := b.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "gemkit_pipeline_runs_total" {
			for _, metric := range mf.GetMetric() {
				assert.Zero(t, metric.GetCounter().GetValue())
			}
		}
	}
}
