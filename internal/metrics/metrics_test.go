package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Ask(OutcomeChitChat)
	m.Ask(OutcomeChitChat)
	m.Ask(OutcomeExtractive)
	m.Graded(true)
	m.Graded(false)
	m.Graded(false)
	m.ObserveRetrieval(20 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.asks.WithLabelValues(OutcomeChitChat)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.asks.WithLabelValues(OutcomeExtractive)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.graded.WithLabelValues("false")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Ask(OutcomeFallback)
		m.QuizStarted()
		m.Graded(true)
		m.UpstreamFailure("embedder")
		m.ObserveRetrieval(time.Second)
		m.SetDocuments(3)
	})
}

func TestHandlerServesExposition(t *testing.T) {
	m := New()
	m.QuizStarted()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "docqa_quizzes_started_total 1")
}
