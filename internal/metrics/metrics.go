// Package metrics exposes Prometheus counters for the answering and quiz
// paths. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ask outcomes.
const (
	OutcomeChitChat   = "chitchat"
	OutcomeNoDocument = "no_document"
	OutcomeNotFound   = "not_found"
	OutcomeGenerative = "generative"
	OutcomeExtractive = "extractive"
	OutcomeFallback   = "fallback"
)

type Metrics struct {
	registry         *prometheus.Registry
	asks             *prometheus.CounterVec
	quizzes          prometheus.Counter
	graded           *prometheus.CounterVec
	upstreamFailures *prometheus.CounterVec
	retrieval        prometheus.Histogram
	documents        prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		asks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Name:      "asks_total",
			Help:      "Questions answered, by outcome.",
		}, []string{"outcome"}),
		quizzes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docqa",
			Name:      "quizzes_started_total",
			Help:      "Quiz sessions created.",
		}),
		graded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Name:      "answers_graded_total",
			Help:      "Quiz answers graded, by correctness.",
		}, []string{"correct"}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docqa",
			Name:      "upstream_failures_total",
			Help:      "Embedding or generation calls that failed or timed out.",
		}, []string{"component"}),
		retrieval: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docqa",
			Name:      "retrieval_seconds",
			Help:      "Latency of embedding plus vector lookup.",
			Buckets:   prometheus.DefBuckets,
		}),
		documents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "docqa",
			Name:      "documents",
			Help:      "Registered documents.",
		}),
	}
	reg.MustRegister(m.asks, m.quizzes, m.graded, m.upstreamFailures, m.retrieval, m.documents)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Ask(outcome string) {
	if m != nil {
		m.asks.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) QuizStarted() {
	if m != nil {
		m.quizzes.Inc()
	}
}

func (m *Metrics) Graded(correct bool) {
	if m == nil {
		return
	}
	label := "false"
	if correct {
		label = "true"
	}
	m.graded.WithLabelValues(label).Inc()
}

func (m *Metrics) UpstreamFailure(component string) {
	if m != nil {
		m.upstreamFailures.WithLabelValues(component).Inc()
	}
}

func (m *Metrics) ObserveRetrieval(d time.Duration) {
	if m != nil {
		m.retrieval.Observe(d.Seconds())
	}
}

func (m *Metrics) SetDocuments(n int) {
	if m != nil {
		m.documents.Set(float64(n))
	}
}
