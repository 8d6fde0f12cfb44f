// Package metrics holds the Prometheus instruments shared by the ingestion,
// retrieval and consistency paths.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "meeting_rag"

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	Registry *prometheus.Registry

	RetrievalRequests  *prometheus.CounterVec
	RetrievalSeconds   *prometheus.HistogramVec
	RetrievalFallbacks *prometheus.CounterVec
	ChunkerFallbacks   *prometheus.CounterVec
	DocumentsIngested  *prometheus.CounterVec
	ConsistencyErrors  *prometheus.CounterVec
	ChatQueries        *prometheus.CounterVec
}

// New registers the instruments on a fresh registry, along with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RetrievalRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_requests_total",
				Help:      "Retrievals by collection and effective strategy",
			},
			[]string{"collection", "strategy"},
		),
		RetrievalSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_seconds",
				Help:      "Retrieval latency",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"strategy"},
		),
		RetrievalFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrieval_fallbacks_total",
				Help:      "Self-query retrievals that fell back to similarity search",
			},
			[]string{"collection", "reason"},
		),
		ChunkerFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunker_fallbacks_total",
				Help:      "Transcripts chunked by the fixed-size fallback splitter",
			},
			[]string{"reason"},
		),
		DocumentsIngested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_ingested_total",
				Help:      "Documents written to the vector store",
			},
			[]string{"collection"},
		),
		ConsistencyErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consistency_errors_total",
				Help:      "Operations that left the vector and relational stores out of sync",
			},
			[]string{"op"},
		),
		ChatQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_queries_total",
				Help:      "Chat queries by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) ObserveRetrieval(collection, strategy string, d time.Duration) {
	if m == nil {
		return
	}
	m.RetrievalRequests.WithLabelValues(collection, strategy).Inc()
	m.RetrievalSeconds.WithLabelValues(strategy).Observe(d.Seconds())
}

func (m *Metrics) RetrievalFallback(collection, reason string) {
	if m == nil {
		return
	}
	m.RetrievalFallbacks.WithLabelValues(collection, reason).Inc()
}

func (m *Metrics) ChunkerFallback(reason string) {
	if m == nil {
		return
	}
	m.ChunkerFallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) Ingested(collection string, n int) {
	if m == nil {
		return
	}
	m.DocumentsIngested.WithLabelValues(collection).Add(float64(n))
}

func (m *Metrics) ConsistencyError(op string) {
	if m == nil {
		return
	}
	m.ConsistencyErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) ChatQuery(outcome string) {
	if m == nil {
		return
	}
	m.ChatQueries.WithLabelValues(outcome).Inc()
}
