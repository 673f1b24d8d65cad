// Package metrics holds the Prometheus collectors for sync and answer
// pipelines. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "homeqa"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	SyncsStarted    *prometheus.CounterVec
	SyncsCompleted  *prometheus.CounterVec
	SyncsFailed     *prometheus.CounterVec
	SyncDuration    prometheus.Histogram
	MessagesFetched prometheus.Counter
	MessagesIndexed prometheus.Counter
	Queries         prometheus.Counter
	Answers         *prometheus.CounterVec
	AnswerDuration  prometheus.Histogram
	ActiveSyncs     prometheus.Gauge
}

// New creates metrics registered on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SyncsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_started_total",
			Help:      "Total number of sync tasks started",
		}, []string{"source_type"}),
		SyncsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_completed_total",
			Help:      "Total number of sync tasks that completed",
		}, []string{"source_type"}),
		SyncsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_failed_total",
			Help:      "Total number of sync tasks that failed",
		}, []string{"source_type"}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall-clock time of successful sync tasks",
			Buckets:   prometheus.DefBuckets,
		}),
		MessagesFetched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_fetched_total",
			Help:      "Total number of messages fetched from sources",
		}),
		MessagesIndexed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_indexed_total",
			Help:      "Total number of messages newly added to the index",
		}),
		Queries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_queries_total",
			Help:      "Total number of index queries",
		}),
		Answers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Total number of answers by intent",
		}, []string{"intent"}),
		AnswerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_duration_seconds",
			Help:      "Time spent composing answers",
			Buckets:   prometheus.DefBuckets,
		}),
		ActiveSyncs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_syncs",
			Help:      "Number of sync tasks currently running",
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SyncStarted records the start of a sync task.
func (m *Metrics) SyncStarted(sourceType string) {
	if m == nil {
		return
	}
	m.SyncsStarted.WithLabelValues(sourceType).Inc()
	m.ActiveSyncs.Inc()
}

// SyncFinished records the end of a sync task.
func (m *Metrics) SyncFinished(sourceType string, fetched, added int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.ActiveSyncs.Dec()
	m.MessagesFetched.Add(float64(fetched))
	if err != nil {
		m.SyncsFailed.WithLabelValues(sourceType).Inc()
		return
	}
	m.MessagesIndexed.Add(float64(added))
	m.SyncsCompleted.WithLabelValues(sourceType).Inc()
	m.SyncDuration.Observe(elapsed.Seconds())
}

// QueryServed records an index query.
func (m *Metrics) QueryServed() {
	if m == nil {
		return
	}
	m.Queries.Inc()
}

// AnswerServed records a composed answer.
func (m *Metrics) AnswerServed(intent string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Answers.WithLabelValues(intent).Inc()
	m.AnswerDuration.Observe(elapsed.Seconds())
}
