package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper aggregator.
// Metrics are organized by subsystem: searches, papers, source transports,
// and the multi-source manager. All counters and histograms are registered
// via promauto for automatic registration with the default Prometheus
// registry.
//
// All Record methods are safe to call on a nil *Metrics; they then record
// nothing. This lets components treat metrics as an optional dependency.
type Metrics struct {
	// SearchesStarted counts searches initiated, labeled by paper source.
	SearchesStarted *prometheus.CounterVec

	// SearchesCompleted counts successful searches, labeled by paper source.
	SearchesCompleted *prometheus.CounterVec

	// SearchesFailed counts failed searches, labeled by paper source.
	SearchesFailed *prometheus.CounterVec

	// SearchDuration observes search duration in seconds, labeled by paper source.
	SearchDuration *prometheus.HistogramVec

	// PapersPerSearch observes the distribution of papers returned per search, labeled by source.
	PapersPerSearch *prometheus.HistogramVec

	// PapersFetched counts papers returned across all searches, labeled by source.
	PapersFetched *prometheus.CounterVec

	// RecordsSkipped counts malformed records dropped during response parsing, labeled by source.
	RecordsSkipped *prometheus.CounterVec

	// RequestsRetried counts HTTP request retries, labeled by source.
	RequestsRetried *prometheus.CounterVec

	// RateLimitWaits counts backoff waits caused by 429 responses, labeled by source.
	RateLimitWaits *prometheus.CounterVec

	// FanoutCalls counts multi-source manager calls, labeled by operation
	// ("search" or "details").
	FanoutCalls *prometheus.CounterVec

	// DuplicatesDropped counts papers dropped by cross-source deduplication.
	DuplicatesDropped prometheus.Counter

	// UnknownSources counts requested source names with no registered client.
	UnknownSources prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Searches
		SearchesStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of paper searches started by source",
		}, []string{"source"}),
		SearchesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of paper searches completed by source",
		}, []string{"source"}),
		SearchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of paper searches that failed by source",
		}, []string{"source"}),
		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of paper searches in seconds by source",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"source"}),
		PapersPerSearch: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "papers_per_search",
			Help:      "Number of papers returned per search by source",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}, []string{"source"}),

		// Papers
		PapersFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_fetched_total",
			Help:      "Total number of papers fetched by source",
		}, []string{"source"}),
		RecordsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Total number of malformed records skipped during parsing by source",
		}, []string{"source"}),

		// Source transports
		RequestsRetried: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_retried_total",
			Help:      "Total number of HTTP request retries by source",
		}, []string{"source"}),
		RateLimitWaits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_waits_total",
			Help:      "Total number of rate limit backoff waits by source",
		}, []string{"source"}),

		// Manager
		FanoutCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_calls_total",
			Help:      "Total number of multi-source fan-out calls by operation",
		}, []string{"operation"}),
		DuplicatesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_dropped_total",
			Help:      "Total number of duplicate papers dropped during merging",
		}),
		UnknownSources: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_sources_total",
			Help:      "Total number of requested source names with no registered client",
		}),
	}
}

// RecordSearchStarted records that a search has started.
func (m *Metrics) RecordSearchStarted(source string) {
	if m == nil {
		return
	}
	m.SearchesStarted.WithLabelValues(source).Inc()
}

// RecordSearchCompleted records that a search has completed.
func (m *Metrics) RecordSearchCompleted(source string, paperCount int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SearchesCompleted.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
	m.PapersPerSearch.WithLabelValues(source).Observe(float64(paperCount))
	m.PapersFetched.WithLabelValues(source).Add(float64(paperCount))
}

// RecordSearchFailed records that a search has failed.
func (m *Metrics) RecordSearchFailed(source string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SearchesFailed.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordSkippedRecord records a malformed record dropped during parsing.
func (m *Metrics) RecordSkippedRecord(source string) {
	if m == nil {
		return
	}
	m.RecordsSkipped.WithLabelValues(source).Inc()
}

// RecordRequestRetried records an HTTP request retry.
func (m *Metrics) RecordRequestRetried(source string) {
	if m == nil {
		return
	}
	m.RequestsRetried.WithLabelValues(source).Inc()
}

// RecordRateLimitWait records a backoff wait caused by a 429 response.
func (m *Metrics) RecordRateLimitWait(source string) {
	if m == nil {
		return
	}
	m.RateLimitWaits.WithLabelValues(source).Inc()
}

// RecordFanout records a multi-source manager call.
func (m *Metrics) RecordFanout(operation string) {
	if m == nil {
		return
	}
	m.FanoutCalls.WithLabelValues(operation).Inc()
}

// RecordDuplicatesDropped records papers dropped by deduplication.
func (m *Metrics) RecordDuplicatesDropped(count int) {
	if m == nil {
		return
	}
	m.DuplicatesDropped.Add(float64(count))
}

// RecordUnknownSource records a requested source name with no registered client.
func (m *Metrics) RecordUnknownSource() {
	if m == nil {
		return
	}
	m.UnknownSources.Inc()
}
