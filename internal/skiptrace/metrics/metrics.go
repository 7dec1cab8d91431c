// Package metrics exposes Prometheus instrumentation for the lookup pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	CacheHits        *prometheus.CounterVec
	CacheMisses      prometheus.Counter
	LookupDuration   prometheus.Histogram
	ProviderFailures *prometheus.CounterVec
	FallbackUsed     prometheus.Counter
	CreditsConsumed  *prometheus.CounterVec
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on a specific registerer; tests pass a fresh
// registry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skiptrace_cache_hits_total",
			Help: "Cache hits by scope (user or global)",
		}, []string{"scope"}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "skiptrace_cache_misses_total",
			Help: "Lookups that required a provider call",
		}),
		LookupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "skiptrace_lookup_duration_seconds",
			Help:    "End-to-end lookup latency",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ProviderFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skiptrace_provider_failures_total",
			Help: "Provider call failures by provider and error category",
		}, []string{"provider", "category"}),
		FallbackUsed: factory.NewCounter(prometheus.CounterOpts{
			Name: "skiptrace_fallback_activations_total",
			Help: "Lookups served by the fallback provider",
		}),
		CreditsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skiptrace_credits_consumed_total",
			Help: "Credits consumed by type",
		}, []string{"type"}),
	}
}

// ObserveCacheHit records a cache hit for the given scope.
func (m *Metrics) ObserveCacheHit(scope string) {
	m.CacheHits.WithLabelValues(scope).Inc()
}

// ObserveLookup records end-to-end lookup latency.
func (m *Metrics) ObserveLookup(d time.Duration) {
	m.LookupDuration.Observe(d.Seconds())
}

// ObserveProviderFailure records a failed provider attempt.
func (m *Metrics) ObserveProviderFailure(provider, category string) {
	m.ProviderFailures.WithLabelValues(provider, category).Inc()
}

// ObserveCreditConsumed records a spent credit by type.
func (m *Metrics) ObserveCreditConsumed(creditType string) {
	m.CreditsConsumed.WithLabelValues(creditType).Inc()
}
