// ABOUTME: Prometheus collector for client-side SDK observability
// ABOUTME: Counts requests by outcome, cache effectiveness, and token refreshes

package metrics

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates the SDK's operational metrics. It satisfies
// cache.Recorder so the query cache can report hit rates through it.
type Collector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  prometheus.Histogram
	requestsInFlight prometheus.Gauge

	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	cacheExpired prometheus.Counter

	tokenRefreshes *prometheus.CounterVec
}

// NewCollector builds and registers the SDK metrics. A nil registerer uses
// the process-wide default registry. Metrics already registered there are
// reused, so multiple clients in one process share the same series.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{}

	c.requestsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "compliance_client_requests_total",
		Help: "Total number of API requests by outcome kind",
	}, []string{"kind"})).(*prometheus.CounterVec)

	c.requestDuration = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "compliance_client_request_duration_seconds",
		Help:    "API request latency in seconds",
		Buckets: prometheus.DefBuckets,
	})).(prometheus.Histogram)

	c.requestsInFlight = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "compliance_client_requests_in_flight",
		Help: "Current number of in-flight API requests",
	})).(prometheus.Gauge)

	c.cacheHits = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "compliance_cache_hits_total",
		Help: "Total number of query cache hits",
	})).(prometheus.Counter)

	c.cacheMisses = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "compliance_cache_misses_total",
		Help: "Total number of query cache misses",
	})).(prometheus.Counter)

	c.cacheExpired = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "compliance_cache_expired_total",
		Help: "Total number of query cache entries dropped for staleness",
	})).(prometheus.Counter)

	c.tokenRefreshes = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "compliance_token_refreshes_total",
		Help: "Total number of bearer token refresh attempts by result",
	}, []string{"result"})).(*prometheus.CounterVec)

	return c
}

// register adds the collector to the registry, or returns the live collector
// when one with the same name is already registered.
func register(reg prometheus.Registerer, coll prometheus.Collector) prometheus.Collector {
	if err := reg.Register(coll); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return coll
}

// RecordRequest records a finished request: its outcome kind ("success" or
// an error kind) and wall-clock latency.
func (c *Collector) RecordRequest(kind string, latencySeconds float64) {
	c.requestsTotal.WithLabelValues(kind).Inc()
	c.requestDuration.Observe(latencySeconds)
}

// RequestStarted marks a request in flight.
func (c *Collector) RequestStarted() {
	c.requestsInFlight.Inc()
}

// RequestFinished marks a request complete.
func (c *Collector) RequestFinished() {
	c.requestsInFlight.Dec()
}

// CacheHit records a fresh cache read.
func (c *Collector) CacheHit() {
	c.cacheHits.Inc()
}

// CacheMiss records a read with no cached value.
func (c *Collector) CacheMiss() {
	c.cacheMisses.Inc()
}

// CacheExpired records a read that found only a stale value.
func (c *Collector) CacheExpired() {
	c.cacheExpired.Inc()
}

// TokenRefresh records a refresh attempt outcome.
func (c *Collector) TokenRefresh(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.tokenRefreshes.WithLabelValues(result).Inc()
}

// StartServer exposes the default registry on /metrics. Blocks like
// http.ListenAndServe.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
