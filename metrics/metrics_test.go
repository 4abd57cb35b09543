package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_RecordRequest(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordRequest("success", 0.05)
	c.RecordRequest("success", 0.1)
	c.RecordRequest("server_error", 0.2)

	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("Expected 2 successful requests, got %v", got)
	}
	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("server_error")); got != 1 {
		t.Errorf("Expected 1 server error, got %v", got)
	}
}

func TestNewCollector_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewCollector(reg)
	second := NewCollector(reg)

	first.CacheHit()
	second.CacheHit()

	// Both collectors observe through the same registered series.
	if got := testutil.ToFloat64(second.cacheHits); got != 2 {
		t.Errorf("Expected shared series with 2 hits, got %v", got)
	}
}

func TestCollector_InFlightGauge(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RequestStarted()
	c.RequestStarted()
	c.RequestFinished()

	if got := testutil.ToFloat64(c.requestsInFlight); got != 1 {
		t.Errorf("Expected 1 request in flight, got %v", got)
	}
}

func TestCollector_CacheEvents(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.CacheHit()
	c.CacheHit()
	c.CacheMiss()
	c.CacheExpired()

	if got := testutil.ToFloat64(c.cacheHits); got != 2 {
		t.Errorf("Expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(c.cacheMisses); got != 1 {
		t.Errorf("Expected 1 miss, got %v", got)
	}
	if got := testutil.ToFloat64(c.cacheExpired); got != 1 {
		t.Errorf("Expected 1 expired, got %v", got)
	}
}

func TestCollector_TokenRefresh(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.TokenRefresh(true)
	c.TokenRefresh(false)
	c.TokenRefresh(false)

	if got := testutil.ToFloat64(c.tokenRefreshes.WithLabelValues("success")); got != 1 {
		t.Errorf("Expected 1 successful refresh, got %v", got)
	}
	if got := testutil.ToFloat64(c.tokenRefreshes.WithLabelValues("failure")); got != 2 {
		t.Errorf("Expected 2 failed refreshes, got %v", got)
	}
}
