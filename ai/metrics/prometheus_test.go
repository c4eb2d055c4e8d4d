package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusExporter_LLM(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())

	exporter.ObserveAttempt("gemini", "rate_limited", 100*time.Millisecond)
	exporter.ObserveAttempt("gemini", "rate_limited", 120*time.Millisecond)
	exporter.ObserveAttempt("gemini", "success", 300*time.Millisecond)
	exporter.ObserveRetryDelay("gemini", 2*time.Second)
	exporter.ObserveRetryDelay("gemini", time.Second)

	if got := testutil.ToFloat64(exporter.llmAttempts.WithLabelValues("gemini", "rate_limited")); got != 2 {
		t.Errorf("rate_limited attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(exporter.llmAttempts.WithLabelValues("gemini", "success")); got != 1 {
		t.Errorf("success attempts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.llmRetriesTotal.WithLabelValues("gemini")); got != 2 {
		t.Errorf("retries = %v, want 2", got)
	}
}

func TestPrometheusExporter_Summary(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())

	exporter.ObserveCacheLookup("hit")
	exporter.ObserveCacheLookup("hit")
	exporter.ObserveCacheLookup("stale")
	exporter.ObserveStoreError("put")
	exporter.ObserveGeneration("success", time.Second)

	if got := testutil.ToFloat64(exporter.cacheLookups.WithLabelValues("hit")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(exporter.cacheLookups.WithLabelValues("stale")); got != 1 {
		t.Errorf("stale = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.storeErrors.WithLabelValues("put")); got != 1 {
		t.Errorf("store errors = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(exporter.generationDuration); got != 1 {
		t.Errorf("generation duration series = %d, want 1", got)
	}
}

func TestPrometheusExporterHandler(t *testing.T) {
	exporter := NewPrometheusExporter(DefaultConfig())

	exporter.ObserveAttempt("openai", "success", 100*time.Millisecond)
	exporter.ObserveCacheLookup("miss")
	exporter.ObserveGeneration("success", 200*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", http.NoBody)
	w := httptest.NewRecorder()

	exporter.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, name := range []string{
		"reviewsense_llm_attempts_total",
		"reviewsense_llm_attempt_latency_seconds",
		"reviewsense_summary_cache_lookups_total",
		"reviewsense_summary_generations_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s metric in output", name)
		}
	}
}
