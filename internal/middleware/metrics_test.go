package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"olympics-etl/internal/metrics"
)

func TestWrapHandlerRecordsStatus(t *testing.T) {
	handler := WrapHandler(metrics.EndpointRuns, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(metrics.EndpointRuns, "401"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}

	after := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(metrics.EndpointRuns, "401"))
	if after != before+1 {
		t.Errorf("Expected counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestWrapHandlerDefaultsToOK(t *testing.T) {
	handler := WrapHandler(metrics.EndpointHealth, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(metrics.EndpointHealth, "200"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	after := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(metrics.EndpointHealth, "200"))
	if after != before+1 {
		t.Errorf("Expected 200 to be recorded, got %v -> %v", before, after)
	}
}
