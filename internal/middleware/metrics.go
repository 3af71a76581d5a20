package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"olympics-etl/internal/metrics"
)

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Instrument records request count and latency for endpoint, and logs
// requests that end in a server error
func Instrument(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			statusStr := strconv.Itoa(rec.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(endpoint, statusStr).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(endpoint, statusStr).Observe(duration.Seconds())

			if rec.statusCode >= http.StatusInternalServerError {
				slog.Warn("Request failed",
					"endpoint", endpoint,
					"method", r.Method,
					"status", rec.statusCode,
					"duration", duration)
			}
		})
	}
}

// WrapHandler wraps a HandlerFunc with Instrument
func WrapHandler(endpoint string, handler http.HandlerFunc) http.Handler {
	return Instrument(endpoint)(handler)
}
