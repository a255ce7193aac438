package controllers

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	orgAPIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "org",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Hierarchy API requests by endpoint and status class.",
	}, []string{"endpoint", "result"})

	orgAPILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "org",
		Subsystem: "api",
		Name:      "latency_seconds",
		Help:      "Hierarchy API latency by endpoint and status class.",
		Buckets: []float64{
			0.001, 0.002, 0.005,
			0.01, 0.02, 0.05,
			0.1, 0.2, 0.5,
			1, 2, 5, 10,
		},
	}, []string{"endpoint", "result"})
)

type statusRecordingResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecordingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecordingResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecordingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusRecordingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

// instrumentAPI labels samples with the fixed endpoint name, never the raw
// path.
func (c *HierarchyAPIController) instrumentAPI(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecordingResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		result := statusClass(rec.status)

		orgAPIRequests.WithLabelValues(endpoint, result).Inc()
		orgAPILatency.WithLabelValues(endpoint, result).Observe(time.Since(start).Seconds())
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
