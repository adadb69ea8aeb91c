// Package metrics exposes attendance outcomes to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faceattend/internal/attendance"
)

// Collector implements attendance.Observer on Prometheus metrics.
type Collector struct {
	enrolled       prometheus.Counter
	captureFailed  *prometheus.CounterVec
	matches        *prometheus.CounterVec
	confidence     prometheus.Histogram
	extractLatency prometheus.Histogram
	events         *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
}

var _ attendance.Observer = (*Collector)(nil)

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		enrolled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faceattend_enrollments_total",
			Help: "Users registered with a face descriptor.",
		}),
		captureFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faceattend_capture_failures_total",
			Help: "Failed captures by flow and error code.",
		}, []string{"flow", "code"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faceattend_match_attempts_total",
			Help: "Attendance attempts by outcome.",
		}, []string{"outcome"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "faceattend_match_confidence",
			Help:    "Best confidence of each scored attempt.",
			Buckets: []float64{0, 0.2, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		extractLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "faceattend_extract_latency_seconds",
			Help:    "Time spent extracting a descriptor from a frame.",
			Buckets: prometheus.DefBuckets,
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faceattend_events_processed_total",
			Help: "Queue events handled by the worker, by type.",
		}, []string{"type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faceattend_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "status_code"}),
	}

	reg.MustRegister(
		c.enrolled,
		c.captureFailed,
		c.matches,
		c.confidence,
		c.extractLatency,
		c.events,
		c.httpRequests,
	)
	return c
}

func (c *Collector) Enrolled() { c.enrolled.Inc() }

func (c *Collector) CaptureFailed(flow, code string) {
	c.captureFailed.WithLabelValues(flow, code).Inc()
}

// Matched records an attempt that reached scoring. Attempts rejected for an
// empty enrolled set carry no confidence and are only counted.
func (c *Collector) Matched(outcome string, confidence float64) {
	c.matches.WithLabelValues(outcome).Inc()
	if confidence != 0 {
		c.confidence.Observe(confidence)
	}
}

func (c *Collector) Extracted(d time.Duration) {
	c.extractLatency.Observe(d.Seconds())
}

// EventProcessed counts an event handled by the worker.
func (c *Collector) EventProcessed(eventType string) {
	c.events.WithLabelValues(eventType).Inc()
}

// GinMiddleware counts requests by matched route.
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Next()
		route := ctx.FullPath()
		if route == "" {
			route = "unmatched"
		}
		c.httpRequests.WithLabelValues(route, strconv.Itoa(ctx.Writer.Status())).Inc()
	}
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
