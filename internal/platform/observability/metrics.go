package observability

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datasequence",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Count of handled HTTP requests by method, path and status.",
	}, []string{"method", "path", "status"})
	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "datasequence",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and path.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
	webhookEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datasequence",
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Outcomes of Metriport webhook event processing.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, webhookEventsTotal)
}

// Webhook ingestion outcomes.
const (
	OutcomeNormalized = "normalized"
	OutcomeSkipped    = "skipped"
	OutcomeUnhandled  = "unhandled"
	OutcomePing       = "ping"
)

// RecordWebhookEvent increments the ingestion outcome counter.
func RecordWebhookEvent(outcome string) {
	webhookEventsTotal.WithLabelValues(outcome).Inc()
}

// Metrics instruments every request with a counter and latency histogram.
// The route path (not the raw URL) is used to bound label cardinality.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			httpRequestsTotal.WithLabelValues(
				c.Request().Method,
				path,
				strconv.Itoa(c.Response().Status),
			).Inc()
			httpRequestDuration.WithLabelValues(c.Request().Method, path).
				Observe(time.Since(start).Seconds())

			return err
		}
	}
}
