package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	ScoresComputed     prometheus.Counter
	SuggestionsServed  prometheus.Counter
	AssignmentsTotal   prometheus.Counter
	EnrollmentsCreated prometheus.Counter
	StepsDispatched    *prometheus.CounterVec
	StepsReclaimed     prometheus.Counter
}

// Outcome labels for StepsDispatched.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		ScoresComputed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lead_scores_computed_total",
			Help: "Total number of lead scores computed",
		}),
		SuggestionsServed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "allocation_suggestions_served_total",
			Help: "Total number of allocation suggestion requests served",
		}),
		AssignmentsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rep_assignments_total",
			Help: "Total number of rep assignments",
		}),
		EnrollmentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nurture_enrollments_created_total",
			Help: "Total number of nurture enrollments created",
		}),
		StepsDispatched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nurture_steps_dispatched_total",
				Help: "Total number of scheduled steps dispatched, by outcome",
			},
			[]string{"outcome"},
		),
		StepsReclaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nurture_steps_reclaimed_total",
			Help: "Total number of stale processing steps reclaimed",
		}),
	}
}

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			labels := []string{c.Request().Method, c.Path(), strconv.Itoa(status)}
			m.HTTPRequestsTotal.WithLabelValues(labels...).Inc()
			m.HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
