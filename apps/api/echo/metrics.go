package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	authEvents  *prometheus.CounterVec
	enrollments *prometheus.CounterVec
	submissions *prometheus.CounterVec
}

func newMetrics(namespace string) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		authEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_events_total",
				Help:      "Total number of sign ups and logins",
			},
			[]string{"event"},
		),
		enrollments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enrollment_outcomes_total",
				Help:      "Total number of enrollment operations by resulting state",
			},
			[]string{"operation", "state"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quiz_submissions_total",
				Help:      "Total number of graded quiz submissions",
			},
			[]string{"passed"},
		),
	}
	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		m.requests,
		m.duration,
		m.authEvents,
		m.enrollments,
		m.submissions,
	)
	return m
}

func (m *metrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			route := ctx.Path()
			timer := prometheus.NewTimer(m.duration.WithLabelValues(ctx.Request().Method, route))
			// the error handler runs here so that the final status is counted
			if err := next(ctx); err != nil {
				ctx.Error(err)
			}
			timer.ObserveDuration()

			code := strconv.Itoa(ctx.Response().Status)
			m.requests.WithLabelValues(ctx.Request().Method, route, code).Inc()
			return nil
		}
	}
}

func (m *metrics) handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *metrics) authEvent(event string) {
	m.authEvents.WithLabelValues(event).Inc()
}

func (m *metrics) enrollmentOutcome(operation, state string) {
	m.enrollments.WithLabelValues(operation, state).Inc()
}

func (m *metrics) submission(passed bool) {
	m.submissions.WithLabelValues(strconv.FormatBool(passed)).Inc()
}
