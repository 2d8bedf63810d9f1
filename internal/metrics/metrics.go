// Package metrics exposes Prometheus collectors for attempts, sweeps and the
// HTTP surface.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quiz-engine/internal/event"
	"quiz-engine/internal/sweeper"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	events        *prometheus.CounterVec
	sweepRuns     prometheus.Counter
	sweepOutcomes *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	requests      *prometheus.CounterVec
	requestTime   *prometheus.HistogramVec
}

// New registers every collector on reg. Pass a fresh prometheus.NewRegistry()
// in tests to keep registrations isolated.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		// Domain events by type
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_events_total",
				Help: "Total number of attempt and result events emitted",
			},
			[]string{"type"},
		),

		sweepRuns: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "quiz_sweeper_runs_total",
				Help: "Total number of sweeper passes",
			},
		),
		sweepOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_sweeper_attempts_total",
				Help: "Attempts touched by the sweeper",
			},
			[]string{"outcome"}, // expired/abandoned/deleted/graded/failed
		),
		sweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quiz_sweeper_duration_seconds",
				Help:    "Time spent in one sweeper pass",
				Buckets: prometheus.DefBuckets,
			},
		),

		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quiz_http_request_duration_seconds",
				Help:    "Time spent serving HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Publish counts the event. It satisfies event.Sink so the collector can sit
// in an event.Multi next to the broker publisher.
func (m *Metrics) Publish(_ context.Context, e event.Event) error {
	m.events.WithLabelValues(string(e.Type)).Inc()
	return nil
}

func (m *Metrics) ObserveSweep(report sweeper.Report, elapsed time.Duration) {
	m.sweepRuns.Inc()
	m.sweepDuration.Observe(elapsed.Seconds())
	m.sweepOutcomes.WithLabelValues("expired").Add(float64(report.Expired))
	m.sweepOutcomes.WithLabelValues("abandoned").Add(float64(report.Abandoned))
	m.sweepOutcomes.WithLabelValues("deleted").Add(float64(report.Deleted))
	m.sweepOutcomes.WithLabelValues("graded").Add(float64(report.Graded))
	m.sweepOutcomes.WithLabelValues("failed").Add(float64(report.Failed))
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestTime.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
