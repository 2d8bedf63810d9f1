package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"quiz-engine/internal/event"
	"quiz-engine/internal/sweeper"
)

func TestPublishCountsByType(t *testing.T) {
	m := New(prometheus.NewRegistry())
	ctx := context.Background()

	for _, eventType := range []event.Type{event.AttemptStarted, event.AttemptStarted, event.AttemptExpired} {
		if err := m.Publish(ctx, event.New(eventType, time.Now())); err != nil {
			t.Fatalf("Publish returned error: %v", err)
		}
	}

	if got := testutil.ToFloat64(m.events.WithLabelValues(string(event.AttemptStarted))); got != 2 {
		t.Fatalf("expected 2 started events, got %v", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues(string(event.AttemptExpired))); got != 1 {
		t.Fatalf("expected 1 expired event, got %v", got)
	}
}

func TestObserveSweep(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSweep(sweeper.Report{Scanned: 4, Expired: 2, Abandoned: 1, Deleted: 3, Graded: 2}, 40*time.Millisecond)
	m.ObserveSweep(sweeper.Report{Expired: 1, Failed: 1}, 10*time.Millisecond)

	if got := testutil.ToFloat64(m.sweepRuns); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	cases := map[string]float64{"expired": 3, "abandoned": 1, "deleted": 3, "graded": 2, "failed": 1}
	for outcome, want := range cases {
		if got := testutil.ToFloat64(m.sweepOutcomes.WithLabelValues(outcome)); got != want {
			t.Fatalf("%s: expected %v, got %v", outcome, want, got)
		}
	}
}

func TestHandlerServesRegisteredCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRequest(http.MethodPost, "/attempts", http.StatusCreated, 5*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`quiz_http_requests_total{method="POST",route="/attempts",status="201"} 1`,
		`quiz_http_requests_total{method="GET",route="unmatched",status="404"} 1`,
		"quiz_http_request_duration_seconds_bucket",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
