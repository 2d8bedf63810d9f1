package event

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) Publish(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestMultiPublishesToEverySinkAndJoinsErrors(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{err: errors.New("broker down")}
	sink := Multi{first, nil, second}

	e := New(AttemptStarted, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	err := sink.Publish(context.Background(), e)
	if err == nil || err.Error() != "broker down" {
		t.Fatalf("expected joined broker error, got %v", err)
	}
	if len(first.events) != 1 || len(second.events) != 1 {
		t.Fatalf("expected both sinks to receive the event")
	}
	if first.events[0].ID == "" || first.events[0].Type != AttemptStarted {
		t.Fatalf("unexpected event: %+v", first.events[0])
	}
}

func TestNopNeverFails(t *testing.T) {
	if err := (Nop{}).Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("Nop returned error: %v", err)
	}
}
