package rabbitmq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"quiz-engine/internal/event"
)

func TestPublisherWithoutURIIsDisabled(t *testing.T) {
	publisher, err := NewPublisher("", "")
	if err != nil {
		t.Fatalf("NewPublisher returned error: %v", err)
	}
	if publisher.Enabled() {
		t.Fatalf("expected disabled publisher")
	}
	if err := publisher.Publish(context.Background(), event.New(event.AttemptStarted, time.Now())); err != nil {
		t.Fatalf("disabled publisher returned error: %v", err)
	}
	if err := publisher.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestEncodeSetsRoutingMetadata(t *testing.T) {
	e := event.New(event.AttemptSubmitted, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))
	e.UserID = "u1"
	e.AttemptID = "a1"

	msg, err := encode(e)
	if err != nil {
		t.Fatalf("encode returned error: %v", err)
	}
	if msg.DeliveryMode != amqp.Persistent || msg.ContentType != "application/json" {
		t.Fatalf("unexpected publishing properties: %+v", msg)
	}
	if msg.Headers["attempt_id"] != "a1" || msg.Type != "attempt.submitted" {
		t.Fatalf("unexpected headers: %+v", msg.Headers)
	}

	var decoded event.Event
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatalf("body is not json: %v", err)
	}
	if decoded.ID != e.ID || decoded.UserID != "u1" {
		t.Fatalf("unexpected body: %+v", decoded)
	}
}
