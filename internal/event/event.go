// Package event carries lifecycle notifications out of the attempt and
// scoring packages. Delivery is best effort.
package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	AttemptStarted   Type = "attempt.started"
	AttemptResumed   Type = "attempt.resumed"
	AnswerSaved      Type = "attempt.answer_saved"
	QuestionSkipped  Type = "attempt.question_skipped"
	AttemptNavigated Type = "attempt.navigated"
	AttemptPaused    Type = "attempt.paused"
	AttemptFlagged   Type = "attempt.flagged"
	AttemptUnflagged Type = "attempt.unflagged"
	ActivityRecorded Type = "attempt.activity_recorded"
	AttemptSubmitted Type = "attempt.submitted"
	AttemptExpired   Type = "attempt.expired"
	AttemptAbandoned Type = "attempt.abandoned"
	ResultCreated    Type = "result.created"
	FeedbackAdded    Type = "result.feedback_added"
)

type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	UserID     string         `json:"user_id,omitempty"`
	QuizID     string         `json:"quiz_id,omitempty"`
	AttemptID  string         `json:"attempt_id,omitempty"`
	ResultID   string         `json:"result_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

func New(eventType Type, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: at,
	}
}

type Sink interface {
	Publish(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
