package attempt

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrActiveAttemptExists is returned by Create when the user already has
	// an active attempt for the quiz.
	ErrActiveAttemptExists = errors.New("active attempt already exists")
	// ErrVersionConflict is returned by Update when the stored version moved on.
	ErrVersionConflict = errors.New("attempt version conflict")
)

// Cursor is a position in the StartedAt, ID order. A nil cursor starts
// from the oldest attempt.
type Cursor struct {
	StartedAt time.Time
	ID        string
}

func (c *Cursor) Same(other *Cursor) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.ID == other.ID && c.StartedAt.Equal(other.StartedAt)
}

// Precedes reports whether the position (startedAt, id) sorts after c.
func (c *Cursor) Precedes(startedAt time.Time, id string) bool {
	if c == nil {
		return true
	}
	if !startedAt.Equal(c.StartedAt) {
		return startedAt.After(c.StartedAt)
	}
	return id > c.ID
}

// CursorOf returns the position just after a.
func CursorOf(a *Attempt) *Cursor {
	return &Cursor{StartedAt: a.StartedAt, ID: a.ID}
}

// Page is one slice of a status scan. Next is nil once the scan reached the
// end; it also moves past malformed records.
type Page struct {
	Attempts  []*Attempt
	Malformed int
	Next      *Cursor
}

// Store persists attempts. Implementations must enforce the single active
// attempt per user and quiz, and compare-and-swap on Version in Update.
type Store interface {
	// Create inserts a with Version 1.
	Create(ctx context.Context, a *Attempt) error
	Get(ctx context.Context, id string) (*Attempt, error)
	// FindActive returns nil, nil when the user has no active attempt.
	FindActive(ctx context.Context, userID, quizID string) (*Attempt, error)
	// ListByUserQuiz returns every attempt ordered by attempt number.
	ListByUserQuiz(ctx context.Context, userID, quizID string) ([]*Attempt, error)
	// Update writes a if the stored version equals a.Version, then bumps it.
	Update(ctx context.Context, a *Attempt) error
	// ListByStatus returns the next page of up to limit attempts after the
	// cursor, ordered by StartedAt then ID. Records that fail to decode are
	// counted in Page.Malformed instead of failing the call.
	ListByStatus(ctx context.Context, statuses []Status, after *Cursor, limit int) (Page, error)
	// DeleteStale removes attempts in statuses whose LastActiveAt is older
	// than the cutoff and reports how many were removed.
	DeleteStale(ctx context.Context, statuses []Status, lastActiveBefore time.Time) (int64, error)
}
