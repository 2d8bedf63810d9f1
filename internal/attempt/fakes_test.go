package attempt

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"quiz-engine/internal/apperr"
	"quiz-engine/internal/event"
	"quiz-engine/internal/quiz"
)

type fakeStore struct {
	mu       sync.Mutex
	attempts map[string]*Attempt

	createCalls int
	updateCalls int
	// conflicts makes the next N updates fail with ErrVersionConflict.
	conflicts int
	// hideActive makes the next N FindActive calls miss.
	hideActive int
}

func newFakeStore() *fakeStore {
	return &fakeStore{attempts: make(map[string]*Attempt)}
}

func (f *fakeStore) Create(_ context.Context, a *Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	for _, existing := range f.attempts {
		if existing.UserID == a.UserID && existing.QuizID == a.QuizID && existing.Status.IsActive() {
			return ErrActiveAttemptExists
		}
	}
	a.Version = 1
	f.attempts[a.ID] = a.Clone()
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return nil, notFoundErr(id)
	}
	return a.Clone(), nil
}

func (f *fakeStore) FindActive(_ context.Context, userID, quizID string) (*Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hideActive > 0 {
		f.hideActive--
		return nil, nil
	}
	for _, a := range f.attempts {
		if a.UserID == userID && a.QuizID == quizID && a.Status.IsActive() {
			return a.Clone(), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListByUserQuiz(_ context.Context, userID, quizID string) ([]*Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Attempt
	for _, a := range f.attempts {
		if a.UserID == userID && a.QuizID == quizID {
			out = append(out, a.Clone())
		}
	}
	slices.SortFunc(out, func(x, y *Attempt) int { return x.AttemptNumber - y.AttemptNumber })
	return out, nil
}

func (f *fakeStore) Update(_ context.Context, a *Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.conflicts > 0 {
		f.conflicts--
		return ErrVersionConflict
	}
	stored, ok := f.attempts[a.ID]
	if !ok {
		return notFoundErr(a.ID)
	}
	if stored.Version != a.Version {
		return ErrVersionConflict
	}
	a.Version++
	f.attempts[a.ID] = a.Clone()
	return nil
}

func (f *fakeStore) ListByStatus(_ context.Context, statuses []Status, after *Cursor, limit int) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Attempt
	for _, a := range f.attempts {
		if slices.Contains(statuses, a.Status) && after.Precedes(a.StartedAt, a.ID) {
			out = append(out, a.Clone())
		}
	}
	slices.SortFunc(out, func(x, y *Attempt) int {
		if c := x.StartedAt.Compare(y.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	page := Page{Attempts: out}
	if limit > 0 && len(out) > limit {
		page.Attempts = out[:limit]
		page.Next = CursorOf(out[limit-1])
	}
	return page, nil
}

func (f *fakeStore) DeleteStale(_ context.Context, statuses []Status, lastActiveBefore time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, a := range f.attempts {
		if slices.Contains(statuses, a.Status) && a.LastActiveAt.Before(lastActiveBefore) {
			delete(f.attempts, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

func notFoundErr(id string) error {
	return apperr.NotFound("attempt %s not found", id)
}

type fakeQuizzes struct {
	mu          sync.Mutex
	definitions map[string]quiz.Definition
}

func (f *fakeQuizzes) GetDefinition(_ context.Context, quizID string) (quiz.Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	definition, ok := f.definitions[quizID]
	if !ok {
		return quiz.Definition{}, quiz.NotFound(quizID)
	}
	return definition, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recordingSink) Publish(_ context.Context, e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
