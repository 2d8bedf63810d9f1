// Package memory is a process-local storage driver. It backs tests and the
// "memory" STORAGE_DRIVER for local runs.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"quiz-engine/internal/apperr"
	"quiz-engine/internal/attempt"
	"quiz-engine/internal/quiz"
	"quiz-engine/internal/scoring"
)

var (
	_ attempt.Store       = (*Store)(nil)
	_ scoring.ResultStore = (*Store)(nil)
	_ scoring.StatsStore  = (*Store)(nil)
	_ quiz.Repository     = (*Store)(nil)
)

type Store struct {
	mu          sync.RWMutex
	definitions map[string]quiz.Definition
	attempts    map[string]*attempt.Attempt
	results     map[string]*scoring.Result
	quizStats   map[string]scoring.QuizStats
	userStats   map[string]scoring.UserStats
}

func New() *Store {
	return &Store{
		definitions: make(map[string]quiz.Definition),
		attempts:    make(map[string]*attempt.Attempt),
		results:     make(map[string]*scoring.Result),
		quizStats:   make(map[string]scoring.QuizStats),
		userStats:   make(map[string]scoring.UserStats),
	}
}

func (s *Store) GetDefinition(_ context.Context, quizID string) (quiz.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	definition, ok := s.definitions[quizID]
	if !ok {
		return quiz.Definition{}, quiz.NotFound(quizID)
	}
	return definition, nil
}

func (s *Store) SaveDefinition(_ context.Context, definition quiz.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[definition.QuizID] = definition
	return nil
}

func (s *Store) ListDefinitions(_ context.Context, limit int) ([]quiz.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]quiz.Metadata, 0, len(s.definitions))
	for _, definition := range s.definitions {
		out = append(out, definition.Metadata())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return applyLimit(out, limit), nil
}

func (s *Store) Create(_ context.Context, a *attempt.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attempts[a.ID]; exists {
		return apperr.InvalidState("attempt %s already exists", a.ID)
	}
	if a.Status.IsActive() {
		for _, existing := range s.attempts {
			if existing.UserID == a.UserID && existing.QuizID == a.QuizID && existing.Status.IsActive() {
				return attempt.ErrActiveAttemptExists
			}
		}
	}
	a.Version = 1
	s.attempts[a.ID] = a.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*attempt.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, apperr.NotFound("attempt %s not found", id)
	}
	return a.Clone(), nil
}

func (s *Store) FindActive(_ context.Context, userID, quizID string) (*attempt.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.attempts {
		if a.UserID == userID && a.QuizID == quizID && a.Status.IsActive() {
			return a.Clone(), nil
		}
	}
	return nil, nil
}

func (s *Store) ListByUserQuiz(_ context.Context, userID, quizID string) ([]*attempt.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*attempt.Attempt
	for _, a := range s.attempts {
		if a.UserID == userID && a.QuizID == quizID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (s *Store) Update(_ context.Context, a *attempt.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.attempts[a.ID]
	if !ok {
		return apperr.NotFound("attempt %s not found", a.ID)
	}
	if stored.Version != a.Version {
		return attempt.ErrVersionConflict
	}
	a.Version++
	s.attempts[a.ID] = a.Clone()
	return nil
}

func (s *Store) ListByStatus(_ context.Context, statuses []attempt.Status, after *attempt.Cursor, limit int) (attempt.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*attempt.Attempt
	for _, a := range s.attempts {
		if slices.Contains(statuses, a.Status) && after.Precedes(a.StartedAt, a.ID) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})

	page := attempt.Page{Attempts: applyLimit(out, limit)}
	if limit > 0 && len(out) > limit {
		page.Next = attempt.CursorOf(page.Attempts[len(page.Attempts)-1])
	}
	return page, nil
}

func (s *Store) DeleteStale(_ context.Context, statuses []attempt.Status, lastActiveBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, a := range s.attempts {
		if slices.Contains(statuses, a.Status) && a.LastActiveAt.Before(lastActiveBefore) {
			delete(s.attempts, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) CreateResult(_ context.Context, result *scoring.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if result.AttemptID != "" {
		for _, existing := range s.results {
			if existing.AttemptID == result.AttemptID {
				return scoring.ErrDuplicateResult
			}
		}
	}
	s.results[result.ID] = cloneResult(result)
	return nil
}

func (s *Store) GetResult(_ context.Context, id string) (*scoring.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[id]
	if !ok {
		return nil, apperr.NotFound("result %s not found", id)
	}
	return cloneResult(result), nil
}

func (s *Store) FindResultByAttempt(_ context.Context, attemptID string) (*scoring.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, result := range s.results {
		if result.AttemptID == attemptID {
			return cloneResult(result), nil
		}
	}
	return nil, nil
}

func (s *Store) ListResultsByUser(_ context.Context, userID string, limit int) ([]*scoring.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*scoring.Result
	for _, result := range s.results {
		if result.UserID == userID {
			out = append(out, cloneResult(result))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return applyLimit(out, limit), nil
}

func (s *Store) ListResultsByUserQuiz(_ context.Context, userID, quizID string) ([]*scoring.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*scoring.Result
	for _, result := range s.results {
		if result.UserID == userID && result.QuizID == quizID {
			out = append(out, cloneResult(result))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber < out[j].AttemptNumber })
	return out, nil
}

func (s *Store) CountResultsByQuiz(_ context.Context, quizID string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total, passed int
	for _, result := range s.results {
		if result.QuizID != quizID {
			continue
		}
		total++
		if result.Passed {
			passed++
		}
	}
	return total, passed, nil
}

func (s *Store) AppendFeedback(_ context.Context, resultID string, feedback scoring.ReviewerFeedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[resultID]
	if !ok {
		return apperr.NotFound("result %s not found", resultID)
	}
	result.Feedback = append(result.Feedback, feedback)
	return nil
}

func (s *Store) GetQuizStats(_ context.Context, quizID string) (*scoring.QuizStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.quizStats[quizID]
	if !ok {
		return nil, nil
	}
	return &stats, nil
}

func (s *Store) SaveQuizStats(_ context.Context, stats scoring.QuizStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizStats[stats.QuizID] = stats
	return nil
}

func (s *Store) GetUserStats(_ context.Context, userID string) (*scoring.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.userStats[userID]
	if !ok {
		return nil, nil
	}
	return &stats, nil
}

func (s *Store) SaveUserStats(_ context.Context, stats scoring.UserStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userStats[stats.UserID] = stats
	return nil
}

func (s *Store) Close() error {
	return nil
}

func cloneResult(result *scoring.Result) *scoring.Result {
	copied := *result
	copied.Answers = slices.Clone(result.Answers)
	copied.Feedback = slices.Clone(result.Feedback)
	return &copied
}

func applyLimit[T any](items []T, limit int) []T {
	if limit <= 0 || limit >= len(items) {
		return items
	}
	return items[:limit]
}
