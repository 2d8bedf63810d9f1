// Package attempt implements the quiz attempt lifecycle: start, answer,
// navigate, pause, flag, anomaly logging, submit and expiry.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quiz-engine/internal/apperr"
	"quiz-engine/internal/event"
	"quiz-engine/internal/quiz"
)

const maxUpdateRetries = 5

type Service struct {
	store    Store
	quizzes  quiz.Provider
	events   event.Sink
	finalize Finalizer
	now      func() time.Time
	newID    func() string
	logger   zerolog.Logger
	locks    *lockSet
}

// Finalizer grades an attempt the service expired while starting a new one.
type Finalizer func(ctx context.Context, attemptID string) error

type Option func(*Service)

func WithExpiryFinalizer(finalize Finalizer) Option {
	return func(s *Service) { s.finalize = finalize }
}

func WithEventSink(sink event.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.events = sink
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(store Store, quizzes quiz.Provider, opts ...Option) *Service {
	s := &Service{
		store:   store,
		quizzes: quizzes,
		events:  event.Nop{},
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
		logger:  log.With().Str("component", "attempt").Logger(),
		locks:   newLockSet(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type StartInput struct {
	UserID string
	QuizID string
	Client ClientContext
}

// StartAttempt returns the user's active attempt resumed into in_progress, or
// creates a new one. Concurrent starts for the same user and quiz converge on
// a single attempt.
func (s *Service) StartAttempt(ctx context.Context, input StartInput) (*Attempt, error) {
	userID := strings.TrimSpace(input.UserID)
	quizID := strings.TrimSpace(input.QuizID)
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}

	definition, err := s.quizzes.GetDefinition(ctx, quizID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := definition.CheckAvailable(now); err != nil {
		return nil, err
	}
	if err := definition.CheckAccess(userID); err != nil {
		return nil, err
	}

	unlock := s.locks.lock("start:" + userID + ":" + quizID)
	defer unlock()

	for try := 0; try < maxUpdateRetries; try++ {
		active, err := s.store.FindActive(ctx, userID, quizID)
		if err != nil {
			return nil, fmt.Errorf("find active attempt: %w", err)
		}
		if active != nil {
			resumed, err := s.resumeExisting(ctx, active)
			if err != nil {
				return nil, err
			}
			if resumed != nil {
				return resumed, nil
			}
			// The active attempt ran out of time and was closed; start fresh.
		}

		created, err := s.createAttempt(ctx, definition, userID, input.Client)
		if errors.Is(err, ErrActiveAttemptExists) {
			s.logger.Debug().Str("user_id", userID).Str("quiz_id", quizID).Msg("concurrent start detected, loading winner")
			continue
		}
		if err != nil {
			return nil, err
		}
		return created, nil
	}
	return nil, fmt.Errorf("start attempt for %s/%s: %w", userID, quizID, ErrActiveAttemptExists)
}

// resumeExisting moves an active attempt to in_progress. It returns nil when
// the attempt was overdue and has been expired, and graded, instead.
func (s *Service) resumeExisting(ctx context.Context, active *Attempt) (*Attempt, error) {
	var expired bool
	updated, changed, err := s.mutate(ctx, active.ID, func(a *Attempt, now time.Time) (bool, error) {
		if !a.Status.IsActive() {
			expired = true
			return false, nil
		}
		// Pauses stop the clock, so a paused attempt is overdue only if it
		// ran out before the pause.
		if a.Overdue(now) {
			expireAt(a, now)
			expired = true
			return true, nil
		}
		if a.Status == StatusInProgress {
			a.LastActiveAt = now
			return true, nil
		}
		resumeAt(a, now)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		if changed {
			s.logger.Info().Str("attempt_id", updated.ID).Str("user_id", updated.UserID).Msg("overdue attempt expired on start")
			s.publish(ctx, event.AttemptExpired, updated, nil)
			s.finalizeExpired(ctx, updated.ID)
		}
		return nil, nil
	}
	s.publish(ctx, event.AttemptResumed, updated, nil)
	return updated, nil
}

// finalizeExpired hands an attempt expired here to the grader. Failures only
// log; GradeAttempt can be retried later.
func (s *Service) finalizeExpired(ctx context.Context, attemptID string) {
	if s.finalize == nil {
		return
	}
	if err := s.finalize(ctx, attemptID); err != nil {
		s.logger.Error().Err(err).Str("attempt_id", attemptID).Msg("grade expired attempt failed")
	}
}

func (s *Service) createAttempt(ctx context.Context, definition quiz.Definition, userID string, client ClientContext) (*Attempt, error) {
	history, err := s.store.ListByUserQuiz(ctx, userID, definition.QuizID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	now := s.now()
	previous, lastFinishedAt, lastNumber := summarizeHistory(history)
	if err := definition.CheckRetake(previous, lastFinishedAt, now); err != nil {
		return nil, err
	}

	budget := int(definition.TimeBudget() / time.Second)
	a := &Attempt{
		ID:                s.newID(),
		UserID:            userID,
		QuizID:            definition.QuizID,
		AttemptNumber:     lastNumber + 1,
		Status:            StatusStarted,
		StartedAt:         now,
		LastActiveAt:      now,
		RemainingSeconds:  budget,
		TimeBudgetSeconds: budget,
		TotalQuestions:    definition.TotalQuestions(),
		Answered:          IndexSet{},
		Flagged:           IndexSet{},
		Skipped:           IndexSet{},
		Answers:           []AnswerRecord{},
		Anomalies:         []Anomaly{},
		Client:            client,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Create(ctx, a); err != nil {
		if errors.Is(err, ErrActiveAttemptExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.logger.Info().
		Str("attempt_id", a.ID).
		Str("user_id", userID).
		Str("quiz_id", a.QuizID).
		Int("attempt_number", a.AttemptNumber).
		Msg("attempt started")
	s.publish(ctx, event.AttemptStarted, a, map[string]any{"attempt_number": a.AttemptNumber})
	return a, nil
}

// summarizeHistory counts finished attempts and finds the most recent finish
// and the highest attempt number.
func summarizeHistory(history []*Attempt) (int, *time.Time, int) {
	var (
		previous   int
		lastNumber int
		lastFinish *time.Time
	)
	for _, item := range history {
		lastNumber = max(lastNumber, item.AttemptNumber)
		if item.Status.IsActive() {
			continue
		}
		previous++
		finished := item.FinishedAt()
		if lastFinish == nil || finished.After(*lastFinish) {
			lastFinish = &finished
		}
	}
	return previous, lastFinish, lastNumber
}

func (s *Service) SaveAnswer(ctx context.Context, attemptID string, questionIndex, optionIndex, timeSpentSeconds int) (*Attempt, error) {
	if questionIndex < 0 || optionIndex < 0 {
		return nil, apperr.Validation("question and option indices must not be negative")
	}
	if timeSpentSeconds < 0 {
		return nil, apperr.Validation("time spent must not be negative")
	}

	updated, _, err := s.mutate(ctx, attemptID, func(a *Attempt, now time.Time) (bool, error) {
		if a.Status != StatusStarted && a.Status != StatusInProgress {
			return false, apperr.InvalidState("cannot save answer while attempt is %s", a.Status)
		}
		if err := checkQuestionIndex(a, questionIndex); err != nil {
			return false, err
		}

		record, _ := a.Answer(questionIndex)
		record.QuestionIndex = questionIndex
		record.SelectedOption = &optionIndex
		record.TimeSpentSeconds = timeSpentSeconds
		record.MarkedForReview = a.Flagged.Contains(questionIndex)
		record.UpdatedAt = now
		a.setAnswer(record)

		a.Answered = a.Answered.Add(questionIndex)
		a.Skipped = a.Skipped.Remove(questionIndex)
		a.Status = StatusInProgress
		a.LastActiveAt = now
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, event.AnswerSaved, updated, map[string]any{
		"question_index": questionIndex,
		"progress":       updated.ProgressPercent(),
	})
	return updated, nil
}

// SkipQuestion records that the user moved past a question without answering.
// Answered questions are left alone.
func (s *Service) SkipQuestion(ctx context.Context, attemptID string, questionIndex int) (*Attempt, error) {
	if questionIndex < 0 {
		return nil, apperr.Validation("question index must not be negative")
	}

	updated, changed, err := s.mutate(ctx, attemptID, func(a *Attempt, now time.Time) (bool, error) {
		if a.Status != StatusStarted && a.Status != StatusInProgress {
			return false, apperr.InvalidState("cannot skip question while attempt is %s", a.Status)
		}
		if err := checkQuestionIndex(a, questionIndex); err != nil {
			return false, err
		}
		if a.Answered.Contains(questionIndex) {
			return false, nil
		}
		a.Skipped = a.Skipped.Add(questionIndex)
		a.Status = StatusInProgress
		a.LastActiveAt = now
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, event.QuestionSkipped, updated, map[string]any{"question_index": questionIndex})
	}
	return updated, nil
}

func (s *Service) Navigate(ctx context.Context, attemptID string, questionIndex int) (*Attempt, error) {
	updated, _, err := s.mutate(ctx, attemptID, func(a *Attempt, now time.Time) (bool, error) {
		if a.Status != StatusInProgress {
			return false, apperr.InvalidState("cannot navigate while attempt is %s", a.Status)
		}
		if err := checkQuestionIndex(a, questionIndex); err != nil {
			return false, err
		}
		a.CurrentQuestionIndex = questionIndex
		a.LastActiveAt = now
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, event.AttemptNavigated, updated, map[string]any{"question_index": questionIndex})
	return updated, nil
}

func (s *Service) Pause(ctx context.Context, attemptID string) (*Attempt, error) {
	current, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	definition, err := s.quizzes.GetDefinition(ctx, current.QuizID)
	if err != nil {
		return nil, err
	}
	if !definition.AllowPause {
		return nil, apperr.InvalidState("pausing is not allowed for this quiz")
	}

	updated, _, err := s.mutate(ctx, attemptID, func(a *Attempt, now time.Time) (bool, error) {
		if a.Status != StatusInProgress {
			return false, apperr.InvalidState("cannot pause while attempt is %s", a.Status)
		}
		a.Status = StatusPaused
		a.PausedAt = &now
		a.LastActiveAt = now
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, event.AttemptPaused, updated, nil)
	return updated, nil
}

func (s *Service) Resume(ctx context.Context, attemptID string) (*Attempt, error) {
	updated, _, err := s.mutate(ctx, attemptID, func(a *Attempt, now time.Time) (bool, error) {
		if a.Status != StatusPaused {
			return false, apperr.InvalidState("cannot resume while attempt is %s", a.Status)
		}
		resumeAt(a, now)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, event.AttemptResumed, updated, nil)
	return updated, nil
}

func (s *Service) MarkForReview(ctx context.Context, attemptID string, questionIndex int) (*Attempt, error) {
	return s.setFlag(ctx, attemptID, questionIndex, true)
}

func (s *Service) UnmarkForReview(ctx context.Context, attemptID string, questionIndex int) (*Attempt, error) {
	return s.setFlag(ctx, attemptID, questionIndex, false)
}

func (s *Service) setFlag(ctx context.Context, attemptID string, questionIndex int, flagged bool) (*Attempt, error) {
	updated, changed, err := s.mutate(ctx, attemptID, func(a *Attempt, now time.Time) (bool, error) {
		if err := checkQuestionIndex(a, questionIndex); err != nil {
			return false, err
		}
		if a.Flagged.Contains(questionIndex) == flagged {
			return false, nil
		}
		if flagged {
			a.Flagged = a.Flagged.Add(questionIndex)
		} else {
			a.Flagged = a.Flagged.Remove(questionIndex)
		}
		if record, ok := a.Answer(questionIndex); ok {
			record.MarkedForReview = flagged
			a.setAnswer(record)
		}
		a.LastActiveAt = now
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		eventType := event.AttemptFlagged
		if !flagged {
			eventType = event.AttemptUnflagged
		}
		s.publish(ctx, eventType, updated, map[string]any{"question_index": questionIndex})
	}
	return updated, nil
}

// RecordSuspiciousActivity appends to the anomaly log in any status.
func (s *Service) RecordSuspiciousActivity(ctx context.Context, attemptID, activityType, detail string) (*Attempt, error) {
	activityType = strings.ToLower(strings.TrimSpace(activityType))
	if activityType == "" {
		activityType = AnomalyOther
	}

	updated, _, err := s.mutate(ctx, attemptID, func(a *Attempt, now time.Time) (bool, error) {
		a.Anomalies = append(a.Anomalies, Anomaly{Type: activityType, At: now, Detail: detail})
		if activityType == AnomalyTabSwitch {
			a.TabSwitchCount++
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn().
		Str("attempt_id", attemptID).
		Str("user_id", updated.UserID).
		Str("type", activityType).
		Int("tab_switches", updated.TabSwitchCount).
		Msg("suspicious activity recorded")
	s.publish(ctx, event.ActivityRecorded, updated, map[string]any{"type": activityType, "detail": detail})
	return updated, nil
}

func (s *Service) SubmitAttempt(ctx context.Context, attemptID string) (*Attempt, error) {
	updated, _, err := s.mutate(ctx, attemptID, func(a *Attempt, now time.Time) (bool, error) {
		if a.Status.IsSubmitted() {
			return false, apperr.InvalidState("already submitted")
		}
		if !a.Status.IsActive() {
			return false, apperr.InvalidState("cannot submit attempt that is %s", a.Status)
		}
		if a.PausedAt != nil {
			a.PausedSeconds += pausedSince(*a.PausedAt, now)
			a.PausedAt = nil
		}
		a.Status = StatusCompleted
		a.CompletedAt = &now
		a.TimeSpentSeconds = int(now.Sub(a.StartedAt) / time.Second)
		a.RemainingSeconds = remainingAt(a, now)
		a.LastActiveAt = now
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("attempt_id", updated.ID).
		Str("user_id", updated.UserID).
		Str("quiz_id", updated.QuizID).
		Int("answered", len(updated.Answered)).
		Int("time_spent_seconds", updated.TimeSpentSeconds).
		Msg("attempt submitted")
	s.publish(ctx, event.AttemptSubmitted, updated, map[string]any{"progress": updated.ProgressPercent()})
	return updated, nil
}

// UpdateProgress is the client heartbeat. Terminal attempts reject it.
func (s *Service) UpdateProgress(ctx context.Context, attemptID string, timeSpentSeconds, remainingSeconds int) (*Attempt, error) {
	if timeSpentSeconds < 0 || remainingSeconds < 0 {
		return nil, apperr.Validation("timing values must not be negative")
	}

	updated, _, err := s.mutate(ctx, attemptID, func(a *Attempt, now time.Time) (bool, error) {
		if !a.Status.IsActive() {
			return false, apperr.InvalidState("attempt is %s", a.Status)
		}
		a.TimeSpentSeconds = timeSpentSeconds
		a.RemainingSeconds = remainingSeconds
		a.LastActiveAt = now
		return true, nil
	})
	return updated, err
}

// ExpireAttempt closes a started or in_progress attempt whose time budget has
// run out. It reports false when the attempt no longer qualifies.
func (s *Service) ExpireAttempt(ctx context.Context, attemptID string) (bool, error) {
	updated, changed, err := s.mutate(ctx, attemptID, func(a *Attempt, now time.Time) (bool, error) {
		if a.Status != StatusStarted && a.Status != StatusInProgress {
			return false, nil
		}
		if !a.Overdue(now) {
			return false, nil
		}
		expireAt(a, now)
		return true, nil
	})
	if err != nil || !changed {
		return false, err
	}
	s.logger.Info().Str("attempt_id", attemptID).Str("user_id", updated.UserID).Msg("attempt time expired")
	s.publish(ctx, event.AttemptExpired, updated, nil)
	return true, nil
}

// AbandonAttempt closes a started attempt with no activity since idleSince.
func (s *Service) AbandonAttempt(ctx context.Context, attemptID string, idleSince time.Time) (bool, error) {
	updated, changed, err := s.mutate(ctx, attemptID, func(a *Attempt, now time.Time) (bool, error) {
		if a.Status != StatusStarted || !a.LastActiveAt.Before(idleSince) {
			return false, nil
		}
		a.Status = StatusAbandoned
		a.RemainingSeconds = remainingAt(a, now)
		return true, nil
	})
	if err != nil || !changed {
		return false, err
	}
	s.logger.Info().Str("attempt_id", attemptID).Str("user_id", updated.UserID).Msg("attempt abandoned")
	s.publish(ctx, event.AttemptAbandoned, updated, nil)
	return true, nil
}

func (s *Service) GetAttempt(ctx context.Context, attemptID string) (*Attempt, error) {
	attemptID = strings.TrimSpace(attemptID)
	if attemptID == "" {
		return nil, apperr.NotFound("attempt not found")
	}
	return s.store.Get(ctx, attemptID)
}

// GetAttemptFor loads an attempt and checks that userID owns it.
func (s *Service) GetAttemptFor(ctx context.Context, attemptID, userID string) (*Attempt, error) {
	a, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.UserID != strings.TrimSpace(userID) {
		return nil, apperr.Forbidden("attempt belongs to another user")
	}
	return a, nil
}

// GetActiveAttempt returns nil, nil when the user has no active attempt.
func (s *Service) GetActiveAttempt(ctx context.Context, userID, quizID string) (*Attempt, error) {
	return s.store.FindActive(ctx, strings.TrimSpace(userID), strings.TrimSpace(quizID))
}

func (s *Service) ListAttempts(ctx context.Context, userID, quizID string) ([]*Attempt, error) {
	return s.store.ListByUserQuiz(ctx, strings.TrimSpace(userID), strings.TrimSpace(quizID))
}

// mutate serializes writers per attempt in this process and relies on the
// store's version check across processes. fn reports whether it changed a;
// unchanged attempts are returned without a write.
func (s *Service) mutate(ctx context.Context, attemptID string, fn func(a *Attempt, now time.Time) (bool, error)) (*Attempt, bool, error) {
	unlock := s.locks.lock(attemptID)
	defer unlock()

	for try := 0; try < maxUpdateRetries; try++ {
		a, err := s.GetAttempt(ctx, attemptID)
		if err != nil {
			return nil, false, err
		}

		now := s.now()
		changed, err := fn(a, now)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return a, false, nil
		}

		a.UpdatedAt = now
		err = s.store.Update(ctx, a)
		if errors.Is(err, ErrVersionConflict) {
			s.logger.Debug().Str("attempt_id", attemptID).Int("try", try+1).Msg("version conflict, retrying")
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("update attempt %s: %w", attemptID, err)
		}
		return a, true, nil
	}
	return nil, false, fmt.Errorf("update attempt %s: %w", attemptID, ErrVersionConflict)
}

func (s *Service) publish(ctx context.Context, eventType event.Type, a *Attempt, data map[string]any) {
	e := event.New(eventType, s.now())
	e.UserID = a.UserID
	e.QuizID = a.QuizID
	e.AttemptID = a.ID
	e.Data = data
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	e.Data["status"] = string(a.Status)

	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Str("attempt_id", a.ID).Msg("event publish failed")
	}
}

func checkQuestionIndex(a *Attempt, questionIndex int) error {
	if questionIndex < 0 || questionIndex >= a.TotalQuestions {
		return apperr.Validation("question index %d out of range [0,%d)", questionIndex, a.TotalQuestions)
	}
	return nil
}

func resumeAt(a *Attempt, now time.Time) {
	if a.PausedAt != nil {
		a.PausedSeconds += pausedSince(*a.PausedAt, now)
		a.PausedAt = nil
	}
	a.Status = StatusInProgress
	a.LastActiveAt = now
}

func expireAt(a *Attempt, now time.Time) {
	if a.PausedAt != nil {
		a.PausedSeconds += pausedSince(*a.PausedAt, now)
		a.PausedAt = nil
	}
	a.Status = StatusTimeExpired
	a.CompletedAt = &now
	a.TimeSpentSeconds = int(now.Sub(a.StartedAt) / time.Second)
	a.RemainingSeconds = 0
}

func pausedSince(pausedAt, now time.Time) int {
	if !now.After(pausedAt) {
		return 0
	}
	return int(now.Sub(pausedAt) / time.Second)
}

func remainingAt(a *Attempt, now time.Time) int {
	if a.TimeBudgetSeconds <= 0 {
		return 0
	}
	return max(0, a.TimeBudgetSeconds-int(a.activeDuration(now)/time.Second))
}

// SweepStatuses are the statuses the expiry pass considers.
var SweepStatuses = []Status{StatusStarted, StatusInProgress}

// RetentionStatuses are the statuses whose stale records may be deleted.
var RetentionStatuses = []Status{StatusStarted, StatusAbandoned}
