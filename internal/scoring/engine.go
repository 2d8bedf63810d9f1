// Package scoring grades finished attempts into results and keeps the
// running quiz and user statistics.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quiz-engine/internal/apperr"
	"quiz-engine/internal/attempt"
	"quiz-engine/internal/event"
	"quiz-engine/internal/quiz"
)

// AttemptSource is the slice of attempt.Store the engine reads.
type AttemptSource interface {
	Get(ctx context.Context, id string) (*attempt.Attempt, error)
}

type Engine struct {
	quizzes  quiz.Provider
	attempts AttemptSource
	results  ResultStore
	stats    StatsStore
	events   event.Sink
	now      func() time.Time
	newID    func() string
	logger   zerolog.Logger
}

type Option func(*Engine)

func WithEventSink(sink event.Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.events = sink
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine wires the engine. stats may be nil to skip aggregate updates.
func NewEngine(quizzes quiz.Provider, attempts AttemptSource, results ResultStore, stats StatsStore, opts ...Option) *Engine {
	e := &Engine{
		quizzes:  quizzes,
		attempts: attempts,
		results:  results,
		stats:    stats,
		events:   event.Nop{},
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		logger:   log.With().Str("component", "scoring").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type SubmitInput struct {
	UserID        string
	QuizID        string
	Answers       []SubmittedAnswer
	StartTime     time.Time
	EndTime       time.Time
	AttemptNumber int
	AttemptID     string
	Status        ResultStatus
}

// SubmitQuiz grades a free-standing answer set. Availability, access and
// retake limits are checked the same way StartAttempt checks them, with
// earlier results standing in for earlier attempts.
func (e *Engine) SubmitQuiz(ctx context.Context, input SubmitInput) (*Result, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}

	definition, err := e.quizzes.GetDefinition(ctx, strings.TrimSpace(input.QuizID))
	if err != nil {
		return nil, err
	}
	now := e.now()
	if err := definition.CheckAvailable(now); err != nil {
		return nil, err
	}
	if err := definition.CheckAccess(userID); err != nil {
		return nil, err
	}

	prior, err := e.results.ListResultsByUserQuiz(ctx, userID, definition.QuizID)
	if err != nil {
		return nil, fmt.Errorf("list prior results: %w", err)
	}
	if err := definition.CheckRetake(len(prior), lastEndTime(prior), now); err != nil {
		return nil, err
	}

	for _, answer := range input.Answers {
		if answer.QuestionIndex < 0 || answer.QuestionIndex >= definition.TotalQuestions() {
			return nil, apperr.Validation("question index %d out of range [0,%d)", answer.QuestionIndex, definition.TotalQuestions())
		}
	}

	end := input.EndTime
	if end.IsZero() {
		end = now
	}
	start := input.StartTime
	if start.IsZero() || start.After(end) {
		start = end
	}
	attemptNumber := input.AttemptNumber
	if attemptNumber <= 0 {
		attemptNumber = len(prior) + 1
	}
	status := input.Status
	if status == "" {
		status = ResultCompleted
	}

	result := e.buildResult(definition, input.Answers)
	result.UserID = userID
	result.AttemptID = strings.TrimSpace(input.AttemptID)
	result.AttemptNumber = attemptNumber
	result.StartTime = start
	result.EndTime = end
	result.TimeSpentSeconds = int(end.Sub(start) / time.Second)
	result.Status = status

	if err := e.results.CreateResult(ctx, result); err != nil {
		if errors.Is(err, ErrDuplicateResult) {
			return nil, apperr.InvalidState("attempt already graded")
		}
		return nil, fmt.Errorf("create result: %w", err)
	}
	e.afterCreate(ctx, result)
	return result, nil
}

// GradeAttempt turns a finished attempt into a result. It is idempotent: an
// attempt that already has a result gets that result back.
func (e *Engine) GradeAttempt(ctx context.Context, attemptID string) (*Result, error) {
	existing, err := e.results.FindResultByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("find result for attempt: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	a, err := e.attempts.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status.IsActive() {
		return nil, apperr.InvalidState("attempt is still %s", a.Status)
	}

	definition, err := e.quizzes.GetDefinition(ctx, a.QuizID)
	if err != nil {
		return nil, err
	}

	result := e.buildResult(definition, AnswersFromAttempt(a))
	result.UserID = a.UserID
	result.AttemptID = a.ID
	result.AttemptNumber = a.AttemptNumber
	result.StartTime = a.StartedAt
	result.EndTime = a.FinishedAt()
	result.TimeSpentSeconds = a.TimeSpentSeconds
	result.Status = resultStatusFor(a.Status)

	if err := e.results.CreateResult(ctx, result); err != nil {
		if errors.Is(err, ErrDuplicateResult) {
			// A concurrent grader won; hand back its result.
			return e.results.FindResultByAttempt(ctx, attemptID)
		}
		return nil, fmt.Errorf("create result: %w", err)
	}
	e.afterCreate(ctx, result)
	return result, nil
}

func (e *Engine) GetResult(ctx context.Context, resultID string) (*Result, error) {
	resultID = strings.TrimSpace(resultID)
	if resultID == "" {
		return nil, apperr.NotFound("result not found")
	}
	return e.results.GetResult(ctx, resultID)
}

func (e *Engine) ListUserResults(ctx context.Context, userID string, limit int) ([]*Result, error) {
	return e.results.ListResultsByUser(ctx, strings.TrimSpace(userID), limit)
}

// AddFeedback appends a comment from the quiz author or one of its reviewers.
func (e *Engine) AddFeedback(ctx context.Context, resultID, reviewerID, comment string) (*Result, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	comment = strings.TrimSpace(comment)
	if reviewerID == "" || comment == "" {
		return nil, apperr.Validation("reviewer and comment are required")
	}

	current, err := e.GetResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	definition, err := e.quizzes.GetDefinition(ctx, current.QuizID)
	if err != nil {
		return nil, err
	}
	if err := definition.CheckReview(reviewerID); err != nil {
		return nil, err
	}

	feedback := ReviewerFeedback{ReviewerID: reviewerID, Comment: comment, CreatedAt: e.now()}
	if err := e.results.AppendFeedback(ctx, current.ID, feedback); err != nil {
		return nil, err
	}

	result, err := e.results.GetResult(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	e.publish(ctx, event.FeedbackAdded, result, map[string]any{"reviewer_id": reviewerID})
	return result, nil
}

func (e *Engine) buildResult(definition quiz.Definition, answers []SubmittedAnswer) *Result {
	graded := Grade(definition, answers)
	return &Result{
		ID:         e.newID(),
		QuizID:     definition.QuizID,
		Answers:    graded.Answers,
		TotalScore: graded.TotalScore,
		MaxScore:   graded.MaxScore,
		Percentage: graded.Percentage,
		Passed:     graded.Passed,
		Analytics:  BuildAnalytics(graded.Answers),
		Feedback:   []ReviewerFeedback{},
		CreatedAt:  e.now(),
	}
}

func (e *Engine) afterCreate(ctx context.Context, result *Result) {
	e.logger.Info().
		Str("result_id", result.ID).
		Str("user_id", result.UserID).
		Str("quiz_id", result.QuizID).
		Str("attempt_id", result.AttemptID).
		Float64("score", result.TotalScore).
		Int("percentage", result.Percentage).
		Bool("passed", result.Passed).
		Msg("result recorded")

	if e.stats != nil {
		if err := e.updateQuizStats(ctx, result); err != nil {
			e.logger.Warn().Err(err).Str("quiz_id", result.QuizID).Msg("quiz statistics update failed")
		}
		if err := e.updateUserStats(ctx, result); err != nil {
			e.logger.Warn().Err(err).Str("user_id", result.UserID).Msg("user statistics update failed")
		}
	}

	e.publish(ctx, event.ResultCreated, result, map[string]any{
		"percentage": result.Percentage,
		"passed":     result.Passed,
	})
}

// updateQuizStats folds one result into the running means. The pass rate
// comes from a fresh count so it self-corrects after skewed updates.
func (e *Engine) updateQuizStats(ctx context.Context, result *Result) error {
	current, err := e.stats.GetQuizStats(ctx, result.QuizID)
	if err != nil {
		return err
	}
	stats := QuizStats{QuizID: result.QuizID}
	if current != nil {
		stats = *current
	}

	n := float64(stats.AttemptCount)
	stats.AverageScore = (stats.AverageScore*n + float64(result.Percentage)) / (n + 1)
	stats.AverageTimeSeconds = (stats.AverageTimeSeconds*n + float64(result.TimeSpentSeconds)) / (n + 1)
	stats.AttemptCount++

	total, passed, err := e.results.CountResultsByQuiz(ctx, result.QuizID)
	if err != nil {
		return err
	}
	if total > 0 {
		stats.PassRate = math.Round(float64(passed)/float64(total)*10000) / 100
	}
	stats.UpdatedAt = e.now()
	return e.stats.SaveQuizStats(ctx, stats)
}

func (e *Engine) updateUserStats(ctx context.Context, result *Result) error {
	current, err := e.stats.GetUserStats(ctx, result.UserID)
	if err != nil {
		return err
	}
	stats := UserStats{UserID: result.UserID}
	if current != nil {
		stats = *current
	}

	n := float64(stats.QuizzesTaken)
	stats.AverageScore = (stats.AverageScore*n + float64(result.Percentage)) / (n + 1)
	stats.QuizzesTaken++
	stats.TotalTimeSeconds += result.TimeSpentSeconds
	stats.UpdatedAt = e.now()
	return e.stats.SaveUserStats(ctx, stats)
}

func (e *Engine) publish(ctx context.Context, eventType event.Type, result *Result, data map[string]any) {
	ev := event.New(eventType, e.now())
	ev.UserID = result.UserID
	ev.QuizID = result.QuizID
	ev.AttemptID = result.AttemptID
	ev.ResultID = result.ID
	ev.Data = data
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.Warn().Err(err).Str("event_type", string(eventType)).Str("result_id", result.ID).Msg("event publish failed")
	}
}

func lastEndTime(results []*Result) *time.Time {
	var last *time.Time
	for _, result := range results {
		if last == nil || result.EndTime.After(*last) {
			end := result.EndTime
			last = &end
		}
	}
	return last
}
