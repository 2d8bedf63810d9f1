package scoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"quiz-engine/internal/apperr"
	"quiz-engine/internal/attempt"
	"quiz-engine/internal/quiz"
)

type fakeQuizzes map[string]quiz.Definition

func (f fakeQuizzes) GetDefinition(_ context.Context, quizID string) (quiz.Definition, error) {
	definition, ok := f[quizID]
	if !ok {
		return quiz.Definition{}, quiz.NotFound(quizID)
	}
	return definition, nil
}

type fakeAttempts map[string]*attempt.Attempt

func (f fakeAttempts) Get(_ context.Context, id string) (*attempt.Attempt, error) {
	a, ok := f[id]
	if !ok {
		return nil, apperr.NotFound("attempt %s not found", id)
	}
	return a.Clone(), nil
}

type fakeResults struct {
	mu      sync.Mutex
	results map[string]*Result

	createCalls int
	countCalls  int
}

func newFakeResults() *fakeResults {
	return &fakeResults{results: make(map[string]*Result)}
}

func (f *fakeResults) CreateResult(_ context.Context, result *Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if result.AttemptID != "" {
		for _, existing := range f.results {
			if existing.AttemptID == result.AttemptID {
				return ErrDuplicateResult
			}
		}
	}
	copied := *result
	f.results[result.ID] = &copied
	return nil
}

func (f *fakeResults) GetResult(_ context.Context, id string) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.results[id]
	if !ok {
		return nil, apperr.NotFound("result %s not found", id)
	}
	copied := *result
	return &copied, nil
}

func (f *fakeResults) FindResultByAttempt(_ context.Context, attemptID string) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, result := range f.results {
		if result.AttemptID == attemptID {
			copied := *result
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeResults) ListResultsByUser(_ context.Context, userID string, limit int) ([]*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Result
	for _, result := range f.results {
		if result.UserID == userID {
			out = append(out, result)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeResults) ListResultsByUserQuiz(_ context.Context, userID, quizID string) ([]*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Result
	for _, result := range f.results {
		if result.UserID == userID && result.QuizID == quizID {
			out = append(out, result)
		}
	}
	return out, nil
}

func (f *fakeResults) CountResultsByQuiz(_ context.Context, quizID string) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.countCalls++
	var total, passed int
	for _, result := range f.results {
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

func (f *fakeResults) AppendFeedback(_ context.Context, resultID string, feedback ReviewerFeedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.results[resultID]
	if !ok {
		return apperr.NotFound("result %s not found", resultID)
	}
	result.Feedback = append(result.Feedback, feedback)
	return nil
}

type fakeStats struct {
	quizzes map[string]QuizStats
	users   map[string]UserStats
	saveErr error
}

func newFakeStats() *fakeStats {
	return &fakeStats{quizzes: make(map[string]QuizStats), users: make(map[string]UserStats)}
}

func (f *fakeStats) GetQuizStats(_ context.Context, quizID string) (*QuizStats, error) {
	stats, ok := f.quizzes[quizID]
	if !ok {
		return nil, nil
	}
	return &stats, nil
}

func (f *fakeStats) SaveQuizStats(_ context.Context, stats QuizStats) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.quizzes[stats.QuizID] = stats
	return nil
}

func (f *fakeStats) GetUserStats(_ context.Context, userID string) (*UserStats, error) {
	stats, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	return &stats, nil
}

func (f *fakeStats) SaveUserStats(_ context.Context, stats UserStats) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.users[stats.UserID] = stats
	return nil
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type engineHarness struct {
	engine   *Engine
	results  *fakeResults
	stats    *fakeStats
	attempts fakeAttempts
	quizzes  fakeQuizzes
}

func newEngineHarness(t *testing.T, mutate ...func(*quiz.Definition)) *engineHarness {
	t.Helper()
	definition := twoQuestionQuiz()
	for _, fn := range mutate {
		fn(&definition)
	}

	h := &engineHarness{
		results:  newFakeResults(),
		stats:    newFakeStats(),
		attempts: fakeAttempts{},
		quizzes:  fakeQuizzes{definition.QuizID: definition},
	}
	var seq int
	h.engine = NewEngine(h.quizzes, h.attempts, h.results, h.stats,
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("res_%d", seq)
		}),
	)
	return h
}

func TestSubmitQuizEndToEndScenario(t *testing.T) {
	h := newEngineHarness(t)

	result, err := h.engine.SubmitQuiz(context.Background(), SubmitInput{
		UserID: "u1",
		QuizID: "qz_1",
		Answers: []SubmittedAnswer{
			{QuestionIndex: 0, SelectedOption: 2, TimeSpentSeconds: 12},
			{QuestionIndex: 1, SelectedOption: 0, TimeSpentSeconds: 20},
		},
		StartTime: testNow.Add(-5 * time.Minute),
		EndTime:   testNow,
	})
	if err != nil {
		t.Fatalf("SubmitQuiz returned error: %v", err)
	}

	if result.TotalScore != 5 || result.MaxScore != 10 || result.Percentage != 50 || result.Passed {
		t.Fatalf("unexpected grade: score=%v max=%v pct=%d passed=%v", result.TotalScore, result.MaxScore, result.Percentage, result.Passed)
	}
	if result.AttemptNumber != 1 || result.TimeSpentSeconds != 300 || result.Status != ResultCompleted {
		t.Fatalf("unexpected metadata: %+v", result)
	}
	if result.Analytics.Correct != 1 || result.Analytics.Incorrect != 1 || result.Analytics.AverageTimeSeconds != 16 {
		t.Fatalf("unexpected analytics: %+v", result.Analytics)
	}

	quizStats := h.stats.quizzes["qz_1"]
	if quizStats.AttemptCount != 1 || quizStats.AverageScore != 50 || quizStats.PassRate != 0 {
		t.Fatalf("unexpected quiz stats: %+v", quizStats)
	}
	userStats := h.stats.users["u1"]
	if userStats.QuizzesTaken != 1 || userStats.TotalTimeSeconds != 300 {
		t.Fatalf("unexpected user stats: %+v", userStats)
	}
}

func TestSubmitQuizValidatesLikeStartAttempt(t *testing.T) {
	ctx := context.Background()

	h := newEngineHarness(t)
	_, err := h.engine.SubmitQuiz(ctx, SubmitInput{UserID: "u1", QuizID: "missing"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	h = newEngineHarness(t, func(d *quiz.Definition) { d.IsActive = false })
	_, err = h.engine.SubmitQuiz(ctx, SubmitInput{UserID: "u1", QuizID: "qz_1"})
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	h = newEngineHarness(t, func(d *quiz.Definition) { d.Access.BlockedUsers = []string{"u1"} })
	_, err = h.engine.SubmitQuiz(ctx, SubmitInput{UserID: "u1", QuizID: "qz_1"})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	h = newEngineHarness(t)
	if _, err := h.engine.SubmitQuiz(ctx, SubmitInput{UserID: "u1", QuizID: "qz_1"}); err != nil {
		t.Fatalf("first SubmitQuiz returned error: %v", err)
	}
	_, err = h.engine.SubmitQuiz(ctx, SubmitInput{UserID: "u1", QuizID: "qz_1"})
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected retake rejection, got %v", err)
	}

	_, err = h.engine.SubmitQuiz(ctx, SubmitInput{
		UserID:  "u2",
		QuizID:  "qz_1",
		Answers: []SubmittedAnswer{{QuestionIndex: 7, SelectedOption: 0}},
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for out-of-range index, got %v", err)
	}
}

func TestSubmitQuizUpdatesRunningMeans(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)

	users := map[string][]SubmittedAnswer{
		"u1": {{QuestionIndex: 0, SelectedOption: 2}, {QuestionIndex: 1, SelectedOption: 1}},
		"u2": {{QuestionIndex: 0, SelectedOption: 0}},
	}
	for _, user := range []string{"u1", "u2"} {
		if _, err := h.engine.SubmitQuiz(ctx, SubmitInput{UserID: user, QuizID: "qz_1", Answers: users[user]}); err != nil {
			t.Fatalf("SubmitQuiz(%s) returned error: %v", user, err)
		}
	}

	stats := h.stats.quizzes["qz_1"]
	if stats.AttemptCount != 2 || stats.AverageScore != 50 || stats.PassRate != 50 {
		t.Fatalf("unexpected quiz stats: %+v", stats)
	}
	if h.results.countCalls != 2 {
		t.Fatalf("expected pass rate recomputed per result, got %d counts", h.results.countCalls)
	}
}

func TestSubmitQuizSurvivesStatsFailure(t *testing.T) {
	h := newEngineHarness(t)
	h.stats.saveErr = errors.New("stats offline")

	result, err := h.engine.SubmitQuiz(context.Background(), SubmitInput{UserID: "u1", QuizID: "qz_1"})
	if err != nil {
		t.Fatalf("stats failure must not fail grading: %v", err)
	}
	if _, err := h.engine.GetResult(context.Background(), result.ID); err != nil {
		t.Fatalf("result was not persisted: %v", err)
	}
}

func finishedAttempt(id string, status attempt.Status) *attempt.Attempt {
	correct := 2
	wrong := 0
	completed := testNow
	return &attempt.Attempt{
		ID:               id,
		UserID:           "u1",
		QuizID:           "qz_1",
		AttemptNumber:    1,
		Status:           status,
		StartedAt:        testNow.Add(-4 * time.Minute),
		CompletedAt:      &completed,
		TimeSpentSeconds: 240,
		TotalQuestions:   2,
		Answers: []attempt.AnswerRecord{
			{QuestionIndex: 0, SelectedOption: &correct, TimeSpentSeconds: 30},
			{QuestionIndex: 1, SelectedOption: &wrong, TimeSpentSeconds: 50},
		},
	}
}

func TestGradeAttemptIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)
	h.attempts["att_1"] = finishedAttempt("att_1", attempt.StatusCompleted)

	first, err := h.engine.GradeAttempt(ctx, "att_1")
	if err != nil {
		t.Fatalf("GradeAttempt returned error: %v", err)
	}
	if first.Percentage != 50 || first.TimeSpentSeconds != 240 || first.AttemptID != "att_1" {
		t.Fatalf("unexpected result: %+v", first)
	}

	second, err := h.engine.GradeAttempt(ctx, "att_1")
	if err != nil {
		t.Fatalf("second GradeAttempt returned error: %v", err)
	}
	if second.ID != first.ID || h.results.createCalls != 1 {
		t.Fatalf("expected the stored result back, got %s (creates=%d)", second.ID, h.results.createCalls)
	}
}

func TestGradeAttemptStatusMapping(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t)
	h.attempts["expired"] = finishedAttempt("expired", attempt.StatusTimeExpired)
	h.attempts["abandoned"] = finishedAttempt("abandoned", attempt.StatusAbandoned)
	h.attempts["active"] = finishedAttempt("active", attempt.StatusInProgress)

	result, err := h.engine.GradeAttempt(ctx, "expired")
	if err != nil || result.Status != ResultExpired {
		t.Fatalf("expected expired result, got %+v %v", result, err)
	}
	result, err = h.engine.GradeAttempt(ctx, "abandoned")
	if err != nil || result.Status != ResultAbandoned {
		t.Fatalf("expected abandoned result, got %+v %v", result, err)
	}
	_, err = h.engine.GradeAttempt(ctx, "active")
	if !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected active attempt rejection, got %v", err)
	}
	_, err = h.engine.GradeAttempt(ctx, "missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddFeedbackAppends(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, func(d *quiz.Definition) {
		d.CreatedBy = "author"
		d.Access.Reviewers = []string{"reviewer1"}
	})
	result, err := h.engine.SubmitQuiz(ctx, SubmitInput{UserID: "u1", QuizID: "qz_1"})
	if err != nil {
		t.Fatalf("SubmitQuiz returned error: %v", err)
	}

	for _, comment := range []string{"good pacing", "review Q2"} {
		if _, err := h.engine.AddFeedback(ctx, result.ID, "reviewer1", comment); err != nil {
			t.Fatalf("AddFeedback returned error: %v", err)
		}
	}
	updated, err := h.engine.GetResult(ctx, result.ID)
	if err != nil {
		t.Fatalf("GetResult returned error: %v", err)
	}
	if len(updated.Feedback) != 2 || updated.Feedback[1].Comment != "review Q2" {
		t.Fatalf("unexpected feedback: %+v", updated.Feedback)
	}
	if updated.TotalScore != result.TotalScore {
		t.Fatalf("feedback must not change the score")
	}

	if _, err := h.engine.AddFeedback(ctx, result.ID, "author", "nice"); err != nil {
		t.Fatalf("author feedback rejected: %v", err)
	}

	_, err = h.engine.AddFeedback(ctx, result.ID, "reviewer1", "  ")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = h.engine.AddFeedback(ctx, "missing", "reviewer1", "hi")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAddFeedbackRejectsNonReviewers(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, func(d *quiz.Definition) { d.CreatedBy = "author" })
	result, err := h.engine.SubmitQuiz(ctx, SubmitInput{UserID: "u1", QuizID: "qz_1"})
	if err != nil {
		t.Fatalf("SubmitQuiz returned error: %v", err)
	}

	for _, user := range []string{"u1", "mallory"} {
		if _, err := h.engine.AddFeedback(ctx, result.ID, user, "looks fine"); !errors.Is(err, apperr.ErrForbidden) {
			t.Fatalf("AddFeedback as %s = %v, want forbidden", user, err)
		}
	}
	stored, err := h.engine.GetResult(ctx, result.ID)
	if err != nil {
		t.Fatalf("GetResult returned error: %v", err)
	}
	if len(stored.Feedback) != 0 {
		t.Fatalf("rejected feedback was stored: %+v", stored.Feedback)
	}
}

func TestListUserResults(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, func(d *quiz.Definition) { d.AllowRetake = true })
	for i := 0; i < 3; i++ {
		if _, err := h.engine.SubmitQuiz(ctx, SubmitInput{UserID: "u1", QuizID: "qz_1"}); err != nil {
			t.Fatalf("SubmitQuiz returned error: %v", err)
		}
	}

	results, err := h.engine.ListUserResults(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("ListUserResults returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(results))
	}
}
