package scoring

import (
	"context"
	"errors"
	"time"
)

// SkippedOption marks a question with no submitted answer.
const SkippedOption = -1

type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultAbandoned ResultStatus = "abandoned"
	ResultExpired   ResultStatus = "expired"
)

type QuestionResult struct {
	QuestionIndex    int     `json:"question_index" bson:"question_index"`
	QuestionID       string  `json:"question_id" bson:"question_id"`
	SelectedOption   int     `json:"selected_option" bson:"selected_option"`
	IsCorrect        bool    `json:"is_correct" bson:"is_correct"`
	TimeSpentSeconds int     `json:"time_spent_seconds" bson:"time_spent_seconds"`
	PointsEarned     float64 `json:"points_earned" bson:"points_earned"`
	Difficulty       string  `json:"difficulty,omitempty" bson:"difficulty,omitempty"`
}

func (q QuestionResult) Skipped() bool {
	return q.SelectedOption == SkippedOption
}

type DifficultyStats struct {
	Total   int `json:"total" bson:"total"`
	Correct int `json:"correct" bson:"correct"`
}

type Analytics struct {
	AverageTimeSeconds float64                    `json:"average_time_seconds" bson:"average_time_seconds"`
	FastestSeconds     int                        `json:"fastest_seconds" bson:"fastest_seconds"`
	SlowestSeconds     int                        `json:"slowest_seconds" bson:"slowest_seconds"`
	Correct            int                        `json:"correct" bson:"correct"`
	Incorrect          int                        `json:"incorrect" bson:"incorrect"`
	Skipped            int                        `json:"skipped" bson:"skipped"`
	Difficulty         map[string]DifficultyStats `json:"difficulty,omitempty" bson:"difficulty,omitempty"`
}

type ReviewerFeedback struct {
	ReviewerID string    `json:"reviewer_id" bson:"reviewer_id"`
	Comment    string    `json:"comment" bson:"comment"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

// Result is the graded outcome of one attempt. Only Feedback changes after
// it is written.
type Result struct {
	ID            string `json:"id" bson:"_id"`
	UserID        string `json:"user_id" bson:"user_id"`
	QuizID        string `json:"quiz_id" bson:"quiz_id"`
	AttemptID     string `json:"attempt_id,omitempty" bson:"attempt_id,omitempty"`
	AttemptNumber int    `json:"attempt_number" bson:"attempt_number"`

	Answers    []QuestionResult `json:"answers" bson:"answers"`
	TotalScore float64          `json:"total_score" bson:"total_score"`
	MaxScore   float64          `json:"max_score" bson:"max_score"`
	Percentage int              `json:"percentage" bson:"percentage"`
	Passed     bool             `json:"passed" bson:"passed"`

	StartTime        time.Time    `json:"start_time" bson:"start_time"`
	EndTime          time.Time    `json:"end_time" bson:"end_time"`
	TimeSpentSeconds int          `json:"time_spent_seconds" bson:"time_spent_seconds"`
	Status           ResultStatus `json:"status" bson:"status"`

	Analytics Analytics          `json:"analytics" bson:"analytics"`
	Feedback  []ReviewerFeedback `json:"feedback" bson:"feedback"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

type QuizStats struct {
	QuizID             string    `json:"quiz_id" bson:"_id"`
	AttemptCount       int       `json:"attempt_count" bson:"attempt_count"`
	AverageScore       float64   `json:"average_score" bson:"average_score"`
	AverageTimeSeconds float64   `json:"average_time_seconds" bson:"average_time_seconds"`
	PassRate           float64   `json:"pass_rate" bson:"pass_rate"`
	UpdatedAt          time.Time `json:"updated_at" bson:"updated_at"`
}

type UserStats struct {
	UserID           string    `json:"user_id" bson:"_id"`
	QuizzesTaken     int       `json:"quizzes_taken" bson:"quizzes_taken"`
	AverageScore     float64   `json:"average_score" bson:"average_score"`
	TotalTimeSeconds int       `json:"total_time_seconds" bson:"total_time_seconds"`
	UpdatedAt        time.Time `json:"updated_at" bson:"updated_at"`
}

// ErrDuplicateResult is returned by CreateResult when the attempt already
// has a result.
var ErrDuplicateResult = errors.New("result already exists for attempt")

type ResultStore interface {
	CreateResult(ctx context.Context, result *Result) error
	GetResult(ctx context.Context, id string) (*Result, error)
	// FindResultByAttempt returns nil, nil when the attempt has not been graded.
	FindResultByAttempt(ctx context.Context, attemptID string) (*Result, error)
	ListResultsByUser(ctx context.Context, userID string, limit int) ([]*Result, error)
	ListResultsByUserQuiz(ctx context.Context, userID, quizID string) ([]*Result, error)
	// CountResultsByQuiz returns the number of results and how many of them passed.
	CountResultsByQuiz(ctx context.Context, quizID string) (total int, passed int, err error)
	AppendFeedback(ctx context.Context, resultID string, feedback ReviewerFeedback) error
}

// StatsStore holds running aggregates. Getters return nil, nil when no
// aggregate exists yet.
type StatsStore interface {
	GetQuizStats(ctx context.Context, quizID string) (*QuizStats, error)
	SaveQuizStats(ctx context.Context, stats QuizStats) error
	GetUserStats(ctx context.Context, userID string) (*UserStats, error)
	SaveUserStats(ctx context.Context, stats UserStats) error
}
