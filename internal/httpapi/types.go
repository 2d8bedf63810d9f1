package httpapi

import (
	"time"

	"quiz-engine/internal/attempt"
	"quiz-engine/internal/quiz"
	"quiz-engine/internal/scoring"
)

type startAttemptRequest struct {
	Client attempt.ClientContext `json:"client"`
}

type saveAnswerRequest struct {
	SelectedOption   *int `json:"selected_option" validate:"required,min=0"`
	TimeSpentSeconds int  `json:"time_spent_seconds" validate:"min=0"`
}

type navigateRequest struct {
	QuestionIndex *int `json:"question_index" validate:"required,min=0"`
}

type activityRequest struct {
	Type   string `json:"type" validate:"max=64"`
	Detail string `json:"detail" validate:"max=512"`
}

type heartbeatRequest struct {
	TimeSpentSeconds int `json:"time_spent_seconds" validate:"min=0"`
	RemainingSeconds int `json:"remaining_seconds" validate:"min=0"`
}

type submittedAnswerRequest struct {
	QuestionIndex    *int `json:"question_index" validate:"required,min=0"`
	SelectedOption   *int `json:"selected_option" validate:"omitempty,min=-1"`
	TimeSpentSeconds int  `json:"time_spent_seconds" validate:"min=0"`
}

type submitQuizRequest struct {
	Answers       []submittedAnswerRequest `json:"answers" validate:"dive"`
	StartTime     *time.Time               `json:"start_time"`
	EndTime       *time.Time               `json:"end_time"`
	AttemptNumber int                      `json:"attempt_number" validate:"min=0"`
}

type feedbackRequest struct {
	Comment string `json:"comment" validate:"required,max=2000"`
}

// attemptResponse is the client view of an attempt. Anomaly details stay
// server-side; only their count is exposed.
type attemptResponse struct {
	ID                   string                 `json:"id"`
	UserID               string                 `json:"user_id"`
	QuizID               string                 `json:"quiz_id"`
	AttemptNumber        int                    `json:"attempt_number"`
	Status               attempt.Status         `json:"status"`
	StartedAt            time.Time              `json:"started_at"`
	LastActiveAt         time.Time              `json:"last_active_at"`
	PausedAt             *time.Time             `json:"paused_at,omitempty"`
	CompletedAt          *time.Time             `json:"completed_at,omitempty"`
	TimeSpentSeconds     int                    `json:"time_spent_seconds"`
	RemainingSeconds     int                    `json:"remaining_seconds"`
	TimeBudgetSeconds    int                    `json:"time_budget_seconds"`
	TotalQuestions       int                    `json:"total_questions"`
	CurrentQuestionIndex int                    `json:"current_question_index"`
	Answered             attempt.IndexSet       `json:"answered"`
	Flagged              attempt.IndexSet       `json:"flagged"`
	Skipped              attempt.IndexSet       `json:"skipped"`
	Answers              []attempt.AnswerRecord `json:"answers"`
	TabSwitchCount       int                    `json:"tab_switch_count"`
	AnomalyCount         int                    `json:"anomaly_count"`
	ProgressPercent      int                    `json:"progress_percent"`
}

type attemptsResponse struct {
	Attempts []attemptResponse `json:"attempts"`
}

type submitAttemptResponse struct {
	Attempt attemptResponse `json:"attempt"`
	Result  *scoring.Result `json:"result,omitempty"`
}

type quizResponse struct {
	QuizID                 string                `json:"quiz_id"`
	Title                  string                `json:"title"`
	TimeLimitMinutes       int                   `json:"time_limit_minutes"`
	TimePerQuestionSeconds int                   `json:"time_per_question_seconds"`
	MaxAttempts            int                   `json:"max_attempts"`
	AllowRetake            bool                  `json:"allow_retake"`
	PassingScore           int                   `json:"passing_score"`
	AllowPause             bool                  `json:"allow_pause"`
	NegativeMarking        bool                  `json:"negative_marking"`
	QuestionCount          int                   `json:"question_count"`
	PublicQuestions        []quiz.PublicQuestion `json:"questions"`
}

type quizzesResponse struct {
	Quizzes []quiz.Metadata `json:"quizzes"`
}

type resultsResponse struct {
	Results []*scoring.Result `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
