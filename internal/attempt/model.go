package attempt

import (
	"math"
	"slices"
	"time"
)

type Status string

const (
	StatusStarted     Status = "started"
	StatusInProgress  Status = "in_progress"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusSubmitted   Status = "submitted"
	StatusAbandoned   Status = "abandoned"
	StatusExpired     Status = "expired"
	StatusTimeExpired Status = "time_expired"
)

// ActiveStatuses are the statuses in which an attempt still belongs to its
// user. At most one attempt per user and quiz may hold one of them.
var ActiveStatuses = []Status{StatusStarted, StatusInProgress, StatusPaused}

func (s Status) IsActive() bool {
	return slices.Contains(ActiveStatuses, s)
}

func (s Status) IsSubmitted() bool {
	return s == StatusCompleted || s == StatusSubmitted
}

func (s Status) IsExpired() bool {
	return s == StatusExpired || s == StatusTimeExpired
}

const (
	AnomalyTabSwitch      = "tab_switch"
	AnomalyCopyPaste      = "copy_paste"
	AnomalyWindowBlur     = "window_blur"
	AnomalyFullscreenExit = "fullscreen_exit"
	AnomalyRightClick     = "right_click"
	AnomalyDevTools       = "devtools_open"
	AnomalyOther          = "other"
)

type Anomaly struct {
	Type   string    `json:"type" bson:"type"`
	At     time.Time `json:"at" bson:"at"`
	Detail string    `json:"detail,omitempty" bson:"detail,omitempty"`
}

type ClientContext struct {
	UserAgent        string `json:"user_agent,omitempty" bson:"user_agent,omitempty"`
	Browser          string `json:"browser,omitempty" bson:"browser,omitempty"`
	OS               string `json:"os,omitempty" bson:"os,omitempty"`
	Device           string `json:"device,omitempty" bson:"device,omitempty"`
	ScreenResolution string `json:"screen_resolution,omitempty" bson:"screen_resolution,omitempty"`
	Timezone         string `json:"timezone,omitempty" bson:"timezone,omitempty"`
	IP               string `json:"ip,omitempty" bson:"ip,omitempty"`
}

type AnswerRecord struct {
	QuestionIndex    int       `json:"question_index" bson:"question_index"`
	SelectedOption   *int      `json:"selected_option,omitempty" bson:"selected_option,omitempty"`
	TimeSpentSeconds int       `json:"time_spent_seconds" bson:"time_spent_seconds"`
	MarkedForReview  bool      `json:"marked_for_review" bson:"marked_for_review"`
	UpdatedAt        time.Time `json:"updated_at" bson:"updated_at"`
}

type Attempt struct {
	ID            string `json:"id" bson:"_id"`
	UserID        string `json:"user_id" bson:"user_id"`
	QuizID        string `json:"quiz_id" bson:"quiz_id"`
	AttemptNumber int    `json:"attempt_number" bson:"attempt_number"`
	Status        Status `json:"status" bson:"status"`

	StartedAt         time.Time  `json:"started_at" bson:"started_at"`
	LastActiveAt      time.Time  `json:"last_active_at" bson:"last_active_at"`
	PausedAt          *time.Time `json:"paused_at,omitempty" bson:"paused_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	TimeSpentSeconds  int        `json:"time_spent_seconds" bson:"time_spent_seconds"`
	RemainingSeconds  int        `json:"remaining_seconds" bson:"remaining_seconds"`
	TimeBudgetSeconds int        `json:"time_budget_seconds" bson:"time_budget_seconds"`
	PausedSeconds     int        `json:"paused_seconds" bson:"paused_seconds"`

	TotalQuestions       int      `json:"total_questions" bson:"total_questions"`
	CurrentQuestionIndex int      `json:"current_question_index" bson:"current_question_index"`
	Answered             IndexSet `json:"answered" bson:"answered"`
	Flagged              IndexSet `json:"flagged" bson:"flagged"`
	Skipped              IndexSet `json:"skipped" bson:"skipped"`

	Answers        []AnswerRecord `json:"answers" bson:"answers"`
	Anomalies      []Anomaly      `json:"anomalies" bson:"anomalies"`
	TabSwitchCount int            `json:"tab_switch_count" bson:"tab_switch_count"`
	Client         ClientContext  `json:"client" bson:"client"`

	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (a *Attempt) Answer(questionIndex int) (AnswerRecord, bool) {
	idx, found := a.findAnswer(questionIndex)
	if !found {
		return AnswerRecord{}, false
	}
	return a.Answers[idx], true
}

// setAnswer replaces the record for its index or inserts it in index order.
func (a *Attempt) setAnswer(record AnswerRecord) {
	idx, found := a.findAnswer(record.QuestionIndex)
	if found {
		a.Answers[idx] = record
		return
	}
	a.Answers = slices.Insert(a.Answers, idx, record)
}

func (a *Attempt) findAnswer(questionIndex int) (int, bool) {
	return slices.BinarySearchFunc(a.Answers, questionIndex, func(record AnswerRecord, target int) int {
		return record.QuestionIndex - target
	})
}

func (a *Attempt) ProgressPercent() int {
	if a.TotalQuestions <= 0 {
		return 0
	}
	return int(math.Round(float64(len(a.Answered)) / float64(a.TotalQuestions) * 100))
}

func (a *Attempt) TimeBudget() time.Duration {
	return time.Duration(a.TimeBudgetSeconds) * time.Second
}

// Overdue reports whether the time spent outside pauses exceeds the budget.
// Untimed attempts are never overdue.
func (a *Attempt) Overdue(now time.Time) bool {
	if a.TimeBudgetSeconds <= 0 {
		return false
	}
	return a.activeDuration(now).Milliseconds() > a.TimeBudget().Milliseconds()
}

func (a *Attempt) activeDuration(now time.Time) time.Duration {
	paused := time.Duration(a.PausedSeconds) * time.Second
	if a.PausedAt != nil && now.After(*a.PausedAt) {
		paused += now.Sub(*a.PausedAt)
	}
	return now.Sub(a.StartedAt) - paused
}

// ActiveSeconds is wall-clock time since start minus accumulated pauses.
func (a *Attempt) ActiveSeconds(now time.Time) int {
	end := now
	if a.CompletedAt != nil {
		end = *a.CompletedAt
	}
	paused := a.PausedSeconds
	if a.PausedAt != nil && end.After(*a.PausedAt) {
		paused += int(end.Sub(*a.PausedAt) / time.Second)
	}
	active := int(end.Sub(a.StartedAt)/time.Second) - paused
	if active < 0 {
		return 0
	}
	return active
}

// FinishedAt is the moment the attempt left the active statuses, falling
// back to the last activity for records that never stamped a completion.
func (a *Attempt) FinishedAt() time.Time {
	if a.CompletedAt != nil {
		return *a.CompletedAt
	}
	return a.LastActiveAt
}

func (a *Attempt) Clone() *Attempt {
	if a == nil {
		return nil
	}
	out := *a
	out.PausedAt = clonePtr(a.PausedAt)
	out.CompletedAt = clonePtr(a.CompletedAt)
	out.Answered = slices.Clone(a.Answered)
	out.Flagged = slices.Clone(a.Flagged)
	out.Skipped = slices.Clone(a.Skipped)
	out.Anomalies = slices.Clone(a.Anomalies)
	out.Answers = make([]AnswerRecord, len(a.Answers))
	for idx, record := range a.Answers {
		record.SelectedOption = clonePtr(record.SelectedOption)
		out.Answers[idx] = record
	}
	return &out
}

func clonePtr[T any](value *T) *T {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

// IndexSet is a sorted, duplicate-free set of question indices.
type IndexSet []int

func (s IndexSet) Contains(index int) bool {
	_, found := slices.BinarySearch(s, index)
	return found
}

func (s IndexSet) Add(index int) IndexSet {
	pos, found := slices.BinarySearch(s, index)
	if found {
		return s
	}
	return slices.Insert(s, pos, index)
}

func (s IndexSet) Remove(index int) IndexSet {
	pos, found := slices.BinarySearch(s, index)
	if !found {
		return s
	}
	return slices.Delete(s, pos, pos+1)
}
