package quiz

import (
	"strings"
	"time"

	"quiz-engine/internal/apperr"
)

type PublishStatus string

const (
	StatusDraft     PublishStatus = "draft"
	StatusPublished PublishStatus = "published"
	StatusArchived  PublishStatus = "archived"
)

type AccessMode string

const (
	AccessPublic     AccessMode = "public"
	AccessPrivate    AccessMode = "private"
	AccessRestricted AccessMode = "restricted"
)

const defaultQuestionPoints = 1

type Option struct {
	Letter string `json:"letter" bson:"letter"`
	Text   string `json:"text" bson:"text"`
}

type PublicQuestion struct {
	QuestionID string   `json:"question_id" bson:"question_id"`
	Question   string   `json:"question" bson:"question"`
	Options    []Option `json:"options" bson:"options"`
}

type Question struct {
	PublicQuestion `bson:",inline"`
	CorrectIndex   int     `json:"correct_index" bson:"correct_index"`
	Points         float64 `json:"points" bson:"points"`
	Difficulty     string  `json:"difficulty,omitempty" bson:"difficulty,omitempty"`
}

type AccessControl struct {
	Mode         AccessMode `json:"mode" bson:"mode"`
	AllowedUsers []string   `json:"allowed_users,omitempty" bson:"allowed_users,omitempty"`
	BlockedUsers []string   `json:"blocked_users,omitempty" bson:"blocked_users,omitempty"`
	// Reviewers may comment on results besides the quiz author.
	Reviewers    []string   `json:"reviewers,omitempty" bson:"reviewers,omitempty"`
}

// Definition is the quiz configuration an attempt runs against. It is owned by
// the authoring side and treated as immutable while attempts are in flight.
type Definition struct {
	QuizID         string        `json:"quiz_id" bson:"_id"`
	Title          string        `json:"title" bson:"title"`
	Status         PublishStatus `json:"status" bson:"status"`
	IsActive       bool          `json:"is_active" bson:"is_active"`
	AvailableFrom  *time.Time    `json:"available_from,omitempty" bson:"available_from,omitempty"`
	AvailableUntil *time.Time    `json:"available_until,omitempty" bson:"available_until,omitempty"`

	Questions     []Question `json:"questions" bson:"questions"`
	DefaultPoints float64    `json:"default_points" bson:"default_points"`

	TimeLimitMinutes       int `json:"time_limit_minutes" bson:"time_limit_minutes"`
	TimePerQuestionSeconds int `json:"time_per_question_seconds" bson:"time_per_question_seconds"`

	MaxAttempts        int  `json:"max_attempts" bson:"max_attempts"`
	AllowRetake        bool `json:"allow_retake" bson:"allow_retake"`
	RetakeDelayMinutes int  `json:"retake_delay_minutes" bson:"retake_delay_minutes"`
	PassingScore       int  `json:"passing_score" bson:"passing_score"`
	AllowPause         bool `json:"allow_pause" bson:"allow_pause"`

	NegativeMarking      bool    `json:"negative_marking" bson:"negative_marking"`
	NegativeMarkingValue float64 `json:"negative_marking_value" bson:"negative_marking_value"`

	Access    AccessControl `json:"access" bson:"access"`
	CreatedBy string        `json:"created_by" bson:"created_by"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at"`
}

// Normalize fills derived fields: question ids, per-question points and the
// default access mode. Call it once when a definition is created or imported.
func (d *Definition) Normalize() {
	if d.DefaultPoints <= 0 {
		d.DefaultPoints = defaultQuestionPoints
	}
	for idx := range d.Questions {
		if d.Questions[idx].QuestionID == "" {
			d.Questions[idx].QuestionID = MakeQuestionID(d.Questions[idx])
		}
		if d.Questions[idx].Points <= 0 {
			d.Questions[idx].Points = d.DefaultPoints
		}
	}
	if d.Access.Mode == "" {
		d.Access.Mode = AccessPublic
	}
	if d.Status == "" {
		d.Status = StatusDraft
	}
}

// Validate rejects definitions an attempt could not run against.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.QuizID) == "" {
		return apperr.Validation("quiz id is required")
	}
	for idx, question := range d.Questions {
		if len(question.Options) < 2 {
			return apperr.Validation("question %d needs at least two options", idx)
		}
		if question.CorrectIndex < 0 || question.CorrectIndex >= len(question.Options) {
			return apperr.Validation("question %d has no valid correct option", idx)
		}
		if question.Points < 0 {
			return apperr.Validation("question %d has negative points", idx)
		}
	}
	if d.PassingScore < 0 || d.PassingScore > 100 {
		return apperr.Validation("passing score must be between 0 and 100")
	}
	if d.NegativeMarkingValue < 0 {
		return apperr.Validation("negative marking value must not be negative")
	}
	if d.TimeLimitMinutes < 0 || d.TimePerQuestionSeconds < 0 {
		return apperr.Validation("time limits must not be negative")
	}
	if d.MaxAttempts < 0 || d.RetakeDelayMinutes < 0 {
		return apperr.Validation("retake settings must not be negative")
	}
	return nil
}

func (d Definition) TotalQuestions() int {
	return len(d.Questions)
}

// TimeBudget is the total time allotted to one attempt. A per-question time
// overrides the flat limit. Zero means the quiz is untimed.
func (d Definition) TimeBudget() time.Duration {
	if d.TimePerQuestionSeconds > 0 {
		return time.Duration(d.TimePerQuestionSeconds*d.TotalQuestions()) * time.Second
	}
	if d.TimeLimitMinutes > 0 {
		return time.Duration(d.TimeLimitMinutes*60) * time.Second
	}
	return 0
}

func (d Definition) PointsFor(index int) float64 {
	if index < 0 || index >= len(d.Questions) {
		return 0
	}
	if points := d.Questions[index].Points; points > 0 {
		return points
	}
	if d.DefaultPoints > 0 {
		return d.DefaultPoints
	}
	return defaultQuestionPoints
}

func (d Definition) MaxScore() float64 {
	total := 0.0
	for idx := range d.Questions {
		total += d.PointsFor(idx)
	}
	return total
}

type Metadata struct {
	QuizID        string        `json:"quiz_id"`
	Title         string        `json:"title"`
	Status        PublishStatus `json:"status"`
	QuestionCount int           `json:"question_count"`
	CreatedAt     time.Time     `json:"created_at"`
}

func (d Definition) Metadata() Metadata {
	return Metadata{
		QuizID:        d.QuizID,
		Title:         d.Title,
		Status:        d.Status,
		QuestionCount: d.TotalQuestions(),
		CreatedAt:     d.CreatedAt,
	}
}
