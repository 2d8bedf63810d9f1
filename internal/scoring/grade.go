package scoring

import (
	"math"

	"quiz-engine/internal/attempt"
	"quiz-engine/internal/quiz"
)

type SubmittedAnswer struct {
	QuestionIndex    int `json:"question_index"`
	SelectedOption   int `json:"selected_option"`
	TimeSpentSeconds int `json:"time_spent_seconds"`
}

type Graded struct {
	Answers    []QuestionResult
	TotalScore float64
	MaxScore   float64
	Percentage int
	Passed     bool
}

// Grade scores answers against the definition in question order. Questions
// without an answer count as skipped. A wrong answer under negative marking
// can zero a question but never takes the total below zero.
func Grade(definition quiz.Definition, answers []SubmittedAnswer) Graded {
	byIndex := make(map[int]SubmittedAnswer, len(answers))
	for _, answer := range answers {
		byIndex[answer.QuestionIndex] = answer
	}

	graded := Graded{
		Answers:  make([]QuestionResult, 0, len(definition.Questions)),
		MaxScore: definition.MaxScore(),
	}
	for idx, question := range definition.Questions {
		selected := SkippedOption
		timeSpent := 0
		if answer, ok := byIndex[idx]; ok {
			timeSpent = max(0, answer.TimeSpentSeconds)
			if answer.SelectedOption >= 0 {
				selected = answer.SelectedOption
			}
		}

		correct := selected != SkippedOption && selected == question.CorrectIndex
		points := 0.0
		switch {
		case correct:
			points = definition.PointsFor(idx)
		case definition.NegativeMarking:
			points = -definition.NegativeMarkingValue
		}
		points = math.Max(points, 0)

		graded.TotalScore += points
		graded.Answers = append(graded.Answers, QuestionResult{
			QuestionIndex:    idx,
			QuestionID:       question.QuestionID,
			SelectedOption:   selected,
			IsCorrect:        correct,
			TimeSpentSeconds: timeSpent,
			PointsEarned:     points,
			Difficulty:       question.Difficulty,
		})
	}

	graded.TotalScore = math.Max(graded.TotalScore, 0)
	graded.Percentage = Percentage(graded.TotalScore, graded.MaxScore)
	graded.Passed = graded.Percentage >= definition.PassingScore
	return graded
}

func Percentage(total, maxScore float64) int {
	if maxScore <= 0 {
		return 0
	}
	return int(math.Round(total / maxScore * 100))
}

// BuildAnalytics summarizes graded answers. Timing covers answered questions only.
func BuildAnalytics(graded []QuestionResult) Analytics {
	analytics := Analytics{Difficulty: make(map[string]DifficultyStats)}

	var (
		timed     int
		timeTotal int
	)
	for _, answer := range graded {
		switch {
		case answer.Skipped():
			analytics.Skipped++
		case answer.IsCorrect:
			analytics.Correct++
		default:
			analytics.Incorrect++
		}

		if answer.Difficulty != "" {
			bucket := analytics.Difficulty[answer.Difficulty]
			bucket.Total++
			if answer.IsCorrect {
				bucket.Correct++
			}
			analytics.Difficulty[answer.Difficulty] = bucket
		}

		if answer.Skipped() {
			continue
		}
		if timed == 0 || answer.TimeSpentSeconds < analytics.FastestSeconds {
			analytics.FastestSeconds = answer.TimeSpentSeconds
		}
		if answer.TimeSpentSeconds > analytics.SlowestSeconds {
			analytics.SlowestSeconds = answer.TimeSpentSeconds
		}
		timed++
		timeTotal += answer.TimeSpentSeconds
	}

	if timed > 0 {
		analytics.AverageTimeSeconds = float64(timeTotal) / float64(timed)
	}
	if len(analytics.Difficulty) == 0 {
		analytics.Difficulty = nil
	}
	return analytics
}

// AnswersFromAttempt converts an attempt's answer sheet into grading input.
func AnswersFromAttempt(a *attempt.Attempt) []SubmittedAnswer {
	answers := make([]SubmittedAnswer, 0, len(a.Answers))
	for _, record := range a.Answers {
		selected := SkippedOption
		if record.SelectedOption != nil {
			selected = *record.SelectedOption
		}
		answers = append(answers, SubmittedAnswer{
			QuestionIndex:    record.QuestionIndex,
			SelectedOption:   selected,
			TimeSpentSeconds: record.TimeSpentSeconds,
		})
	}
	return answers
}

func resultStatusFor(status attempt.Status) ResultStatus {
	switch {
	case status.IsExpired():
		return ResultExpired
	case status == attempt.StatusAbandoned:
		return ResultAbandoned
	default:
		return ResultCompleted
	}
}
