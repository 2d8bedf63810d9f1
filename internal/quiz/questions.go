package quiz

import (
	"crypto/sha1"
	"encoding/hex"
	"html"
	"math/rand"
	"strings"

	"quiz-engine/internal/opentdb"
)

// BuildQuestions converts OpenTriviaDB items into gradable questions with
// shuffled options. Points are left at zero so Normalize applies the quiz default.
func BuildQuestions(raw []opentdb.RawQuestion) []Question {
	questions := make([]Question, 0, len(raw))
	for _, item := range raw {
		question := buildQuestion(item)
		question.QuestionID = MakeQuestionID(question)
		questions = append(questions, question)
	}
	return questions
}

func ToPublicQuestions(questions []Question) []PublicQuestion {
	public := make([]PublicQuestion, 0, len(questions))
	for _, question := range questions {
		public = append(public, question.PublicQuestion)
	}
	return public
}

func MakeQuestionID(question Question) string {
	var keyBuilder strings.Builder
	keyBuilder.WriteString(question.Question)
	for _, option := range question.Options {
		keyBuilder.WriteString("|")
		keyBuilder.WriteString(option.Text)
	}

	hash := sha1.Sum([]byte(keyBuilder.String()))
	return "q_" + hex.EncodeToString(hash[:])
}

// OptionIndex maps an option letter ("a", " B ") to its zero-based index.
func OptionIndex(answer string) (int, bool) {
	letter := strings.ToUpper(strings.TrimSpace(answer))
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'Z' {
		return 0, false
	}
	return int(letter[0] - 'A'), true
}

func OptionLetter(index int) string {
	if index < 0 || index > 25 {
		return ""
	}
	return string(rune('A' + index))
}

func buildQuestion(raw opentdb.RawQuestion) Question {
	type choice struct {
		text      string
		isCorrect bool
	}

	choices := make([]choice, 0, len(raw.IncorrectAnswers)+1)
	for _, incorrect := range raw.IncorrectAnswers {
		choices = append(choices, choice{
			text:      html.UnescapeString(incorrect),
			isCorrect: false,
		})
	}

	choices = append(choices, choice{
		text:      html.UnescapeString(raw.CorrectAnswer),
		isCorrect: true,
	})

	rand.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})

	options := make([]Option, len(choices))
	correctIndex := -1

	for idx, candidate := range choices {
		options[idx] = Option{
			Letter: OptionLetter(idx),
			Text:   candidate.text,
		}
		if candidate.isCorrect {
			correctIndex = idx
		}
	}

	return Question{
		PublicQuestion: PublicQuestion{
			Question: html.UnescapeString(raw.Question),
			Options:  options,
		},
		CorrectIndex: correctIndex,
		Difficulty:   strings.ToLower(strings.TrimSpace(raw.Difficulty)),
	}
}
