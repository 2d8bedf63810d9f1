package quiz

import (
	"strings"
	"testing"

	"quiz-engine/internal/opentdb"
)

func TestBuildQuestionsUnescapesAndAssignsID(t *testing.T) {
	raw := []opentdb.RawQuestion{
		{
			Question:         "2 &amp; 2 = ?",
			CorrectAnswer:    "4 &lt; 5",
			Difficulty:       "Medium",
			IncorrectAnswers: []string{"1", "2", "3"},
		},
	}

	questions := BuildQuestions(raw)
	if len(questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(questions))
	}

	item := questions[0]
	if item.Question != "2 & 2 = ?" {
		t.Fatalf("question not unescaped, got %q", item.Question)
	}
	if !strings.HasPrefix(item.QuestionID, "q_") || len(item.QuestionID) != 42 {
		t.Fatalf("unexpected question id format: %q", item.QuestionID)
	}
	if item.CorrectIndex < 0 || item.CorrectIndex >= len(item.Options) {
		t.Fatalf("correct index out of range: %d", item.CorrectIndex)
	}

	if item.Difficulty != "medium" {
		t.Fatalf("difficulty not normalized, got %q", item.Difficulty)
	}

	foundCorrectOption := false
	for _, option := range item.Options {
		if option.Text == "4 < 5" {
			foundCorrectOption = true
			break
		}
	}
	if !foundCorrectOption {
		t.Fatalf("correct option text not found in options: %+v", item.Options)
	}
}

func TestMakeQuestionIDDiffersWhenOptionOrderDiffers(t *testing.T) {
	q1 := Question{
		PublicQuestion: PublicQuestion{
			Question: "Ordering matters",
			Options: []Option{
				{Letter: "A", Text: "One"},
				{Letter: "B", Text: "Two"},
			},
		},
	}
	q2 := Question{
		PublicQuestion: PublicQuestion{
			Question: "Ordering matters",
			Options: []Option{
				{Letter: "A", Text: "Two"},
				{Letter: "B", Text: "One"},
			},
		},
	}

	id1 := MakeQuestionID(q1)
	id2 := MakeQuestionID(q2)
	if id1 == id2 {
		t.Fatalf("expected different IDs for different option ordering, got %q", id1)
	}
}

func TestOptionIndexAcceptsLettersCaseInsensitively(t *testing.T) {
	cases := map[string]int{"a": 0, " B ": 1, "d": 3}
	for input, want := range cases {
		got, ok := OptionIndex(input)
		if !ok || got != want {
			t.Fatalf("OptionIndex(%q) = %d,%v want %d", input, got, ok, want)
		}
	}

	for _, input := range []string{"", "AB", "1", "?"} {
		if _, ok := OptionIndex(input); ok {
			t.Fatalf("OptionIndex(%q) unexpectedly ok", input)
		}
	}
	if OptionLetter(2) != "C" || OptionLetter(-1) != "" {
		t.Fatalf("unexpected OptionLetter results")
	}
}
