package userclient

import (
	"bufio"
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"quiz-engine/internal/attempt"
	"quiz-engine/internal/httpapi"
	"quiz-engine/internal/quiz"
	"quiz-engine/internal/scoring"
	"quiz-engine/internal/storage/memory"
)

func TestParsePositiveLimit(t *testing.T) {
	if got, err := parsePositiveLimit([]string{"quizzes"}, 1, 10); err != nil || got != 10 {
		t.Fatalf("default parsePositiveLimit = (%d, %v), want (10, nil)", got, err)
	}
	if got, err := parsePositiveLimit([]string{"quizzes", "3"}, 1, 10); err != nil || got != 3 {
		t.Fatalf("valid parsePositiveLimit = (%d, %v), want (3, nil)", got, err)
	}
	if _, err := parsePositiveLimit([]string{"quizzes", "0"}, 1, 10); err == nil {
		t.Fatalf("expected validation error for non-positive limit")
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatIndexes([]int{0, 2}); got != "1,3" {
		t.Fatalf("formatIndexes = %q", got)
	}
	if got := formatIndexes(nil); got != "none" {
		t.Fatalf("formatIndexes(nil) = %q", got)
	}
	if got := formatSeconds(125); got != "2m05s" {
		t.Fatalf("formatSeconds = %q", got)
	}
}

func TestPromptYesNoRetriesUntilValid(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("maybe\nyes\n"))
	var out bytes.Buffer

	ok, err := promptYesNo(reader, &out, "continue? ")
	if err != nil {
		t.Fatalf("promptYesNo returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected yes result")
	}
	if !strings.Contains(out.String(), "Please answer yes or no.") {
		t.Fatalf("expected retry hint in output, got: %s", out.String())
	}
}

func newQuizServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	definition := quiz.Definition{
		QuizID:       "quiz-1",
		Title:        "Arithmetic",
		Status:       quiz.StatusPublished,
		IsActive:     true,
		PassingScore: 50,
		Questions: []quiz.Question{
			{PublicQuestion: quiz.PublicQuestion{Question: "2 + 2?", Options: []quiz.Option{{Letter: "A", Text: "4"}, {Letter: "B", Text: "5"}}}, CorrectIndex: 0},
			{PublicQuestion: quiz.PublicQuestion{Question: "3 + 3?", Options: []quiz.Option{{Letter: "A", Text: "5"}, {Letter: "B", Text: "6"}}}, CorrectIndex: 1},
		},
	}
	definition.Normalize()
	if err := store.SaveDefinition(context.Background(), definition); err != nil {
		t.Fatalf("SaveDefinition failed: %v", err)
	}

	catalog := quiz.NewCatalog(store)
	api := httpapi.NewAPI(attempt.NewService(store, catalog), scoring.NewEngine(catalog, store, store, store), catalog)
	server := httptest.NewServer(httpapi.NewRouter(api, httpapi.RouterConfig{}))
	t.Cleanup(server.Close)
	return server
}

func TestRunPlaysAttemptAgainstService(t *testing.T) {
	server := newQuizServer(t)

	input := strings.Join([]string{
		"quizzes",
		"start quiz-1",
		"answer c",
		"answer a",
		"flag",
		"answer b",
		"status",
		"submit",
		"results",
		"exit",
	}, "\n") + "\n"

	var out bytes.Buffer
	err := Run(context.Background(), strings.NewReader(input), &out, Config{UserID: "alice", ServerURL: server.URL})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		`1. quiz-1 "Arithmetic" (2 questions, published)`,
		"started attempt 1 of quiz-1",
		"Q1/2: 2 + 2?",
		"Invalid input. Please enter a letter A-B.",
		"Q2/2: 3 + 3?",
		"flagged: 2",
		"end of quiz: 2 of 2 answered.",
		"progress=100%",
		"Score: 2/2 (100%)",
		"Passed!",
		"1. quiz-1 attempt=1 score=2/2 (100%) passed=true status=completed",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestRunRequiresAttemptForAttemptCommands(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), strings.NewReader("answer a\n"), &out, Config{UserID: "alice", ServerURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(out.String(), "no attempt in progress") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestRunReportsUnavailableService(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), strings.NewReader("quizzes\n"), &out, Config{UserID: "alice", ServerURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(out.String(), "quiz service unavailable at http://127.0.0.1:1") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestRunRequiresUser(t *testing.T) {
	if err := Run(context.Background(), strings.NewReader(""), &bytes.Buffer{}, Config{}); err == nil {
		t.Fatalf("expected error for missing user")
	}
}
