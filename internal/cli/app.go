// Package cli implements the quiz-cli admin commands. They run against the
// same storage the service uses, in process.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"quiz-engine/internal/attempt"
	"quiz-engine/internal/quiz"
	"quiz-engine/internal/scoring"
	"quiz-engine/internal/sweeper"
)

const (
	defaultQuestionCount = 10
	defaultListLimit     = 20
)

var ErrUsage = errors.New("usage error")

type Deps struct {
	Catalog  *quiz.Catalog
	Attempts *attempt.Service
	Engine   *scoring.Engine
	Sweeper  *sweeper.Sweeper
}

func Run(ctx context.Context, args []string, out io.Writer, deps Deps) error {
	if len(args) == 0 {
		printUsage(out)
		return ErrUsage
	}

	command, rest := strings.ToLower(args[0]), args[1:]
	switch command {
	case "seed":
		return runSeed(ctx, rest, out, deps.Catalog)
	case "quizzes":
		return runQuizzes(ctx, rest, out, deps.Catalog)
	case "sweep":
		return runSweep(ctx, out, deps.Sweeper)
	case "grade":
		if len(rest) != 1 {
			fmt.Fprintln(out, "usage: quiz-cli grade <attempt_id>")
			return ErrUsage
		}
		result, err := deps.Engine.GradeAttempt(ctx, rest[0])
		if err != nil {
			return err
		}
		return writeJSON(out, result)
	case "show":
		if len(rest) != 1 {
			fmt.Fprintln(out, "usage: quiz-cli show <attempt_id>")
			return ErrUsage
		}
		a, err := deps.Attempts.GetAttempt(ctx, rest[0])
		if err != nil {
			return err
		}
		return writeJSON(out, a)
	case "attempts":
		if len(rest) != 2 {
			fmt.Fprintln(out, "usage: quiz-cli attempts <user_id> <quiz_id>")
			return ErrUsage
		}
		return runAttempts(ctx, rest[0], rest[1], out, deps.Attempts)
	case "help":
		printUsage(out)
		return nil
	default:
		fmt.Fprintf(out, "unknown command %q\n", command)
		printUsage(out)
		return ErrUsage
	}
}

func runSeed(ctx context.Context, args []string, out io.Writer, catalog *quiz.Catalog) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(out)
	input := quiz.ImportInput{}
	fs.StringVar(&input.QuizID, "id", "", "quiz id (generated when empty)")
	fs.StringVar(&input.Title, "title", "", "quiz title")
	fs.IntVar(&input.QuestionCount, "questions", defaultQuestionCount, "number of questions to fetch")
	fs.IntVar(&input.TimeLimitMinutes, "time-limit", 0, "time limit in minutes, 0 for untimed")
	fs.IntVar(&input.PassingScore, "passing-score", 60, "passing percentage")
	fs.IntVar(&input.MaxAttempts, "max-attempts", 0, "attempt limit, 0 for unlimited")
	fs.BoolVar(&input.AllowRetake, "allow-retake", true, "allow more than one attempt")
	fs.BoolVar(&input.AllowPause, "allow-pause", false, "allow pausing attempts")
	fs.StringVar(&input.CreatedBy, "created-by", "quiz-cli", "author recorded on the quiz")
	reviewers := fs.String("reviewers", "", "comma separated users allowed to comment on results")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	input.Reviewers = splitList(*reviewers)

	definition, err := catalog.Import(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "seeded quiz %s %q with %d questions\n", definition.QuizID, definition.Title, definition.TotalQuestions())
	return nil
}

func runQuizzes(ctx context.Context, args []string, out io.Writer, catalog *quiz.Catalog) error {
	fs := flag.NewFlagSet("quizzes", flag.ContinueOnError)
	fs.SetOutput(out)
	limit := fs.Int("limit", defaultListLimit, "maximum quizzes to list")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	items, err := catalog.ListDefinitions(ctx, *limit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "No quizzes.")
		return nil
	}
	for idx, item := range items {
		fmt.Fprintf(out, "%d. %s %q (%d questions, %s)\n", idx+1, item.QuizID, item.Title, item.QuestionCount, item.Status)
	}
	return nil
}

func runSweep(ctx context.Context, out io.Writer, s *sweeper.Sweeper) error {
	report, err := s.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "scanned=%d expired=%d abandoned=%d deleted=%d graded=%d failed=%d\n",
		report.Scanned, report.Expired, report.Abandoned, report.Deleted, report.Graded, report.Failed)
	return nil
}

func runAttempts(ctx context.Context, userID, quizID string, out io.Writer, attempts *attempt.Service) error {
	items, err := attempts.ListAttempts(ctx, userID, quizID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "No attempts.")
		return nil
	}
	for _, a := range items {
		fmt.Fprintf(out, "#%d %s status=%s progress=%d%% started=%s\n",
			a.AttemptNumber, a.ID, a.Status, a.ProgressPercent(), a.StartedAt.Format(time.RFC3339))
	}
	return nil
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: quiz-cli <command> [args]")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  seed [-id ID] [-title T] [-questions N] [-time-limit M] [-passing-score P]")
	fmt.Fprintln(out, "  quizzes [-limit N]")
	fmt.Fprintln(out, "  attempts <user_id> <quiz_id>")
	fmt.Fprintln(out, "  show <attempt_id>")
	fmt.Fprintln(out, "  grade <attempt_id>")
	fmt.Fprintln(out, "  sweep")
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
