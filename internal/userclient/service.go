package userclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"quiz-engine/internal/quiz"
)

const (
	defaultServer      = "http://127.0.0.1:8080"
	defaultListLimit   = 10
	defaultHTTPTimeout = 5 * time.Second
)

type Config struct {
	UserID      string
	ServerURL   string
	ListLimit   int
	HTTPTimeout time.Duration
}

// session is the attempt the user is currently working through.
type session struct {
	client    *HTTPClient
	reader    *bufio.Reader
	out       io.Writer
	serverURL string
	listLimit int

	quiz       *quizView
	attempt    *attemptView
	questionAt time.Time
	now        func() time.Time
}

func Run(ctx context.Context, in io.Reader, out io.Writer, cfg Config) error {
	userID := strings.TrimSpace(cfg.UserID)
	if userID == "" {
		return errors.New("user id is required")
	}

	serverURL := strings.TrimSpace(cfg.ServerURL)
	if serverURL == "" {
		serverURL = defaultServer
	}
	listLimit := cfg.ListLimit
	if listLimit <= 0 {
		listLimit = defaultListLimit
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	s := &session{
		client:    NewHTTPClient(serverURL, userID, &http.Client{Timeout: timeout}),
		reader:    bufio.NewReader(in),
		out:       out,
		serverURL: serverURL,
		listLimit: listLimit,
		now:       time.Now,
	}

	fmt.Fprintf(out, "quiz-user-service\nuser=%s\nserver=%s\n\n", userID, serverURL)
	printHelp(out)

	for {
		fmt.Fprint(out, "\n> ")
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if strings.ToLower(args[0]) == "exit" {
			return nil
		}
		if err := s.dispatch(ctx, args); err != nil {
			fmt.Fprintf(out, "error: %v\n", describeClientError(err, serverURL))
		}
	}
}

func (s *session) dispatch(ctx context.Context, args []string) error {
	command := strings.ToLower(args[0])
	switch command {
	case "help":
		printHelp(s.out)
		return nil
	case "quizzes":
		limit, err := parsePositiveLimit(args, 1, s.listLimit)
		if err != nil {
			return fmt.Errorf("invalid quizzes limit: %w", err)
		}
		return s.listQuizzes(ctx, limit)
	case "results":
		limit, err := parsePositiveLimit(args, 1, s.listLimit)
		if err != nil {
			return fmt.Errorf("invalid results limit: %w", err)
		}
		return s.listResults(ctx, limit)
	case "start":
		if len(args) != 2 {
			fmt.Fprintln(s.out, "usage: start <quiz_id>")
			return nil
		}
		return s.start(ctx, args[1])
	}

	if s.attempt == nil {
		fmt.Fprintln(s.out, "no attempt in progress. use 'start <quiz_id>' first.")
		return nil
	}

	switch command {
	case "show":
		s.showQuestion()
		return nil
	case "answer":
		if len(args) != 2 {
			fmt.Fprintln(s.out, "usage: answer <letter>")
			return nil
		}
		return s.answer(ctx, args[1])
	case "skip":
		return s.skip(ctx)
	case "goto":
		if len(args) != 2 {
			fmt.Fprintln(s.out, "usage: goto <question_number>")
			return nil
		}
		return s.goTo(ctx, args[1])
	case "flag", "unflag":
		view, err := s.client.SetFlag(ctx, s.attempt.ID, s.attempt.CurrentQuestionIndex, command == "flag")
		if err != nil {
			return err
		}
		s.attempt = &view
		fmt.Fprintf(s.out, "flagged: %s\n", formatIndexes(view.Flagged))
		return nil
	case "pause":
		view, err := s.client.Pause(ctx, s.attempt.ID)
		if err != nil {
			return err
		}
		s.attempt = &view
		fmt.Fprintln(s.out, "attempt paused. use 'resume' to continue.")
		return nil
	case "resume":
		view, err := s.client.Resume(ctx, s.attempt.ID)
		if err != nil {
			return err
		}
		s.attempt = &view
		s.questionAt = s.now()
		s.showQuestion()
		return nil
	case "status":
		return s.status(ctx)
	case "submit":
		return s.submit(ctx)
	default:
		fmt.Fprintln(s.out, "unknown command. type 'help' for usage.")
		return nil
	}
}

func (s *session) listQuizzes(ctx context.Context, limit int) error {
	quizzes, err := s.client.ListQuizzes(ctx, limit)
	if err != nil {
		return err
	}
	if len(quizzes) == 0 {
		fmt.Fprintln(s.out, "No quizzes.")
		return nil
	}

	fmt.Fprintln(s.out, "Quizzes:")
	for idx, item := range quizzes {
		fmt.Fprintf(s.out, "%d. %s %q (%d questions, %s)\n",
			idx+1,
			item.QuizID,
			item.Title,
			item.QuestionCount,
			item.Status,
		)
	}
	return nil
}

func (s *session) listResults(ctx context.Context, limit int) error {
	results, err := s.client.ListResults(ctx, limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(s.out, "No results yet.")
		return nil
	}

	fmt.Fprintln(s.out, "Results:")
	for idx, result := range results {
		fmt.Fprintf(s.out, "%d. %s attempt=%d score=%s/%s (%d%%) passed=%t status=%s\n",
			idx+1,
			result.QuizID,
			result.AttemptNumber,
			formatScore(result.TotalScore),
			formatScore(result.MaxScore),
			result.Percentage,
			result.Passed,
			result.Status,
		)
	}
	return nil
}

func (s *session) start(ctx context.Context, quizID string) error {
	definition, err := s.client.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	view, resumed, err := s.client.StartAttempt(ctx, quizID)
	if err != nil {
		return err
	}

	s.quiz = &definition
	s.attempt = &view
	s.questionAt = s.now()

	if resumed {
		fmt.Fprintf(s.out, "resumed attempt %d of %s (%d%% done)\n", view.AttemptNumber, definition.QuizID, view.ProgressPercent)
	} else {
		fmt.Fprintf(s.out, "started attempt %d of %s\n", view.AttemptNumber, definition.QuizID)
	}
	if view.TimeBudgetSeconds > 0 {
		fmt.Fprintf(s.out, "time remaining: %s\n", formatSeconds(view.RemainingSeconds))
	}
	s.showQuestion()
	return nil
}

func (s *session) showQuestion() {
	index := s.attempt.CurrentQuestionIndex
	if s.quiz == nil || index < 0 || index >= len(s.quiz.Questions) {
		fmt.Fprintln(s.out, "no question to show.")
		return
	}

	question := s.quiz.Questions[index]
	fmt.Fprintln(s.out)
	fmt.Fprintf(s.out, "Q%d/%d: %s\n\n", index+1, len(s.quiz.Questions), question.Question)
	for _, option := range question.Options {
		fmt.Fprintf(s.out, "%s. %s\n", option.Letter, option.Text)
	}
}

func (s *session) answer(ctx context.Context, letter string) error {
	index := s.attempt.CurrentQuestionIndex
	question := s.quiz.Questions[index]
	option, ok := quiz.OptionIndex(letter)
	if !ok || option >= len(question.Options) {
		fmt.Fprintf(s.out, "Invalid input. Please enter a letter A-%s.\n", quiz.OptionLetter(len(question.Options)-1))
		return nil
	}

	spent := int(s.now().Sub(s.questionAt) / time.Second)
	view, err := s.client.SaveAnswer(ctx, s.attempt.ID, index, option, spent)
	if err != nil {
		return err
	}
	s.attempt = &view
	return s.advance(ctx)
}

func (s *session) skip(ctx context.Context) error {
	view, err := s.client.SkipQuestion(ctx, s.attempt.ID, s.attempt.CurrentQuestionIndex)
	if err != nil {
		return err
	}
	s.attempt = &view
	return s.advance(ctx)
}

func (s *session) goTo(ctx context.Context, raw string) error {
	number, err := strconv.Atoi(raw)
	if err != nil || number < 1 || number > len(s.quiz.Questions) {
		fmt.Fprintf(s.out, "question number must be between 1 and %d\n", len(s.quiz.Questions))
		return nil
	}
	view, err := s.client.Navigate(ctx, s.attempt.ID, number-1)
	if err != nil {
		return err
	}
	s.attempt = &view
	s.questionAt = s.now()
	s.showQuestion()
	return nil
}

// advance moves to the next question, or tells the user they reached the end.
func (s *session) advance(ctx context.Context) error {
	next := s.attempt.CurrentQuestionIndex + 1
	if next >= len(s.quiz.Questions) {
		fmt.Fprintf(s.out, "end of quiz: %d of %d answered. use 'submit' to finish.\n", len(s.attempt.Answered), s.attempt.TotalQuestions)
		return nil
	}
	view, err := s.client.Navigate(ctx, s.attempt.ID, next)
	if err != nil {
		return err
	}
	s.attempt = &view
	s.questionAt = s.now()
	s.showQuestion()
	return nil
}

func (s *session) status(ctx context.Context) error {
	view, err := s.client.GetAttempt(ctx, s.attempt.ID)
	if err != nil {
		return err
	}
	s.attempt = &view

	fmt.Fprintf(s.out, "attempt %d status=%s progress=%d%%\n", view.AttemptNumber, view.Status, view.ProgressPercent)
	fmt.Fprintf(s.out, "answered: %s\n", formatIndexes(view.Answered))
	fmt.Fprintf(s.out, "skipped: %s\n", formatIndexes(view.Skipped))
	fmt.Fprintf(s.out, "flagged: %s\n", formatIndexes(view.Flagged))
	if view.TimeBudgetSeconds > 0 {
		fmt.Fprintf(s.out, "time remaining: %s\n", formatSeconds(view.RemainingSeconds))
	}
	return nil
}

func (s *session) submit(ctx context.Context) error {
	unanswered := s.attempt.TotalQuestions - len(s.attempt.Answered)
	if unanswered > 0 {
		confirm, err := promptYesNo(s.reader, s.out, fmt.Sprintf("%d questions unanswered. submit anyway? (yes/no): ", unanswered))
		if err != nil {
			return err
		}
		if !confirm {
			return nil
		}
	}

	submitted, err := s.client.Submit(ctx, s.attempt.ID)
	if err != nil {
		return err
	}
	result := submitted.Result
	if result == nil {
		// Grading did not finish with the submit; ask for it explicitly.
		result, err = s.client.GetAttemptResult(ctx, submitted.Attempt.ID)
		if err != nil {
			return err
		}
	}

	s.attempt = nil
	s.quiz = nil
	fmt.Fprintln(s.out)
	fmt.Fprintf(s.out, "Score: %s/%s (%d%%)\n", formatScore(result.TotalScore), formatScore(result.MaxScore), result.Percentage)
	if result.Passed {
		fmt.Fprintln(s.out, "Passed!")
	} else {
		fmt.Fprintln(s.out, "Not passed.")
	}
	fmt.Fprintf(s.out, "correct=%d incorrect=%d skipped=%d\n", result.Analytics.Correct, result.Analytics.Incorrect, result.Analytics.Skipped)
	return nil
}
