package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"quiz-engine/internal/apperr"
	"quiz-engine/internal/attempt"
	"quiz-engine/internal/quiz"
	"quiz-engine/internal/scoring"
)

func (a *API) ListQuizzes(c *gin.Context) {
	limit, err := parseLimit(c, defaultListLimit)
	if err != nil {
		a.writeError(c, err)
		return
	}
	items, err := a.quizzes.ListDefinitions(c.Request.Context(), limit)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quizzesResponse{Quizzes: items})
}

// GetQuiz returns the quiz without answer keys.
func (a *API) GetQuiz(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}
	definition, err := a.quizzes.GetDefinition(c.Request.Context(), strings.TrimSpace(c.Param("quiz_id")))
	if err != nil {
		a.writeError(c, err)
		return
	}
	if err := definition.CheckAccess(userID); err != nil {
		a.writeError(c, err)
		return
	}

	var resp quizResponse
	if err := copier.Copy(&resp, &definition); err != nil {
		a.writeError(c, fmt.Errorf("build quiz view: %w", err))
		return
	}
	resp.QuestionCount = definition.TotalQuestions()
	resp.PublicQuestions = quiz.ToPublicQuestions(definition.Questions)
	c.JSON(http.StatusOK, resp)
}

func (a *API) StartAttempt(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}
	var req startAttemptRequest
	if !a.bind(c, &req, true) {
		return
	}
	if req.Client.IP == "" {
		req.Client.IP = c.ClientIP()
	}
	if req.Client.UserAgent == "" {
		req.Client.UserAgent = c.Request.UserAgent()
	}

	started, err := a.attempts.StartAttempt(c.Request.Context(), attempt.StartInput{
		UserID: userID,
		QuizID: c.Param("quiz_id"),
		Client: req.Client,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}

	status := http.StatusOK
	if started.Status == attempt.StatusStarted {
		status = http.StatusCreated
	}
	a.respondAttempt(c, status, started)
}

func (a *API) ListAttempts(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}
	attempts, err := a.attempts.ListAttempts(c.Request.Context(), userID, c.Param("quiz_id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	views, err := toAttemptResponses(attempts)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, attemptsResponse{Attempts: views})
}

func (a *API) GetActiveAttempt(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}
	active, err := a.attempts.GetActiveAttempt(c.Request.Context(), userID, c.Param("quiz_id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	if active == nil {
		a.writeError(c, apperr.NotFound("no active attempt"))
		return
	}
	a.respondAttempt(c, http.StatusOK, active)
}

func (a *API) GetAttempt(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}
	found, err := a.attempts.GetAttemptFor(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	a.respondAttempt(c, http.StatusOK, found)
}

func (a *API) SaveAnswer(c *gin.Context) {
	attemptID, ok := a.ownedAttempt(c)
	if !ok {
		return
	}
	index, err := parseIndexParam(c)
	if err != nil {
		a.writeError(c, err)
		return
	}
	var req saveAnswerRequest
	if !a.bind(c, &req, false) {
		return
	}
	updated, err := a.attempts.SaveAnswer(c.Request.Context(), attemptID, index, *req.SelectedOption, req.TimeSpentSeconds)
	a.writeAttempt(c, updated, err)
}

func (a *API) SkipQuestion(c *gin.Context) {
	a.indexAction(c, a.attempts.SkipQuestion)
}

func (a *API) Navigate(c *gin.Context) {
	attemptID, ok := a.ownedAttempt(c)
	if !ok {
		return
	}
	var req navigateRequest
	if !a.bind(c, &req, false) {
		return
	}
	updated, err := a.attempts.Navigate(c.Request.Context(), attemptID, *req.QuestionIndex)
	a.writeAttempt(c, updated, err)
}

func (a *API) Pause(c *gin.Context) {
	if attemptID, ok := a.ownedAttempt(c); ok {
		updated, err := a.attempts.Pause(c.Request.Context(), attemptID)
		a.writeAttempt(c, updated, err)
	}
}

func (a *API) Resume(c *gin.Context) {
	if attemptID, ok := a.ownedAttempt(c); ok {
		updated, err := a.attempts.Resume(c.Request.Context(), attemptID)
		a.writeAttempt(c, updated, err)
	}
}

func (a *API) MarkForReview(c *gin.Context) {
	a.indexAction(c, a.attempts.MarkForReview)
}

func (a *API) UnmarkForReview(c *gin.Context) {
	a.indexAction(c, a.attempts.UnmarkForReview)
}

func (a *API) RecordActivity(c *gin.Context) {
	attemptID, ok := a.ownedAttempt(c)
	if !ok {
		return
	}
	var req activityRequest
	if !a.bind(c, &req, true) {
		return
	}
	updated, err := a.attempts.RecordSuspiciousActivity(c.Request.Context(), attemptID, req.Type, req.Detail)
	a.writeAttempt(c, updated, err)
}

func (a *API) Heartbeat(c *gin.Context) {
	attemptID, ok := a.ownedAttempt(c)
	if !ok {
		return
	}
	var req heartbeatRequest
	if !a.bind(c, &req, false) {
		return
	}
	updated, err := a.attempts.UpdateProgress(c.Request.Context(), attemptID, req.TimeSpentSeconds, req.RemainingSeconds)
	a.writeAttempt(c, updated, err)
}

// SubmitAttempt finalizes the attempt and grades it. A grading failure does
// not undo the submission; the client can fetch the result later.
func (a *API) SubmitAttempt(c *gin.Context) {
	attemptID, ok := a.ownedAttempt(c)
	if !ok {
		return
	}
	submitted, err := a.attempts.SubmitAttempt(c.Request.Context(), attemptID)
	if err != nil {
		a.writeError(c, err)
		return
	}

	view, err := toAttemptResponse(submitted)
	if err != nil {
		a.writeError(c, err)
		return
	}
	result, err := a.results.GradeAttempt(c.Request.Context(), attemptID)
	if err != nil {
		a.logger.Error().Err(err).Str("attempt_id", attemptID).Msg("grading submitted attempt failed")
		c.JSON(http.StatusAccepted, submitAttemptResponse{Attempt: view})
		return
	}
	c.JSON(http.StatusOK, submitAttemptResponse{Attempt: view, Result: result})
}

// GetAttemptResult grades on demand, so it also recovers a submit whose
// grading step failed.
func (a *API) GetAttemptResult(c *gin.Context) {
	attemptID, ok := a.ownedAttempt(c)
	if !ok {
		return
	}
	result, err := a.results.GradeAttempt(c.Request.Context(), attemptID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) SubmitQuiz(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}
	var req submitQuizRequest
	if !a.bind(c, &req, false) {
		return
	}

	input := scoring.SubmitInput{
		UserID:        userID,
		QuizID:        c.Param("quiz_id"),
		AttemptNumber: req.AttemptNumber,
		Answers:       make([]scoring.SubmittedAnswer, 0, len(req.Answers)),
	}
	for _, answer := range req.Answers {
		selected := scoring.SkippedOption
		if answer.SelectedOption != nil {
			selected = *answer.SelectedOption
		}
		input.Answers = append(input.Answers, scoring.SubmittedAnswer{
			QuestionIndex:    *answer.QuestionIndex,
			SelectedOption:   selected,
			TimeSpentSeconds: answer.TimeSpentSeconds,
		})
	}
	if req.StartTime != nil {
		input.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		input.EndTime = req.EndTime.UTC()
	}

	result, err := a.results.SubmitQuiz(c.Request.Context(), input)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (a *API) GetResult(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}
	result, err := a.results.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	if result.UserID != userID {
		a.writeError(c, apperr.Forbidden("result belongs to another user"))
		return
	}
	c.JSON(http.StatusOK, result)
}

// AddFeedback records a reviewer comment. The reviewer is the caller.
func (a *API) AddFeedback(c *gin.Context) {
	reviewerID, ok := a.requireUser(c)
	if !ok {
		return
	}
	var req feedbackRequest
	if !a.bind(c, &req, false) {
		return
	}
	result, err := a.results.AddFeedback(c.Request.Context(), c.Param("id"), reviewerID, req.Comment)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) ListUserResults(c *gin.Context) {
	userID, ok := a.requireUser(c)
	if !ok {
		return
	}
	if strings.TrimSpace(c.Param("user_id")) != userID {
		a.writeError(c, apperr.Forbidden("cannot list another user's results"))
		return
	}
	limit, err := parseLimit(c, defaultListLimit)
	if err != nil {
		a.writeError(c, err)
		return
	}
	results, err := a.results.ListUserResults(c.Request.Context(), userID, limit)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultsResponse{Results: results})
}

type indexOperation func(ctx context.Context, attemptID string, questionIndex int) (*attempt.Attempt, error)

func (a *API) indexAction(c *gin.Context, op indexOperation) {
	attemptID, ok := a.ownedAttempt(c)
	if !ok {
		return
	}
	index, err := parseIndexParam(c)
	if err != nil {
		a.writeError(c, err)
		return
	}
	updated, err := op(c.Request.Context(), attemptID, index)
	a.writeAttempt(c, updated, err)
}

func (a *API) writeAttempt(c *gin.Context, updated *attempt.Attempt, err error) {
	if err != nil {
		a.writeError(c, err)
		return
	}
	a.respondAttempt(c, http.StatusOK, updated)
}
