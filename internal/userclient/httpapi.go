package userclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"quiz-engine/internal/quiz"
	"quiz-engine/internal/scoring"
)

var ErrServiceUnavailable = errors.New("quiz service unavailable")

const userIDHeader = "X-User-ID"

type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

// HTTPClient talks to the quiz service on behalf of one user.
type HTTPClient struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

type quizView struct {
	QuizID           string                `json:"quiz_id"`
	Title            string                `json:"title"`
	TimeLimitMinutes int                   `json:"time_limit_minutes"`
	PassingScore     int                   `json:"passing_score"`
	AllowPause       bool                  `json:"allow_pause"`
	QuestionCount    int                   `json:"question_count"`
	Questions        []quiz.PublicQuestion `json:"questions"`
}

type attemptView struct {
	ID                   string    `json:"id"`
	QuizID               string    `json:"quiz_id"`
	AttemptNumber        int       `json:"attempt_number"`
	Status               string    `json:"status"`
	StartedAt            time.Time `json:"started_at"`
	RemainingSeconds     int       `json:"remaining_seconds"`
	TimeBudgetSeconds    int       `json:"time_budget_seconds"`
	TotalQuestions       int       `json:"total_questions"`
	CurrentQuestionIndex int       `json:"current_question_index"`
	Answered             []int     `json:"answered"`
	Flagged              []int     `json:"flagged"`
	Skipped              []int     `json:"skipped"`
	ProgressPercent      int       `json:"progress_percent"`
}

type submitView struct {
	Attempt attemptView     `json:"attempt"`
	Result  *scoring.Result `json:"result,omitempty"`
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

func NewHTTPClient(baseURL, userID string, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimSpace(baseURL)
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = defaultServer
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &HTTPClient{
		baseURL:    baseURL,
		userID:     strings.TrimSpace(userID),
		httpClient: httpClient,
	}
}

func (c *HTTPClient) ListQuizzes(ctx context.Context, limit int) ([]quiz.Metadata, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	var payload quizzesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/quizzes?"+query.Encode(), nil, &payload, nil); err != nil {
		return nil, err
	}
	return payload.Quizzes, nil
}

func (c *HTTPClient) GetQuiz(ctx context.Context, quizID string) (quizView, error) {
	if strings.TrimSpace(quizID) == "" {
		return quizView{}, errors.New("quiz_id is required")
	}
	var payload quizView
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/quizzes/"+url.PathEscape(quizID), nil, &payload, nil)
	return payload, err
}

// StartAttempt starts or resumes the user's attempt. resumed reports whether
// the server handed back an attempt that already existed.
func (c *HTTPClient) StartAttempt(ctx context.Context, quizID string) (view attemptView, resumed bool, err error) {
	if strings.TrimSpace(quizID) == "" {
		return attemptView{}, false, errors.New("quiz_id is required")
	}
	var status int
	err = c.doJSON(ctx, http.MethodPost, "/api/v1/quizzes/"+url.PathEscape(quizID)+"/attempts", nil, &view, &status)
	return view, status == http.StatusOK, err
}

func (c *HTTPClient) GetAttempt(ctx context.Context, attemptID string) (attemptView, error) {
	var payload attemptView
	err := c.doJSON(ctx, http.MethodGet, attemptPath(attemptID, ""), nil, &payload, nil)
	return payload, err
}

func (c *HTTPClient) SaveAnswer(ctx context.Context, attemptID string, questionIndex, option, timeSpentSeconds int) (attemptView, error) {
	body := map[string]int{"selected_option": option, "time_spent_seconds": timeSpentSeconds}
	var payload attemptView
	err := c.doJSON(ctx, http.MethodPut, attemptPath(attemptID, "/answers/"+strconv.Itoa(questionIndex)), body, &payload, nil)
	return payload, err
}

func (c *HTTPClient) SkipQuestion(ctx context.Context, attemptID string, questionIndex int) (attemptView, error) {
	var payload attemptView
	err := c.doJSON(ctx, http.MethodPost, attemptPath(attemptID, "/skip/"+strconv.Itoa(questionIndex)), nil, &payload, nil)
	return payload, err
}

func (c *HTTPClient) Navigate(ctx context.Context, attemptID string, questionIndex int) (attemptView, error) {
	body := map[string]int{"question_index": questionIndex}
	var payload attemptView
	err := c.doJSON(ctx, http.MethodPost, attemptPath(attemptID, "/navigate"), body, &payload, nil)
	return payload, err
}

func (c *HTTPClient) SetFlag(ctx context.Context, attemptID string, questionIndex int, flagged bool) (attemptView, error) {
	method := http.MethodPut
	if !flagged {
		method = http.MethodDelete
	}
	var payload attemptView
	err := c.doJSON(ctx, method, attemptPath(attemptID, "/flags/"+strconv.Itoa(questionIndex)), nil, &payload, nil)
	return payload, err
}

func (c *HTTPClient) Pause(ctx context.Context, attemptID string) (attemptView, error) {
	var payload attemptView
	err := c.doJSON(ctx, http.MethodPost, attemptPath(attemptID, "/pause"), nil, &payload, nil)
	return payload, err
}

func (c *HTTPClient) Resume(ctx context.Context, attemptID string) (attemptView, error) {
	var payload attemptView
	err := c.doJSON(ctx, http.MethodPost, attemptPath(attemptID, "/resume"), nil, &payload, nil)
	return payload, err
}

func (c *HTTPClient) Heartbeat(ctx context.Context, attemptID string, timeSpentSeconds, remainingSeconds int) (attemptView, error) {
	body := map[string]int{"time_spent_seconds": timeSpentSeconds, "remaining_seconds": remainingSeconds}
	var payload attemptView
	err := c.doJSON(ctx, http.MethodPost, attemptPath(attemptID, "/heartbeat"), body, &payload, nil)
	return payload, err
}

func (c *HTTPClient) RecordActivity(ctx context.Context, attemptID, activityType, detail string) error {
	body := map[string]string{"type": activityType, "detail": detail}
	return c.doJSON(ctx, http.MethodPost, attemptPath(attemptID, "/activity"), body, nil, nil)
}

func (c *HTTPClient) Submit(ctx context.Context, attemptID string) (submitView, error) {
	var payload submitView
	err := c.doJSON(ctx, http.MethodPost, attemptPath(attemptID, "/submit"), nil, &payload, nil)
	return payload, err
}

func (c *HTTPClient) GetAttemptResult(ctx context.Context, attemptID string) (*scoring.Result, error) {
	var payload scoring.Result
	if err := c.doJSON(ctx, http.MethodGet, attemptPath(attemptID, "/result"), nil, &payload, nil); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *HTTPClient) ListResults(ctx context.Context, limit int) ([]*scoring.Result, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	var payload resultsResponse
	path := "/api/v1/users/" + url.PathEscape(c.userID) + "/results?" + query.Encode()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &payload, nil); err != nil {
		return nil, err
	}
	return payload.Results, nil
}

func attemptPath(attemptID, suffix string) string {
	return "/api/v1/attempts/" + url.PathEscape(attemptID) + suffix
}

// doJSON sends one request. status, when non-nil, receives the response code
// of a successful call.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any, status *int) error {
	fullURL := c.baseURL + path

	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return err
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		request.Header.Set(userIDHeader, c.userID)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		apiErr := APIError{StatusCode: response.StatusCode}
		var payload errorResponse
		if err := json.NewDecoder(response.Body).Decode(&payload); err == nil {
			apiErr.Code = payload.Code
			apiErr.Message = strings.TrimSpace(payload.Error)
		}
		if apiErr.Message == "" {
			apiErr.Message = response.Status
		}
		return &apiErr
	}

	if status != nil {
		*status = response.StatusCode
	}
	if responseBody == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(responseBody)
}
