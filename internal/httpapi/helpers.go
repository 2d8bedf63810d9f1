package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/copier"

	"quiz-engine/internal/apperr"
	"quiz-engine/internal/attempt"
)

const defaultListLimit = 20

func statusFor(err error) int {
	switch apperr.Code(err) {
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeInvalidState:
		return http.StatusConflict
	case apperr.CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: apperr.Message(err), Code: apperr.Code(err)})
}

// requireUser reads the caller identity. Requests without one are rejected
// before any service call.
func (a *API) requireUser(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.GetHeader(userIDHeader))
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
			Error: userIDHeader + " header is required",
			Code:  "unauthorized",
		})
		return "", false
	}
	return userID, true
}

// ownedAttempt checks that the caller owns the attempt named in the path.
func (a *API) ownedAttempt(c *gin.Context) (string, bool) {
	userID, ok := a.requireUser(c)
	if !ok {
		return "", false
	}
	attemptID := strings.TrimSpace(c.Param("id"))
	if _, err := a.attempts.GetAttemptFor(c.Request.Context(), attemptID, userID); err != nil {
		a.writeError(c, err)
		return "", false
	}
	return attemptID, true
}

// bind decodes the JSON body into req and validates it. An empty body is
// accepted when optional is set.
func (a *API) bind(c *gin.Context, req any, optional bool) bool {
	if optional && c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON body", Code: apperr.CodeValidation})
		return false
	}
	if err := a.validate.Struct(req); err != nil {
		a.writeError(c, apperr.Validation("%s", validationMessage(err)))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fieldErr.Namespace(), fieldErr.Tag()))
	}
	return strings.Join(parts, "; ")
}

func parseIndexParam(c *gin.Context) (int, error) {
	value := strings.TrimSpace(c.Param("index"))
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, apperr.Validation("question index must be an integer")
	}
	return parsed, nil
}

func parseLimit(c *gin.Context, defaultValue int) (int, error) {
	value := strings.TrimSpace(c.Query("limit"))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return 0, apperr.Validation("limit must be a positive integer")
	}
	return parsed, nil
}

func toAttemptResponse(a *attempt.Attempt) (attemptResponse, error) {
	var resp attemptResponse
	if err := copier.Copy(&resp, a); err != nil {
		return attemptResponse{}, fmt.Errorf("build attempt view: %w", err)
	}
	resp.AnomalyCount = len(a.Anomalies)
	resp.ProgressPercent = a.ProgressPercent()
	if resp.Answers == nil {
		resp.Answers = []attempt.AnswerRecord{}
	}
	return resp, nil
}

func toAttemptResponses(attempts []*attempt.Attempt) ([]attemptResponse, error) {
	out := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		resp, err := toAttemptResponse(a)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

func (a *API) respondAttempt(c *gin.Context, status int, found *attempt.Attempt) {
	resp, err := toAttemptResponse(found)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(status, resp)
}
