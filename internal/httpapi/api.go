// Package httpapi exposes the attempt lifecycle and scoring engine over HTTP.
package httpapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quiz-engine/internal/attempt"
	"quiz-engine/internal/quiz"
	"quiz-engine/internal/scoring"
)

// userIDHeader carries the caller identity set by the upstream gateway.
const userIDHeader = "X-User-ID"

type API struct {
	attempts *attempt.Service
	results  *scoring.Engine
	quizzes  *quiz.Catalog
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewAPI(attempts *attempt.Service, results *scoring.Engine, quizzes *quiz.Catalog) *API {
	return &API{
		attempts: attempts,
		results:  results,
		quizzes:  quizzes,
		validate: validator.New(),
		logger:   log.With().Str("component", "httpapi").Logger(),
	}
}
