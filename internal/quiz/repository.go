package quiz

import (
	"context"
	"time"

	"quiz-engine/internal/apperr"
	"quiz-engine/internal/opentdb"
)

// Provider is the read side the attempt and scoring packages depend on.
type Provider interface {
	GetDefinition(ctx context.Context, quizID string) (Definition, error)
}

type Repository interface {
	Provider
	SaveDefinition(ctx context.Context, definition Definition) error
	ListDefinitions(ctx context.Context, limit int) ([]Metadata, error)
}

// RemoteCache is a shared second-level cache in front of the repository.
// A miss is reported as ok=false with a nil error.
type RemoteCache interface {
	GetDefinition(ctx context.Context, quizID string) (Definition, bool, error)
	SetDefinition(ctx context.Context, definition Definition, ttl time.Duration) error
	DeleteDefinition(ctx context.Context, quizID string) error
}

type QuestionsFetcher func(ctx context.Context, amount int) ([]opentdb.RawQuestion, error)

func NotFound(quizID string) error {
	return apperr.NotFound("quiz %q not found", quizID)
}
