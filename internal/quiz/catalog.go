package quiz

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"quiz-engine/internal/apperr"
)

const defaultCacheTTL = 5 * time.Minute

// Catalog is the definition provider used by the engine. Reads go through an
// in-process cache, then the optional remote cache, then the repository.
type Catalog struct {
	repo    Repository
	remote  RemoteCache
	fetcher QuestionsFetcher
	ttl     time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	mu    sync.RWMutex
	local map[string]cachedDefinition
}

type CatalogOption func(*Catalog)

func WithRemoteCache(remote RemoteCache) CatalogOption {
	return func(c *Catalog) { c.remote = remote }
}

func WithFetcher(fetcher QuestionsFetcher) CatalogOption {
	return func(c *Catalog) { c.fetcher = fetcher }
}

func WithCacheTTL(ttl time.Duration) CatalogOption {
	return func(c *Catalog) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) CatalogOption {
	return func(c *Catalog) { c.now = now }
}

func WithLogger(logger zerolog.Logger) CatalogOption {
	return func(c *Catalog) { c.logger = logger }
}

func NewCatalog(repo Repository, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		repo:   repo,
		ttl:    defaultCacheTTL,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.With().Str("component", "catalog").Logger(),
		local:  make(map[string]cachedDefinition),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Catalog) GetDefinition(ctx context.Context, quizID string) (Definition, error) {
	quizID = strings.TrimSpace(quizID)
	if quizID == "" {
		return Definition{}, NotFound(quizID)
	}

	if definition, ok := c.getCached(quizID); ok {
		return definition, nil
	}

	if c.remote != nil {
		definition, ok, err := c.remote.GetDefinition(ctx, quizID)
		if err != nil {
			c.logger.Warn().Err(err).Str("quiz_id", quizID).Msg("remote cache read failed")
		} else if ok {
			c.setCached(definition)
			return definition, nil
		}
	}

	definition, err := c.repo.GetDefinition(ctx, quizID)
	if err != nil {
		return Definition{}, err
	}

	c.setCached(definition)
	if c.remote != nil {
		if err := c.remote.SetDefinition(ctx, definition, c.ttl); err != nil {
			c.logger.Warn().Err(err).Str("quiz_id", quizID).Msg("remote cache write failed")
		}
	}
	return definition, nil
}

// SaveDefinition normalizes, validates and stores a definition, then drops any
// cached copy so the next read sees the new version.
func (c *Catalog) SaveDefinition(ctx context.Context, definition Definition) (Definition, error) {
	if strings.TrimSpace(definition.QuizID) == "" {
		definition.QuizID = generateQuizID()
	}
	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = c.now()
	}
	definition.Normalize()
	if err := definition.Validate(); err != nil {
		return Definition{}, err
	}

	if err := c.repo.SaveDefinition(ctx, definition); err != nil {
		return Definition{}, err
	}
	c.Invalidate(ctx, definition.QuizID)
	return definition, nil
}

type ImportInput struct {
	QuizID           string
	Title            string
	QuestionCount    int
	CreatedBy        string
	Reviewers        []string
	TimeLimitMinutes int
	PassingScore     int
	MaxAttempts      int
	AllowRetake      bool
	AllowPause       bool
}

// Import builds a published definition from fetched trivia questions.
func (c *Catalog) Import(ctx context.Context, input ImportInput) (Definition, error) {
	if c.fetcher == nil {
		return Definition{}, errors.New("question fetcher is not configured")
	}

	raw, err := c.fetcher(ctx, input.QuestionCount)
	if err != nil {
		return Definition{}, err
	}
	questions := BuildQuestions(raw)
	if len(questions) == 0 {
		return Definition{}, apperr.Validation("question source returned no questions")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Trivia quiz"
	}

	return c.SaveDefinition(ctx, Definition{
		QuizID:           strings.TrimSpace(input.QuizID),
		Title:            title,
		Status:           StatusPublished,
		IsActive:         true,
		Questions:        questions,
		DefaultPoints:    defaultQuestionPoints,
		TimeLimitMinutes: input.TimeLimitMinutes,
		PassingScore:     input.PassingScore,
		MaxAttempts:      input.MaxAttempts,
		AllowRetake:      input.AllowRetake,
		AllowPause:       input.AllowPause,
		Access:           AccessControl{Mode: AccessPublic, Reviewers: input.Reviewers},
		CreatedBy:        strings.TrimSpace(input.CreatedBy),
	})
}

func (c *Catalog) ListDefinitions(ctx context.Context, limit int) ([]Metadata, error) {
	return c.repo.ListDefinitions(ctx, limit)
}

func (c *Catalog) Invalidate(ctx context.Context, quizID string) {
	c.dropCached(quizID)
	if c.remote == nil {
		return
	}
	if err := c.remote.DeleteDefinition(ctx, quizID); err != nil {
		c.logger.Warn().Err(err).Str("quiz_id", quizID).Msg("remote cache invalidate failed")
	}
}

func generateQuizID() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	const length = 10

	var builder strings.Builder
	builder.Grow(len("qz_") + length)
	builder.WriteString("qz_")
	for idx := 0; idx < length; idx++ {
		builder.WriteByte(alphabet[rand.Intn(len(alphabet))])
	}
	return builder.String()
}
