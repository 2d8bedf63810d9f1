// Package rediscache shares quiz definitions between service instances.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-engine/internal/quiz"
)

const defaultPrefix = "quiz:definition:"

var _ quiz.RemoteCache = (*Cache)(nil)

type Cache struct {
	client *redis.Client
	prefix string
}

type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces keys; defaults to "quiz:definition:".
	Prefix string
}

// Connect builds a client and pings it so a bad address fails at startup.
func Connect(ctx context.Context, opts Options) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return New(client, opts.Prefix), nil
}

func New(client *redis.Client, prefix string) *Cache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) key(quizID string) string {
	return c.prefix + quizID
}

func (c *Cache) GetDefinition(ctx context.Context, quizID string) (quiz.Definition, bool, error) {
	raw, err := c.client.Get(ctx, c.key(quizID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return quiz.Definition{}, false, nil
		}
		return quiz.Definition{}, false, fmt.Errorf("get cached definition: %w", err)
	}

	var definition quiz.Definition
	if err := json.Unmarshal(raw, &definition); err != nil {
		return quiz.Definition{}, false, fmt.Errorf("decode cached definition: %w", err)
	}
	return definition, true, nil
}

func (c *Cache) SetDefinition(ctx context.Context, definition quiz.Definition, ttl time.Duration) error {
	raw, err := json.Marshal(definition)
	if err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}
	if err := c.client.Set(ctx, c.key(definition.QuizID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("set cached definition: %w", err)
	}
	return nil
}

func (c *Cache) DeleteDefinition(ctx context.Context, quizID string) error {
	if err := c.client.Del(ctx, c.key(quizID)).Err(); err != nil {
		return fmt.Errorf("delete cached definition: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}
