// Package mongo persists definitions, attempts, results and statistics in
// MongoDB.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quiz-engine/internal/attempt"
	"quiz-engine/internal/quiz"
	"quiz-engine/internal/scoring"
)

var (
	_ attempt.Store       = (*Store)(nil)
	_ scoring.ResultStore = (*Store)(nil)
	_ scoring.StatsStore  = (*Store)(nil)
	_ quiz.Repository     = (*Store)(nil)
)

type Store struct {
	client    *mongo.Client
	quizzes   *mongo.Collection
	attempts  *mongo.Collection
	results   *mongo.Collection
	quizStats *mongo.Collection
	userStats *mongo.Collection
}

// Connect dials uri, pings the server and ensures indexes on database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := NewStore(client, client.Database(database))
	if err := store.EnsureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

func NewStore(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:    client,
		quizzes:   db.Collection("quizzes"),
		attempts:  db.Collection("attempts"),
		results:   db.Collection("results"),
		quizStats: db.Collection("quiz_stats"),
		userStats: db.Collection("user_stats"),
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	attemptIndexes := []mongo.IndexModel{
		{
			// active_key is only present on started, in_progress and paused
			// attempts, so this allows one active attempt per user and quiz.
			Keys: bson.D{{Key: "active_key", Value: 1}},
			Options: options.Index().
				SetName("one_active_attempt").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active_key": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "quiz_id", Value: 1}, {Key: "attempt_number", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "started_at", Value: 1}}},
	}
	if _, err := s.attempts.Indexes().CreateMany(ctx, attemptIndexes); err != nil {
		return fmt.Errorf("create attempt indexes: %w", err)
	}

	resultIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "attempt_id", Value: 1}},
			Options: options.Index().
				SetName("one_result_per_attempt").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"attempt_id": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "quiz_id", Value: 1}, {Key: "passed", Value: 1}}},
	}
	if _, err := s.results.Indexes().CreateMany(ctx, resultIndexes); err != nil {
		return fmt.Errorf("create result indexes: %w", err)
	}

	if _, err := s.quizzes.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: -1}}}); err != nil {
		return fmt.Errorf("create quiz indexes: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func findOptions(sort bson.D, limit int) *options.FindOptions {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

func statusFilter(statuses []attempt.Status) bson.M {
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	return bson.M{"$in": values}
}
