package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quiz-engine/internal/quiz"
)

func (s *Store) SaveDefinition(ctx context.Context, definition quiz.Definition) error {
	if definition.QuizID == "" {
		return errors.New("quiz id is required")
	}
	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = time.Now().UTC()
	}
	_, err := s.quizzes.ReplaceOne(ctx, bson.M{"_id": definition.QuizID}, definition, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) GetDefinition(ctx context.Context, quizID string) (quiz.Definition, error) {
	var definition quiz.Definition
	err := s.quizzes.FindOne(ctx, bson.M{"_id": quizID}).Decode(&definition)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return quiz.Definition{}, quiz.NotFound(quizID)
		}
		return quiz.Definition{}, err
	}
	return definition, nil
}

func (s *Store) ListDefinitions(ctx context.Context, limit int) ([]quiz.Metadata, error) {
	cur, err := s.quizzes.Find(ctx, bson.M{}, findOptions(bson.D{{Key: "created_at", Value: -1}}, limit))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	items := make([]quiz.Metadata, 0)
	for cur.Next(ctx) {
		var definition quiz.Definition
		if err := cur.Decode(&definition); err != nil {
			return nil, err
		}
		items = append(items, definition.Metadata())
	}
	return items, cur.Err()
}
