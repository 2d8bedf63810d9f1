package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quiz-engine/internal/scoring"
)

func (s *Store) GetQuizStats(ctx context.Context, quizID string) (*scoring.QuizStats, error) {
	var stats scoring.QuizStats
	if err := s.quizStats.FindOne(ctx, bson.M{"_id": quizID}).Decode(&stats); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &stats, nil
}

func (s *Store) SaveQuizStats(ctx context.Context, stats scoring.QuizStats) error {
	_, err := s.quizStats.ReplaceOne(ctx, bson.M{"_id": stats.QuizID}, stats, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) GetUserStats(ctx context.Context, userID string) (*scoring.UserStats, error) {
	var stats scoring.UserStats
	if err := s.userStats.FindOne(ctx, bson.M{"_id": userID}).Decode(&stats); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &stats, nil
}

func (s *Store) SaveUserStats(ctx context.Context, stats scoring.UserStats) error {
	_, err := s.userStats.ReplaceOne(ctx, bson.M{"_id": stats.UserID}, stats, options.Replace().SetUpsert(true))
	return err
}
