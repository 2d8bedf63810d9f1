package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quiz-engine/internal/apperr"
	"quiz-engine/internal/scoring"
)

func (s *Store) CreateResult(ctx context.Context, result *scoring.Result) error {
	if _, err := s.results.InsertOne(ctx, result); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return scoring.ErrDuplicateResult
		}
		return err
	}
	return nil
}

func (s *Store) GetResult(ctx context.Context, id string) (*scoring.Result, error) {
	var result scoring.Result
	err := s.results.FindOne(ctx, bson.M{"_id": id}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("result %s not found", id)
		}
		return nil, err
	}
	return &result, nil
}

func (s *Store) FindResultByAttempt(ctx context.Context, attemptID string) (*scoring.Result, error) {
	if attemptID == "" {
		return nil, nil
	}
	var result scoring.Result
	err := s.results.FindOne(ctx, bson.M{"attempt_id": attemptID}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (s *Store) ListResultsByUser(ctx context.Context, userID string, limit int) ([]*scoring.Result, error) {
	return s.findResults(ctx, bson.M{"user_id": userID}, findOptions(bson.D{{Key: "created_at", Value: -1}}, limit))
}

func (s *Store) ListResultsByUserQuiz(ctx context.Context, userID, quizID string) ([]*scoring.Result, error) {
	return s.findResults(ctx,
		bson.M{"user_id": userID, "quiz_id": quizID},
		findOptions(bson.D{{Key: "attempt_number", Value: 1}}, 0))
}

func (s *Store) CountResultsByQuiz(ctx context.Context, quizID string) (int, int, error) {
	total, err := s.results.CountDocuments(ctx, bson.M{"quiz_id": quizID})
	if err != nil {
		return 0, 0, err
	}
	passed, err := s.results.CountDocuments(ctx, bson.M{"quiz_id": quizID, "passed": true})
	if err != nil {
		return 0, 0, err
	}
	return int(total), int(passed), nil
}

func (s *Store) AppendFeedback(ctx context.Context, resultID string, feedback scoring.ReviewerFeedback) error {
	res, err := s.results.UpdateOne(ctx, bson.M{"_id": resultID}, bson.M{"$push": bson.M{"feedback": feedback}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound("result %s not found", resultID)
	}
	return nil
}

func (s *Store) findResults(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*scoring.Result, error) {
	cur, err := s.results.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	results := make([]*scoring.Result, 0)
	for cur.Next(ctx) {
		var result scoring.Result
		if err := cur.Decode(&result); err != nil {
			return nil, err
		}
		results = append(results, &result)
	}
	return results, cur.Err()
}
