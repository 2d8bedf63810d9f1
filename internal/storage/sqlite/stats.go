package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"quiz-engine/internal/scoring"
)

func (s *Store) GetQuizStats(ctx context.Context, quizID string) (*scoring.QuizStats, error) {
	var stats scoring.QuizStats
	found, err := s.getDocument(ctx, `SELECT document FROM quiz_stats WHERE quiz_id = ?`, quizID, &stats)
	if err != nil || !found {
		return nil, err
	}
	return &stats, nil
}

func (s *Store) SaveQuizStats(ctx context.Context, stats scoring.QuizStats) error {
	return s.putDocument(ctx,
		`INSERT INTO quiz_stats (quiz_id, document) VALUES (?, ?)
		 ON CONFLICT(quiz_id) DO UPDATE SET document = excluded.document`,
		stats.QuizID, stats)
}

func (s *Store) GetUserStats(ctx context.Context, userID string) (*scoring.UserStats, error) {
	var stats scoring.UserStats
	found, err := s.getDocument(ctx, `SELECT document FROM user_stats WHERE user_id = ?`, userID, &stats)
	if err != nil || !found {
		return nil, err
	}
	return &stats, nil
}

func (s *Store) SaveUserStats(ctx context.Context, stats scoring.UserStats) error {
	return s.putDocument(ctx,
		`INSERT INTO user_stats (user_id, document) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET document = excluded.document`,
		stats.UserID, stats)
}

func (s *Store) getDocument(ctx context.Context, query, key string, out any) (bool, error) {
	var document string
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&document); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, json.Unmarshal([]byte(document), out)
}

func (s *Store) putDocument(ctx context.Context, query, key string, value any) error {
	document, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, key, string(document))
	return err
}
