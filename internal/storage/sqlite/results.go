package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"quiz-engine/internal/apperr"
	"quiz-engine/internal/scoring"
)

func (s *Store) CreateResult(ctx context.Context, result *scoring.Result) error {
	document, err := json.Marshal(result)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO results (result_id, attempt_id, user_id, quiz_id, attempt_number, passed, end_at_unix, created_at_unix, document)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID,
		result.AttemptID,
		result.UserID,
		result.QuizID,
		result.AttemptNumber,
		result.Passed,
		result.EndTime.UnixNano(),
		result.CreatedAt.UnixNano(),
		string(document),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return scoring.ErrDuplicateResult
		}
		return err
	}
	return nil
}

func (s *Store) GetResult(ctx context.Context, id string) (*scoring.Result, error) {
	var document string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM results WHERE result_id = ?`, id).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("result %s not found", id)
		}
		return nil, err
	}
	return decodeResult(document)
}

func (s *Store) FindResultByAttempt(ctx context.Context, attemptID string) (*scoring.Result, error) {
	var document string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT document FROM results WHERE attempt_id = ? AND attempt_id <> '' LIMIT 1`,
		attemptID,
	).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decodeResult(document)
}

func (s *Store) ListResultsByUser(ctx context.Context, userID string, limit int) ([]*scoring.Result, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryResults(
		ctx,
		`SELECT document FROM results
		 WHERE user_id = ?
		 ORDER BY created_at_unix DESC
		 LIMIT ?`,
		userID,
		limit,
	)
}

func (s *Store) ListResultsByUserQuiz(ctx context.Context, userID, quizID string) ([]*scoring.Result, error) {
	return s.queryResults(
		ctx,
		`SELECT document FROM results
		 WHERE user_id = ? AND quiz_id = ?
		 ORDER BY attempt_number ASC`,
		userID,
		quizID,
	)
}

func (s *Store) CountResultsByQuiz(ctx context.Context, quizID string) (int, int, error) {
	var total, passed int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(*), COALESCE(SUM(passed), 0) FROM results WHERE quiz_id = ?`,
		quizID,
	).Scan(&total, &passed)
	return total, passed, err
}

// AppendFeedback rewrites the result document with one more feedback entry.
func (s *Store) AppendFeedback(ctx context.Context, resultID string, feedback scoring.ReviewerFeedback) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var document string
	err = tx.QueryRowContext(ctx, `SELECT document FROM results WHERE result_id = ?`, resultID).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("result %s not found", resultID)
		}
		return err
	}

	result, err := decodeResult(document)
	if err != nil {
		return err
	}
	result.Feedback = append(result.Feedback, feedback)

	updated, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE results SET document = ? WHERE result_id = ?`, string(updated), resultID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) queryResults(ctx context.Context, query string, args ...any) ([]*scoring.Result, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*scoring.Result, 0)
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, err
		}
		result, err := decodeResult(document)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

func decodeResult(document string) (*scoring.Result, error) {
	var result scoring.Result
	if err := json.Unmarshal([]byte(document), &result); err != nil {
		return nil, err
	}
	return &result, nil
}
