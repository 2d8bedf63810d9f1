package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"quiz-engine/internal/apperr"
	"quiz-engine/internal/attempt"
)

// Create inserts a new attempt. The partial unique index on active statuses
// turns a lost start race into attempt.ErrActiveAttemptExists.
func (s *Store) Create(ctx context.Context, a *attempt.Attempt) error {
	stored := a.Clone()
	stored.Version = 1
	document, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO attempts (attempt_id, user_id, quiz_id, attempt_number, status, started_at_unix, last_active_at_unix, version, document)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID,
		stored.UserID,
		stored.QuizID,
		stored.AttemptNumber,
		string(stored.Status),
		stored.StartedAt.UnixNano(),
		stored.LastActiveAt.UnixNano(),
		stored.Version,
		string(document),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return attempt.ErrActiveAttemptExists
		}
		return err
	}

	a.Version = stored.Version
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*attempt.Attempt, error) {
	var document string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM attempts WHERE attempt_id = ?`, id).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("attempt %s not found", id)
		}
		return nil, err
	}
	return decodeAttempt(document)
}

func (s *Store) FindActive(ctx context.Context, userID, quizID string) (*attempt.Attempt, error) {
	var document string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT document FROM attempts
		 WHERE user_id = ? AND quiz_id = ? AND status IN ('started', 'in_progress', 'paused')
		 LIMIT 1`,
		userID,
		quizID,
	).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decodeAttempt(document)
}

func (s *Store) ListByUserQuiz(ctx context.Context, userID, quizID string) ([]*attempt.Attempt, error) {
	return s.queryAttempts(
		ctx,
		`SELECT document FROM attempts
		 WHERE user_id = ? AND quiz_id = ?
		 ORDER BY attempt_number ASC`,
		userID,
		quizID,
	)
}

// Update writes a only if the stored version still equals a.Version.
func (s *Store) Update(ctx context.Context, a *attempt.Attempt) error {
	next := a.Clone()
	next.Version = a.Version + 1
	document, err := json.Marshal(next)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE attempts
		 SET status = ?, last_active_at_unix = ?, version = ?, document = ?
		 WHERE attempt_id = ? AND version = ?`,
		string(next.Status),
		next.LastActiveAt.UnixNano(),
		next.Version,
		string(document),
		a.ID,
		a.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return attempt.ErrActiveAttemptExists
		}
		return err
	}

	updated, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if updated == 0 {
		var found int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM attempts WHERE attempt_id = ?`, a.ID).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("attempt %s not found", a.ID)
		}
		if err != nil {
			return err
		}
		return attempt.ErrVersionConflict
	}

	a.Version = next.Version
	return nil
}

// ListByStatus pages by the (started_at_unix, attempt_id) columns so that
// undecodable documents can still be stepped over.
func (s *Store) ListByStatus(ctx context.Context, statuses []attempt.Status, after *attempt.Cursor, limit int) (attempt.Page, error) {
	if len(statuses) == 0 {
		return attempt.Page{}, nil
	}

	query := `SELECT attempt_id, started_at_unix, document FROM attempts
		 WHERE status IN (` + placeholders(len(statuses)) + `)`
	args := statusArgs(statuses)
	if after != nil {
		startedAt := after.StartedAt.UnixNano()
		query += ` AND (started_at_unix > ? OR (started_at_unix = ? AND attempt_id > ?))`
		args = append(args, startedAt, startedAt, after.ID)
	}
	query += ` ORDER BY started_at_unix ASC, attempt_id ASC LIMIT ?`
	if limit > 0 {
		// One extra row tells whether another page follows.
		args = append(args, limit+1)
	} else {
		args = append(args, -1)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return attempt.Page{}, err
	}
	defer rows.Close()

	page := attempt.Page{Attempts: make([]*attempt.Attempt, 0)}
	var (
		read int
		last attempt.Cursor
	)
	for rows.Next() {
		if limit > 0 && read == limit {
			page.Next = &last
			break
		}
		var (
			id            string
			startedAtUnix int64
			document      string
		)
		if err := rows.Scan(&id, &startedAtUnix, &document); err != nil {
			return attempt.Page{}, err
		}
		read++
		last = attempt.Cursor{StartedAt: time.Unix(0, startedAtUnix).UTC(), ID: id}

		a, err := decodeAttempt(document)
		if err != nil {
			page.Malformed++
			continue
		}
		page.Attempts = append(page.Attempts, a)
	}
	return page, rows.Err()
}

func (s *Store) DeleteStale(ctx context.Context, statuses []attempt.Status, lastActiveBefore time.Time) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	args := statusArgs(statuses)
	args = append(args, lastActiveBefore.UnixNano())
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM attempts
		 WHERE status IN (`+placeholders(len(statuses))+`)
		 AND last_active_at_unix < ?`,
		args...,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) queryAttempts(ctx context.Context, query string, args ...any) ([]*attempt.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]*attempt.Attempt, 0)
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, err
		}
		a, err := decodeAttempt(document)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}

func decodeAttempt(document string) (*attempt.Attempt, error) {
	var a attempt.Attempt
	if err := json.Unmarshal([]byte(document), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func statusArgs(statuses []attempt.Status) []any {
	args := make([]any, 0, len(statuses)+1)
	for _, status := range statuses {
		args = append(args, string(status))
	}
	return args
}
