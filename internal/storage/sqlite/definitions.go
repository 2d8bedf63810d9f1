package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"quiz-engine/internal/quiz"
)

// SaveDefinition replaces the quiz row and its question list in one
// transaction.
func (s *Store) SaveDefinition(ctx context.Context, definition quiz.Definition) error {
	if definition.QuizID == "" {
		return errors.New("quiz id is required")
	}
	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = time.Now().UTC()
	}

	settings := definition
	settings.Questions = nil
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM quiz_questions WHERE quiz_id = ?`, definition.QuizID); err != nil {
		return err
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO quizzes (quiz_id, title, status, question_count, created_at_unix, settings_json)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(quiz_id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			question_count = excluded.question_count,
			created_at_unix = excluded.created_at_unix,
			settings_json = excluded.settings_json`,
		definition.QuizID,
		definition.Title,
		string(definition.Status),
		definition.TotalQuestions(),
		definition.CreatedAt.UnixNano(),
		string(settingsJSON),
	)
	if err != nil {
		return err
	}

	for idx, question := range definition.Questions {
		if question.QuestionID == "" {
			question.QuestionID = quiz.MakeQuestionID(question)
		}

		optionsJSON, err := json.Marshal(question.Options)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO quiz_questions (quiz_id, position, question_id, prompt, options_json, correct_index, points, difficulty)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			definition.QuizID,
			idx,
			question.QuestionID,
			question.Question,
			string(optionsJSON),
			question.CorrectIndex,
			question.Points,
			question.Difficulty,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetDefinition(ctx context.Context, quizID string) (quiz.Definition, error) {
	var settingsJSON string
	err := s.db.QueryRowContext(
		ctx,
		`SELECT settings_json FROM quizzes WHERE quiz_id = ?`,
		quizID,
	).Scan(&settingsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return quiz.Definition{}, quiz.NotFound(quizID)
		}
		return quiz.Definition{}, err
	}

	var definition quiz.Definition
	if err := json.Unmarshal([]byte(settingsJSON), &definition); err != nil {
		return quiz.Definition{}, err
	}

	questions, err := s.questions(ctx, quizID)
	if err != nil {
		return quiz.Definition{}, err
	}
	definition.Questions = questions
	return definition, nil
}

func (s *Store) questions(ctx context.Context, quizID string) ([]quiz.Question, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT question_id, prompt, options_json, correct_index, points, difficulty
		 FROM quiz_questions
		 WHERE quiz_id = ?
		 ORDER BY position ASC`,
		quizID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := make([]quiz.Question, 0)
	for rows.Next() {
		var (
			question    quiz.Question
			optionsJSON string
		)
		if err := rows.Scan(&question.QuestionID, &question.Question, &optionsJSON, &question.CorrectIndex, &question.Points, &question.Difficulty); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(optionsJSON), &question.Options); err != nil {
			return nil, err
		}
		questions = append(questions, question)
	}

	return questions, rows.Err()
}

// ListDefinitions returns the newest quizzes first. A non-positive limit
// returns all of them.
func (s *Store) ListDefinitions(ctx context.Context, limit int) ([]quiz.Metadata, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT quiz_id, title, status, question_count, created_at_unix
		 FROM quizzes
		 ORDER BY created_at_unix DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]quiz.Metadata, 0)
	for rows.Next() {
		var (
			item          quiz.Metadata
			status        string
			createdAtUnix int64
		)
		if err := rows.Scan(&item.QuizID, &item.Title, &status, &item.QuestionCount, &createdAtUnix); err != nil {
			return nil, err
		}
		item.Status = quiz.PublishStatus(status)
		item.CreatedAt = time.Unix(0, createdAtUnix).UTC()
		items = append(items, item)
	}

	return items, rows.Err()
}
