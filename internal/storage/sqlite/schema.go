package sqlite

import (
	"context"
)

func (s *Store) initSchema(ctx context.Context) error {
	// Attempts and results are stored as JSON documents; only the columns the
	// queries filter or sort on are broken out.
	statements := []string{
		`CREATE TABLE IF NOT EXISTS quizzes (
			quiz_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			question_count INTEGER NOT NULL,
			created_at_unix INTEGER NOT NULL,
			settings_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS quiz_questions (
			quiz_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			question_id TEXT NOT NULL,
			prompt TEXT NOT NULL,
			options_json TEXT NOT NULL,
			correct_index INTEGER NOT NULL,
			points REAL NOT NULL,
			difficulty TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (quiz_id, position)
		);`,
		`CREATE TABLE IF NOT EXISTS attempts (
			attempt_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			quiz_id TEXT NOT NULL,
			attempt_number INTEGER NOT NULL,
			status TEXT NOT NULL,
			started_at_unix INTEGER NOT NULL,
			last_active_at_unix INTEGER NOT NULL,
			version INTEGER NOT NULL,
			document TEXT NOT NULL
		);`,
		// At most one active attempt per (user, quiz), across processes.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_one_active
			ON attempts(user_id, quiz_id)
			WHERE status IN ('started', 'in_progress', 'paused');`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_user_quiz ON attempts(user_id, quiz_id, attempt_number);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_status_started ON attempts(status, started_at_unix);`,
		`CREATE TABLE IF NOT EXISTS results (
			result_id TEXT PRIMARY KEY,
			attempt_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			quiz_id TEXT NOT NULL,
			attempt_number INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			end_at_unix INTEGER NOT NULL,
			created_at_unix INTEGER NOT NULL,
			document TEXT NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_results_attempt ON results(attempt_id) WHERE attempt_id <> '';`,
		`CREATE INDEX IF NOT EXISTS idx_results_user_created ON results(user_id, created_at_unix DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_results_quiz ON results(quiz_id, passed);`,
		`CREATE TABLE IF NOT EXISTS quiz_stats (
			quiz_id TEXT PRIMARY KEY,
			document TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS user_stats (
			user_id TEXT PRIMARY KEY,
			document TEXT NOT NULL
		);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
