package backend_postgres_migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upProgress, downProgress)
}

func upProgress(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE progress_completion (
			id SERIAL PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			paper_id VARCHAR(255) NOT NULL,
			stage_number INT,
			completed_at TIMESTAMP WITH TIME ZONE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		)`,

		// A NULL stage_number is the whole-paper completion
		`CREATE UNIQUE INDEX idx_progress_completion_unique
			ON progress_completion(user_id, paper_id, COALESCE(stage_number, -1))`,
		`CREATE INDEX idx_progress_completion_paper ON progress_completion(user_id, paper_id)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func downProgress(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS progress_completion`)
	return err
}
