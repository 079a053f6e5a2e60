package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
)

// ProgressPostgresRepository stores completions in the progress_completion table
type ProgressPostgresRepository struct {
	db *sql.DB
}

func NewProgressPostgresRepository(db *sql.DB) ProgressRepository {
	return &ProgressPostgresRepository{db: db}
}

func (r *ProgressPostgresRepository) SaveCompletion(ctx context.Context, key types.ProgressKey, completedAt time.Time) error {
	if err := validateKey(key); err != nil {
		return err
	}

	var stage sql.NullInt64
	if key.StageNumber != nil {
		stage = sql.NullInt64{Int64: int64(*key.StageNumber), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO progress_completion (user_id, paper_id, stage_number, completed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, key.UserId, key.PaperId, stage, completedAt.UTC())
	if err != nil {
		return fmt.Errorf("save completion: %w", err)
	}
	return nil
}

func (r *ProgressPostgresRepository) Completions(ctx context.Context, userId, paperId string) ([]types.Completion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT stage_number, completed_at
		FROM progress_completion
		WHERE user_id = $1 AND paper_id = $2
	`, userId, paperId)
	if err != nil {
		return nil, fmt.Errorf("load completions: %w", err)
	}
	defer rows.Close()

	completions := []types.Completion{}
	for rows.Next() {
		var (
			stage sql.NullInt64
			c     types.Completion
		)
		if err := rows.Scan(&stage, &c.CompletedAt); err != nil {
			return nil, err
		}
		if stage.Valid {
			n := int(stage.Int64)
			c.StageNumber = &n
		}
		completions = append(completions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortCompletions(completions)
	return completions, nil
}
