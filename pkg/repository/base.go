package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
)

var ErrInvalidProgressKey = errors.New("progress key requires user_id and paper_id")

// ProgressRepository records learning-progress completions. The first
// completion recorded for a key wins; later saves leave it unchanged.
type ProgressRepository interface {
	SaveCompletion(ctx context.Context, key types.ProgressKey, completedAt time.Time) error
	Completions(ctx context.Context, userId, paperId string) ([]types.Completion, error)
}

func validateKey(key types.ProgressKey) error {
	if key.UserId == "" || key.PaperId == "" {
		return ErrInvalidProgressKey
	}
	if key.StageNumber != nil && *key.StageNumber < 0 {
		return errors.New("stage_number must not be negative")
	}
	return nil
}

// sortCompletions orders stage completions by stage number, with the
// whole-paper completion last
func sortCompletions(completions []types.Completion) {
	sort.Slice(completions, func(i, j int) bool {
		a, b := completions[i].StageNumber, completions[j].StageNumber
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return *a < *b
	})
}
