package repository

import (
	"context"
	"sync"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
)

// ProgressMemoryRepository keeps completions in process memory, for local mode
type ProgressMemoryRepository struct {
	mu     sync.RWMutex
	papers map[string]map[string]types.Completion
}

func NewProgressMemoryRepository() ProgressRepository {
	return &ProgressMemoryRepository{papers: make(map[string]map[string]types.Completion)}
}

func (r *ProgressMemoryRepository) SaveCompletion(ctx context.Context, key types.ProgressKey, completedAt time.Time) error {
	if err := validateKey(key); err != nil {
		return err
	}

	paperKey := key.UserId + "\x00" + key.PaperId

	r.mu.Lock()
	defer r.mu.Unlock()

	fields, ok := r.papers[paperKey]
	if !ok {
		fields = make(map[string]types.Completion)
		r.papers[paperKey] = fields
	}
	if _, exists := fields[key.Field()]; exists {
		return nil
	}

	fields[key.Field()] = types.Completion{
		StageNumber: copyStage(key.StageNumber),
		CompletedAt: completedAt.UTC(),
	}
	return nil
}

func (r *ProgressMemoryRepository) Completions(ctx context.Context, userId, paperId string) ([]types.Completion, error) {
	r.mu.RLock()
	fields := r.papers[userId+"\x00"+paperId]
	completions := make([]types.Completion, 0, len(fields))
	for _, c := range fields {
		c.StageNumber = copyStage(c.StageNumber)
		completions = append(completions, c)
	}
	r.mu.RUnlock()

	sortCompletions(completions)
	return completions, nil
}

func copyStage(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}
