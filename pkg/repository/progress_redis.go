package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/common"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/rs/zerolog/log"
)

// ProgressRedisRepository stores one hash per (user, paper). Fields are
// "paper" or "stage:<n>" and values are RFC3339 timestamps.
type ProgressRedisRepository struct {
	rdb *common.RedisClient
}

func NewProgressRedisRepository(rdb *common.RedisClient) ProgressRepository {
	return &ProgressRedisRepository{rdb: rdb}
}

func (r *ProgressRedisRepository) SaveCompletion(ctx context.Context, key types.ProgressKey, completedAt time.Time) error {
	if err := validateKey(key); err != nil {
		return err
	}

	hashKey := common.Keys.ProgressPaper(key.UserId, key.PaperId)
	value := completedAt.UTC().Format(time.RFC3339Nano)

	// HSETNX keeps the first completion
	if err := r.rdb.HSetNX(ctx, hashKey, key.Field(), value).Err(); err != nil {
		return fmt.Errorf("save completion: %w", err)
	}
	return nil
}

func (r *ProgressRedisRepository) Completions(ctx context.Context, userId, paperId string) ([]types.Completion, error) {
	fields, err := r.rdb.HGetAll(ctx, common.Keys.ProgressPaper(userId, paperId)).Result()
	if err != nil {
		return nil, fmt.Errorf("load completions: %w", err)
	}

	completions := make([]types.Completion, 0, len(fields))
	for field, value := range fields {
		c, err := parseCompletion(field, value)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userId).Str("paper_id", paperId).Str("field", field).Msg("skipping malformed completion")
			continue
		}
		completions = append(completions, c)
	}

	sortCompletions(completions)
	return completions, nil
}

func parseCompletion(field, value string) (types.Completion, error) {
	completedAt, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return types.Completion{}, err
	}

	c := types.Completion{CompletedAt: completedAt}
	if field == "paper" {
		return c, nil
	}

	raw, ok := strings.CutPrefix(field, "stage:")
	if !ok {
		return types.Completion{}, fmt.Errorf("unknown field %q", field)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return types.Completion{}, err
	}
	c.StageNumber = &n
	return c, nil
}
