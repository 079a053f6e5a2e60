package common

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const defaultStreamMaxLen = 10000

// EventEmitter publishes a flat event record
type EventEmitter interface {
	Emit(ctx context.Context, data map[string]any) error
}

// EventStream appends events to a capped Redis Stream. Consumers read it
// with XREAD or their own consumer group.
type EventStream struct {
	rdb    *RedisClient
	stream string
	maxLen int64
}

func NewEventStream(rdb *RedisClient, stream string) *EventStream {
	return &EventStream{
		rdb:    rdb,
		stream: stream,
		maxLen: defaultStreamMaxLen,
	}
}

// Emit appends an event, trimming the stream to roughly maxLen entries
func (s *EventStream) Emit(ctx context.Context, data map[string]any) error {
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: data,
	}).Err()
}
