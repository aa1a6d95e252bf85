package events

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Sequencer hands out strictly increasing event sequence numbers.
type Sequencer interface {
	Next(ctx context.Context) (uint64, error)
}

// AtomicSequencer is process-local; enough for a single API instance.
type AtomicSequencer struct {
	n atomic.Uint64
}

func (s *AtomicSequencer) Next(context.Context) (uint64, error) {
	return s.n.Add(1), nil
}

// RedisSequencer shares one counter across instances through INCR.
type RedisSequencer struct {
	client redis.Cmdable
	key    string
}

const defaultSequenceKey = "booking:events:seq"

func NewRedisSequencer(client redis.Cmdable, key string) *RedisSequencer {
	if key == "" {
		key = defaultSequenceKey
	}
	return &RedisSequencer{client: client, key: key}
}

func (s *RedisSequencer) Next(ctx context.Context) (uint64, error) {
	n, err := s.client.Incr(ctx, s.key).Uint64()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", s.key, err)
	}
	return n, nil
}
