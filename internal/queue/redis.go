package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"trackio.app/trackio/internal/model"
)

// RedisQueue keeps the work queue in a Redis list. RPUSH preserves arrival
// order, LRANGE reads a head prefix, and LTRIM drops exactly that prefix so
// pushes arriving mid-run survive.
type RedisQueue struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

func NewRedisQueue(client *redis.Client, key string, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{
		client: client,
		key:    key,
		logger: logger,
	}
}

func (q *RedisQueue) Push(ctx context.Context, msg model.QueueMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling queue message: %w", err)
	}

	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("pushing to queue: %w", err)
	}

	q.logger.DebugContext(ctx, "message enqueued", "key", q.key, "heartbeats", len(msg.Batch))
	return nil
}

func (q *RedisQueue) Peek(ctx context.Context, offset, count int64) ([]Item, error) {
	if count <= 0 {
		return nil, nil
	}

	raw, err := q.client.LRange(ctx, q.key, offset, offset+count-1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("peeking queue: %w", err)
	}

	items := make([]Item, 0, len(raw))
	for _, s := range raw {
		items = append(items, RawItem(s))
	}
	return items, nil
}

func (q *RedisQueue) Trim(ctx context.Context, count int64) error {
	if count <= 0 {
		return nil
	}
	if err := q.client.LTrim(ctx, q.key, count, -1).Err(); err != nil {
		return fmt.Errorf("trimming queue: %w", err)
	}
	return nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

// RedisLocker implements the distributed lock on SET NX EX. The TTL bounds
// worst-case staleness if a holder crashes mid-run; Release is best-effort.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, time.Now().UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lock: %w", err)
	}
	return ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}
