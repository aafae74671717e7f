package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue on a Redis list. The client is shared and not
// closed by the queue.
type RedisQueue struct {
	client *redis.Client
	qKey   string
}

func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	return &RedisQueue{client: client, qKey: fmt.Sprintf("queue:%s", name)}
}

func (q *RedisQueue) Enqueue(ctx context.Context, item any) error {
	data, err := marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	if err := q.client.RPush(ctx, q.qKey, []byte(data)).Err(); err != nil {
		return fmt.Errorf("failed to push to Redis: %w", err)
	}
	return nil
}

func (q *RedisQueue) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]json.RawMessage, error) {
	result, err := q.client.BLPop(ctx, timeout, q.qKey).Result()
	if errors.Is(err, redis.Nil) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}

	// result[0] is the key, result[1] the value.
	items := []json.RawMessage{json.RawMessage(result[1])}
	for len(items) < maxItems {
		v, err := q.client.LPop(ctx, q.qKey).Result()
		if err != nil {
			break
		}
		items = append(items, json.RawMessage(v))
	}
	return items, nil
}

func (q *RedisQueue) Length(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.qKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return int(n), nil
}

func (q *RedisQueue) Close() error { return nil }

// RedisDeadLetterQueue implements DeadLetterQueue on a Redis hash keyed by item id.
type RedisDeadLetterQueue struct {
	client *redis.Client
	dlKey  string
}

func NewRedisDeadLetterQueue(client *redis.Client, name string) *RedisDeadLetterQueue {
	return &RedisDeadLetterQueue{client: client, dlKey: fmt.Sprintf("dlq:%s", name)}
}

func (q *RedisDeadLetterQueue) Add(ctx context.Context, item json.RawMessage, cause error, retries int) (DeadLetterItem, error) {
	dl := DeadLetterItem{
		ID:        uuid.NewString(),
		Item:      item,
		Timestamp: time.Now().UTC(),
		Retries:   retries,
	}
	if cause != nil {
		dl.Error = cause.Error()
	}
	data, err := json.Marshal(dl)
	if err != nil {
		return DeadLetterItem{}, fmt.Errorf("failed to marshal dead letter item: %w", err)
	}
	if err := q.client.HSet(ctx, q.dlKey, dl.ID, data).Err(); err != nil {
		return DeadLetterItem{}, fmt.Errorf("failed to add to dead letter queue: %w", err)
	}
	return dl, nil
}

func (q *RedisDeadLetterQueue) List(ctx context.Context, maxItems int) ([]DeadLetterItem, error) {
	results, err := q.client.HGetAll(ctx, q.dlKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter items: %w", err)
	}
	items := make([]DeadLetterItem, 0, len(results))
	for _, data := range results {
		var dl DeadLetterItem
		if err := json.Unmarshal([]byte(data), &dl); err != nil {
			continue
		}
		items = append(items, dl)
	}
	return limitOldestFirst(items, maxItems), nil
}

func (q *RedisDeadLetterQueue) Get(ctx context.Context, id string) (DeadLetterItem, error) {
	data, err := q.client.HGet(ctx, q.dlKey, id).Result()
	if errors.Is(err, redis.Nil) {
		return DeadLetterItem{}, ErrItemNotFound
	}
	if err != nil {
		return DeadLetterItem{}, fmt.Errorf("failed to read dead letter item: %w", err)
	}
	var dl DeadLetterItem
	if err := json.Unmarshal([]byte(data), &dl); err != nil {
		return DeadLetterItem{}, fmt.Errorf("malformed dead letter item %s: %w", id, err)
	}
	return dl, nil
}

func (q *RedisDeadLetterQueue) Remove(ctx context.Context, id string) error {
	n, err := q.client.HDel(ctx, q.dlKey, id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove from dead letter queue: %w", err)
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}
