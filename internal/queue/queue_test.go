package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pending struct {
	EventID string `json:"event_id"`
}

func backends(t *testing.T) map[string]struct {
	q   Queue
	dlq DeadLetterQueue
} {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return map[string]struct {
		q   Queue
		dlq DeadLetterQueue
	}{
		"memory": {NewMemoryQueue(16), NewMemoryDeadLetterQueue()},
		"redis":  {NewRedisQueue(rdb, "test"), NewRedisDeadLetterQueue(rdb, "test")},
	}
}

func TestQueue_FIFOBatch(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"evt_1", "evt_2", "evt_3"} {
				require.NoError(t, b.q.Enqueue(ctx, pending{EventID: id}))
			}
			n, err := b.q.Length(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			items, err := b.q.DequeueWithTimeout(ctx, 2, time.Second)
			require.NoError(t, err)
			require.Len(t, items, 2)

			var first pending
			require.NoError(t, json.Unmarshal(items[0], &first))
			assert.Equal(t, "evt_1", first.EventID)

			n, _ = b.q.Length(ctx)
			assert.Equal(t, 1, n)
		})
	}
}

func TestQueue_DequeueTimesOutEmpty(t *testing.T) {
	q := NewMemoryQueue(4)
	items, err := q.DequeueWithTimeout(context.Background(), 5, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestQueue_EnqueueAfterCloseFails(t *testing.T) {
	q := NewMemoryQueue(4)
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Enqueue(context.Background(), pending{}), ErrQueueClosed)
}

func TestDeadLetterQueue_AddGetListRemove(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dl, err := b.dlq.Add(ctx, json.RawMessage(`{"event_id":"evt_9"}`), errors.New("tenant unresolved"), 5)
			require.NoError(t, err)

			got, err := b.dlq.Get(ctx, dl.ID)
			require.NoError(t, err)
			assert.Equal(t, "tenant unresolved", got.Error)
			assert.Equal(t, 5, got.Retries)
			assert.JSONEq(t, `{"event_id":"evt_9"}`, string(got.Item))

			list, err := b.dlq.List(ctx, 10)
			require.NoError(t, err)
			assert.Len(t, list, 1)

			require.NoError(t, b.dlq.Remove(ctx, dl.ID))
			assert.ErrorIs(t, b.dlq.Remove(ctx, dl.ID), ErrItemNotFound)
			_, err = b.dlq.Get(ctx, dl.ID)
			assert.ErrorIs(t, err, ErrItemNotFound)
		})
	}
}
