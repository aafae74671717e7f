package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is a buffered-channel queue.
type MemoryQueue struct {
	items  chan json.RawMessage
	mu     sync.RWMutex
	closed bool
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{items: make(chan json.RawMessage, capacity)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, item any) error {
	raw, err := marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.items <- raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]json.RawMessage, error) {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return nil, ErrQueueClosed
	}

	items := []json.RawMessage{}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item, ok := <-q.items:
		if !ok {
			return nil, ErrQueueClosed
		}
		items = append(items, item)
	case <-timer.C:
		return items, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for len(items) < maxItems {
		select {
		case item, ok := <-q.items:
			if !ok {
				return items, nil
			}
			items = append(items, item)
		default:
			return items, nil
		}
	}
	return items, nil
}

func (q *MemoryQueue) Length(ctx context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return 0, ErrQueueClosed
	}
	return len(q.items), nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
	return nil
}

// MemoryDeadLetterQueue keeps dead letters in a map.
type MemoryDeadLetterQueue struct {
	mu    sync.Mutex
	items map[string]DeadLetterItem
}

func NewMemoryDeadLetterQueue() *MemoryDeadLetterQueue {
	return &MemoryDeadLetterQueue{items: map[string]DeadLetterItem{}}
}

func (q *MemoryDeadLetterQueue) Add(ctx context.Context, item json.RawMessage, cause error, retries int) (DeadLetterItem, error) {
	dl := DeadLetterItem{
		ID:        uuid.NewString(),
		Item:      append(json.RawMessage(nil), item...),
		Timestamp: time.Now().UTC(),
		Retries:   retries,
	}
	if cause != nil {
		dl.Error = cause.Error()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[dl.ID] = dl
	return dl, nil
}

func (q *MemoryDeadLetterQueue) List(ctx context.Context, maxItems int) ([]DeadLetterItem, error) {
	q.mu.Lock()
	out := make([]DeadLetterItem, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, it)
	}
	q.mu.Unlock()
	return limitOldestFirst(out, maxItems), nil
}

func (q *MemoryDeadLetterQueue) Get(ctx context.Context, id string) (DeadLetterItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok {
		return DeadLetterItem{}, ErrItemNotFound
	}
	return it, nil
}

func (q *MemoryDeadLetterQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.items[id]; !ok {
		return ErrItemNotFound
	}
	delete(q.items, id)
	return nil
}

func limitOldestFirst(items []DeadLetterItem, maxItems int) []DeadLetterItem {
	sort.Slice(items, func(i, j int) bool { return items[i].Timestamp.Before(items[j].Timestamp) })
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}
