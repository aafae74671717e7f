// Package queue holds deferred work that could not be applied when it arrived.
//
// Two backends share one contract:
//   - memory: channel-backed, lost on restart; tests and local runs.
//   - redis: list (pending) + hash (dead letters); survives restarts and is
//     shared by every API replica and the operator CLI.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrQueueClosed  = errors.New("queue is closed")
	ErrItemNotFound = errors.New("item not found")
)

// Queue is a FIFO of JSON items.
type Queue interface {
	Enqueue(ctx context.Context, item any) error

	// DequeueWithTimeout waits up to timeout for the first item, then takes
	// whatever else is immediately available, up to maxItems.
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]json.RawMessage, error)

	Length(ctx context.Context) (int, error)
	Close() error
}

// DeadLetterQueue parks items that exhausted their retries until an operator acts.
type DeadLetterQueue interface {
	Add(ctx context.Context, item json.RawMessage, cause error, retries int) (DeadLetterItem, error)
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)
	Get(ctx context.Context, id string) (DeadLetterItem, error)
	Remove(ctx context.Context, id string) error
}

type DeadLetterItem struct {
	ID        string          `json:"id"`
	Item      json.RawMessage `json:"item"`
	Error     string          `json:"error"`
	Timestamp time.Time       `json:"timestamp"`
	Retries   int             `json:"retries"`
}

type Config struct {
	Name         string
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		BatchSize:    20,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   5,
		RetryBackoff: 2 * time.Second,
	}
}

func marshal(item any) (json.RawMessage, error) {
	if raw, ok := item.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(item)
}
