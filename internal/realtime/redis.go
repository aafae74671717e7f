package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"callflex/pkg/logger"
)

type RedisBroadcaster struct {
	rdb *redis.Client
}

func NewRedisBroadcaster(rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb}
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, orgID, event string, payload any) error {
	if orgID == "" {
		return ErrInvalidChannel
	}
	msg, err := encode(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if err := b.rdb.Publish(ctx, Channel(orgID), msg).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, orgID string) (<-chan Message, func(), error) {
	if orgID == "" {
		return nil, nil, ErrInvalidChannel
	}
	ps := b.rdb.Subscribe(ctx, Channel(orgID))
	// Wait for the subscription confirmation so no publish is missed after return.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan Message, 16)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}

	go func() {
		defer close(out)
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					logger.From(ctx).Warn("realtime: dropping malformed message", "channel", m.Channel, "err", err)
					continue
				}
				select {
				case out <- msg:
				default:
					// Slow consumer; drop rather than block the pubsub reader.
				}
			}
		}
	}()
	return out, cancel, nil
}
