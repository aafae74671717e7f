package realtime

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryBroadcaster fans out in-process and records every broadcast.
type MemoryBroadcaster struct {
	mu   sync.Mutex
	subs map[string][]chan Message
	sent []Sent

	// Err, when set, is returned from Broadcast after recording.
	Err error
}

type Sent struct {
	OrgID   string
	Event   string
	Payload json.RawMessage
}

func NewMemoryBroadcaster() *MemoryBroadcaster {
	return &MemoryBroadcaster{subs: map[string][]chan Message{}}
}

func (b *MemoryBroadcaster) Broadcast(ctx context.Context, orgID, event string, payload any) error {
	if orgID == "" {
		return ErrInvalidChannel
	}
	raw, err := encode(event, payload)
	if err != nil {
		return err
	}
	var msg Message
	_ = json.Unmarshal(raw, &msg)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, Sent{OrgID: orgID, Event: event, Payload: msg.Payload})
	if b.Err != nil {
		return b.Err
	}
	for _, ch := range b.subs[orgID] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemoryBroadcaster) Subscribe(ctx context.Context, orgID string) (<-chan Message, func(), error) {
	if orgID == "" {
		return nil, nil, ErrInvalidChannel
	}
	ch := make(chan Message, 16)
	b.mu.Lock()
	b.subs[orgID] = append(b.subs[orgID], ch)
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[orgID]
			for i, c := range list {
				if c == ch {
					b.subs[orgID] = append(list[:i], list[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}

func (b *MemoryBroadcaster) Sent() []Sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Sent(nil), b.sent...)
}
