package realtime

import (
	"context"
	"encoding/json"
	"errors"
)

// Event names pushed to dashboards.
const (
	EventCallStarted      = "call_started"
	EventCallEnded        = "call_ended"
	EventTranscriptUpdate = "transcript_update"
)

var ErrInvalidChannel = errors.New("realtime: organization id required")

// Message is the wire shape on org:{id}.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Broadcaster is best-effort fan-out to a tenant's listeners. Nothing is
// persisted; messages with no subscriber are dropped.
type Broadcaster interface {
	Broadcast(ctx context.Context, orgID, event string, payload any) error
	// Subscribe returns a channel closed when ctx ends or cancel is called.
	Subscribe(ctx context.Context, orgID string) (<-chan Message, func(), error)
}

func Channel(orgID string) string { return "org:" + orgID }

func encode(event string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: event, Payload: p})
}
