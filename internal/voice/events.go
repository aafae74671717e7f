package voice

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"callflex/internal/usage"
)

var ErrMalformedEvent = errors.New("voice: malformed event")

// Event is one decoded voice-engine webhook. The concrete types are
// CallStart, CallEnd, TranscriptUpdate, FunctionCall and Unknown.
type Event interface {
	Type() string
}

type CallStart struct{ Call CallPayload }
type CallEnd struct{ Call CallPayload }
type TranscriptUpdate struct {
	CallID     string
	Transcript string
}
type FunctionCall struct {
	Call       CallPayload
	Name       string
	Parameters map[string]any
}
type Unknown struct{ Kind string }

func (CallStart) Type() string        { return "call-start" }
func (CallEnd) Type() string          { return "call-end" }
func (TranscriptUpdate) Type() string { return "transcript" }
func (FunctionCall) Type() string     { return "function-call" }
func (u Unknown) Type() string        { return u.Kind }

// CallPayload is the subset of the voice engine's call object we consume.
type CallPayload struct {
	ID       string `json:"id"`
	Customer struct {
		Number string `json:"number"`
	} `json:"customer"`
	PhoneNumber struct {
		ID     string `json:"id"`
		Number string `json:"number"`
	} `json:"phoneNumber"`
	Assistant struct {
		ID string `json:"id"`
	} `json:"assistant"`
	Duration     float64         `json:"duration"`
	Cost         float64         `json:"cost"`
	EndedReason  string          `json:"endedReason"`
	Summary      string          `json:"summary"`
	Transcript   string          `json:"transcript"`
	Messages     json.RawMessage `json:"messages"`
	RecordingURL string          `json:"recordingUrl"`
}

// DurationSeconds rounds the engine's fractional duration to whole seconds.
// It is the stored value only; billing uses BillableMinutes.
func (c CallPayload) DurationSeconds() int {
	if c.Duration <= 0 {
		return 0
	}
	return int(math.Round(c.Duration))
}

// BillableMinutes is taken from the unrounded duration.
func (c CallPayload) BillableMinutes() int {
	return usage.BillableMinutes(c.Duration)
}

// CostCents converts the engine's dollar cost to cents.
func (c CallPayload) CostCents() int {
	return int(math.Round(c.Cost * 100))
}

type envelope struct {
	Type         string          `json:"type"`
	Call         CallPayload     `json:"call"`
	Transcript   string          `json:"transcript"`
	FunctionCall *struct {
		Name       string         `json:"name"`
		Parameters map[string]any `json:"parameters"`
	} `json:"functionCall"`
	Message json.RawMessage `json:"message"`
}

// Decode parses a webhook body. Bodies wrapped as {"message": {...}} are unwrapped.
func Decode(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	if env.Type == "" && len(env.Message) > 0 && bytes.HasPrefix(bytes.TrimSpace(env.Message), []byte("{")) {
		return Decode(env.Message)
	}

	switch strings.TrimSpace(env.Type) {
	case "call-start":
		if env.Call.ID == "" {
			return nil, errors.Join(ErrMalformedEvent, errors.New("call.id missing"))
		}
		return CallStart{Call: env.Call}, nil
	case "call-end":
		if env.Call.ID == "" {
			return nil, errors.Join(ErrMalformedEvent, errors.New("call.id missing"))
		}
		return CallEnd{Call: env.Call}, nil
	case "transcript":
		return TranscriptUpdate{CallID: env.Call.ID, Transcript: env.Transcript}, nil
	case "function-call":
		if env.FunctionCall == nil || env.FunctionCall.Name == "" {
			return nil, errors.Join(ErrMalformedEvent, errors.New("functionCall.name missing"))
		}
		params := env.FunctionCall.Parameters
		if params == nil {
			params = map[string]any{}
		}
		return FunctionCall{Call: env.Call, Name: env.FunctionCall.Name, Parameters: params}, nil
	case "":
		return nil, errors.Join(ErrMalformedEvent, errors.New("type missing"))
	default:
		return Unknown{Kind: env.Type}, nil
	}
}
