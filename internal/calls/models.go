package calls

import (
	"errors"
	"time"

	"callflex/pkg/utils"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)

// Call is one phone conversation handled by an assistant.
//
// Rows are partitioned by created_at, so every lookup after creation carries
// the (ID, CreatedAt) pair; see Ref.
type Call struct {
	ID              string     `json:"id" db:"id"`
	OrganizationID  string     `json:"organization_id" db:"organization_id"`
	VAPICallID      *string    `json:"vapi_call_id" db:"vapi_call_id"`
	ProviderCallSID *string    `json:"provider_call_sid" db:"provider_call_sid"`
	PhoneNumberID   *string    `json:"phone_number_id" db:"phone_number_id"`
	AssistantID     *string    `json:"assistant_id" db:"assistant_id"`
	FromNumber      string     `json:"from_number" db:"from_number"`
	ToNumber        string     `json:"to_number" db:"to_number"`
	StartedAt       *time.Time `json:"started_at" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at" db:"ended_at"`
	DurationSeconds *int       `json:"duration_seconds" db:"duration_seconds"`
	Status          Status     `json:"status" db:"status"`
	Direction       string     `json:"direction" db:"direction"`
	EndedReason     *string    `json:"ended_reason" db:"ended_reason"`
	Summary         *string    `json:"summary" db:"summary"`
	CostCents       *int       `json:"cost_cents" db:"cost_cents"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

func (c Call) Ref() Ref { return Ref{ID: c.ID, CreatedAt: c.CreatedAt} }

// Ref addresses a call row by its partition key pair.
type Ref struct {
	ID        string
	CreatedAt time.Time
}

type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const DirectionInbound = "inbound"

// Completion is what a call-end event writes onto the call row.
type Completion struct {
	EndedAt         time.Time
	DurationSeconds int
	EndedReason     *string
	Summary         *string
	CostCents       *int
}

// Transcript is written once per call, only when the terminating event carries text.
type Transcript struct {
	ID                 string      `json:"id" db:"id"`
	CallID             string      `json:"call_id" db:"call_id"`
	CallCreatedAt      time.Time   `json:"call_created_at" db:"call_created_at"`
	OrganizationID     string      `json:"organization_id" db:"organization_id"`
	TranscriptText     *string     `json:"transcript_text" db:"transcript_text"`
	TranscriptSegments utils.JSONB `json:"transcript_segments" db:"transcript_segments"`
	Summary            *string     `json:"summary" db:"summary"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
}

type Recording struct {
	ID              string    `json:"id" db:"id"`
	CallID          string    `json:"call_id" db:"call_id"`
	CallCreatedAt   time.Time `json:"call_created_at" db:"call_created_at"`
	OrganizationID  string    `json:"organization_id" db:"organization_id"`
	StoragePath     string    `json:"storage_path" db:"storage_path"`
	DurationSeconds *int      `json:"duration_seconds" db:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

type ActionType string

const (
	ActionTransfer          ActionType = "transfer"
	ActionMessageTaken      ActionType = "message_taken"
	ActionCallbackScheduled ActionType = "callback_scheduled"
)

type ActionStatus string

const (
	ActionCompleted ActionStatus = "completed"
	ActionPending   ActionStatus = "pending"
)

// Action is an append-only record of something the assistant did during a call.
type Action struct {
	ID             string       `json:"id" db:"id"`
	CallID         string       `json:"call_id" db:"call_id"`
	CallCreatedAt  time.Time    `json:"call_created_at" db:"call_created_at"`
	OrganizationID string       `json:"organization_id" db:"organization_id"`
	ActionType     ActionType   `json:"action_type" db:"action_type"`
	ActionData     utils.JSONB  `json:"action_data" db:"action_data"`
	Status         ActionStatus `json:"status" db:"status"`
	ErrorMessage   *string      `json:"error_message" db:"error_message"`
	TriggeredAt    time.Time    `json:"triggered_at" db:"triggered_at"`
	CompletedAt    *time.Time   `json:"completed_at" db:"completed_at"`
}

// ListFilter scopes a calls listing. From is always set so the query prunes partitions.
type ListFilter struct {
	OrganizationID string
	AssistantID    string
	Status         string
	From           time.Time
	To             time.Time
	Limit          int
	Offset         int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// Normalize applies the listing defaults relative to now.
func (f ListFilter) Normalize(now time.Time) ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.From.IsZero() {
		f.From = now.AddDate(0, 0, -30)
	}
	return f
}
