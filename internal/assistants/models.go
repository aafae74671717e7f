package assistants

import (
	"errors"
	"time"

	"callflex/pkg/utils"
)

var (
	ErrNotFound        = errors.New("assistants: not found")
	ErrInvalidArgument = errors.New("assistants: invalid argument")
)

type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
)

func (s Status) Valid() bool { return s == StatusDraft || s == StatusActive }

const DefaultVoiceProvider = "11labs"

// Assistant is a tenant's configured voice agent. VAPISyncedAt is nil whenever
// the prompt has changed since the last push to the voice engine.
type Assistant struct {
	ID               string      `json:"id" db:"id"`
	OrganizationID   string      `json:"organization_id" db:"organization_id"`
	TemplateID       *string     `json:"template_id" db:"template_id"`
	Name             string      `json:"name" db:"name"`
	Description      *string     `json:"description" db:"description"`
	SystemPrompt     string      `json:"system_prompt" db:"system_prompt"`
	FirstMessage     *string     `json:"first_message" db:"first_message"`
	VariableValues   utils.JSONB `json:"variable_values" db:"variable_values"`
	VoiceProvider    string      `json:"voice_provider" db:"voice_provider"`
	VoiceID          *string     `json:"voice_id" db:"voice_id"`
	Status           Status      `json:"status" db:"status"`
	EnabledFunctions utils.JSONB `json:"enabled_functions" db:"enabled_functions"`
	FunctionConfig   utils.JSONB `json:"function_config" db:"function_config"`
	VAPIAssistantID  *string     `json:"vapi_assistant_id" db:"vapi_assistant_id"`
	VAPISyncedAt     *time.Time  `json:"vapi_synced_at" db:"vapi_synced_at"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// CreateInput is the create request. When TemplateID is set the template's
// prompt and first message replace SystemPrompt and FirstMessage.
type CreateInput struct {
	OrganizationID string         `json:"organizationId" binding:"required,uuid"`
	TemplateID     *string        `json:"templateId" binding:"omitempty,uuid"`
	Name           string         `json:"name" binding:"required,min=1"`
	Description    *string        `json:"description"`
	VariableValues map[string]any `json:"variableValues"`
	SystemPrompt   string         `json:"systemPrompt"`
	FirstMessage   string         `json:"firstMessage"`
	VoiceProvider  string         `json:"voiceProvider"`
	VoiceID        *string        `json:"voiceId"`
}

// Patch holds the fields a member may change. Nil fields are left alone.
type Patch struct {
	Name             *string     `json:"name"`
	Description      *string     `json:"description"`
	SystemPrompt     *string     `json:"system_prompt"`
	FirstMessage     *string     `json:"first_message"`
	VoiceProvider    *string     `json:"voice_provider"`
	VoiceID          *string     `json:"voice_id"`
	VariableValues   utils.JSONB `json:"variable_values"`
	Status           *Status     `json:"status"`
	EnabledFunctions utils.JSONB `json:"enabled_functions"`
	FunctionConfig   utils.JSONB `json:"function_config"`

	// ClearSync resets vapi_synced_at; set by the service, never decoded.
	ClearSync bool `json:"-"`
}

func (p Patch) promptChanged() bool { return p.SystemPrompt != nil || p.FirstMessage != nil }
