package phonenumbers

import (
	"errors"
	"time"

	"callflex/pkg/utils"
)

var (
	ErrNotFound        = errors.New("phonenumbers: not found")
	ErrInvalidArgument = errors.New("phonenumbers: invalid argument")
	ErrLimitReached    = errors.New("phonenumbers: plan limit reached")
)

// DefaultMaxNumbers applies when the tenant has no plan or the plan sets no limit.
const DefaultMaxNumbers = 1

const StatusActive = "active"

type PhoneNumber struct {
	ID             string      `json:"id" db:"id"`
	OrganizationID string      `json:"organization_id" db:"organization_id"`
	PhoneNumber    string      `json:"phone_number" db:"phone_number"`
	FriendlyName   *string     `json:"friendly_name" db:"friendly_name"`
	Country        string      `json:"country" db:"country"`
	Region         *string     `json:"region" db:"region"`
	Locality       *string     `json:"locality" db:"locality"`
	Provider       string      `json:"provider" db:"provider"`
	ProviderSID    *string     `json:"provider_sid" db:"provider_sid"`
	AssistantID    *string     `json:"assistant_id" db:"assistant_id"`
	RoutingRules   utils.JSONB `json:"routing_rules" db:"routing_rules"`
	Status         string      `json:"status" db:"status"`
	Capabilities   utils.JSONB `json:"capabilities" db:"capabilities"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

type ProvisionInput struct {
	OrganizationID string  `json:"organizationId" binding:"required,uuid"`
	PhoneNumber    string  `json:"phoneNumber" binding:"required,e164"`
	FriendlyName   *string `json:"friendlyName"`
}

type SearchInput struct {
	OrganizationID string `json:"organizationId" binding:"required,uuid"`
	AreaCode       string `json:"areaCode" binding:"omitempty,numeric,len=3"`
	Country        string `json:"country" binding:"omitempty,iso3166_1_alpha2"`
	Contains       string `json:"contains" binding:"omitempty,numeric"`
	Limit          int    `json:"limit" binding:"omitempty,min=1,max=20"`
}

// Patch holds the fields a member may change. Nil fields are left alone and
// an empty AssistantID unassigns the number.
type Patch struct {
	FriendlyName *string     `json:"friendly_name"`
	AssistantID  *string     `json:"assistant_id"`
	RoutingRules utils.JSONB `json:"routing_rules"`
}
