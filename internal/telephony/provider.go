package telephony

import (
	"context"
	"errors"
)

var (
	ErrNumberUnavailable = errors.New("telephony: number unavailable")
	ErrInvalidRequest    = errors.New("telephony: invalid request")
)

// NumberProvider searches, buys and releases phone numbers at a carrier.
//
// Rules:
// - No carrier SDK calls outside provider adapters.
// - Requests are organization-scoped; the adapter never decides ownership.
type NumberProvider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	Search(ctx context.Context, req SearchRequest) ([]AvailableNumber, error)
	Provision(ctx context.Context, req ProvisionRequest) (ProvisionResult, error)
	Release(ctx context.Context, req ReleaseRequest) error
}

type SearchRequest struct {
	CountryISO2 string `json:"country"`
	AreaCode    string `json:"areaCode"`
	Contains    string `json:"contains"`
	Limit       int    `json:"limit"`
}

type AvailableNumber struct {
	PhoneNumber  string       `json:"phoneNumber"`
	FriendlyName string       `json:"friendlyName"`
	Locality     string       `json:"locality,omitempty"`
	Region       string       `json:"region,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
}

type Capabilities struct {
	Voice bool `json:"voice"`
	SMS   bool `json:"sms"`
}

type ProvisionRequest struct {
	OrganizationID string
	// PhoneNumber is E.164 and normally comes from a previous Search.
	PhoneNumber string
}

type ProvisionResult struct {
	PhoneNumber      string `json:"phone_number"`
	ProviderNumberID string `json:"provider_number_id"`
}

type ReleaseRequest struct {
	OrganizationID   string
	PhoneNumber      string
	ProviderNumberID string
}
