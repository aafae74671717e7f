package audit

import (
	"time"

	"callflex/pkg/utils"
)

// Event is one row of the billing_events log.
//
// Invariants:
// - Events are never updated or deleted.
// - organization_id is required.
// - Written from the Stripe webhook path only; nothing in the service reads them back.
type Event struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Type           EventType `json:"event_type" db:"event_type"`

	StripeEventID   string  `json:"stripe_event_id,omitempty" db:"stripe_event_id"`
	StripeInvoiceID *string `json:"stripe_invoice_id,omitempty" db:"stripe_invoice_id"`

	AmountCents *int64  `json:"amount_cents,omitempty" db:"amount_cents"`
	Currency    *string `json:"currency,omitempty" db:"currency"`

	Description string      `json:"description,omitempty" db:"description"`
	Metadata    utils.JSONB `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventSubscriptionCreated  EventType = "subscription_created"
	EventSubscriptionUpdated  EventType = "subscription_updated"
	EventSubscriptionCanceled EventType = "subscription_canceled"
	EventInvoicePaid          EventType = "invoice_paid"
	EventInvoicePaymentFailed EventType = "invoice_payment_failed"
)
