package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
)

var ErrMalformedEvent = errors.New("billing: malformed event")

// Event is one decoded Stripe webhook delivery.
type Event interface {
	EventID() string
	EventType() string
}

type Envelope struct {
	ID   string
	Type string
}

func (e Envelope) EventID() string   { return e.ID }
func (e Envelope) EventType() string { return e.Type }

// Subscription is the part of a Stripe subscription reconciliation reads.
type Subscription struct {
	ID             string
	Status         stripe.SubscriptionStatus
	OrganizationID string
	CustomerID     string
	PriceID        string
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

type Invoice struct {
	ID             string
	SubscriptionID string
	CustomerID     string
	BillingReason  stripe.InvoiceBillingReason
	AmountPaid     int64
	AmountDue      int64
	Currency       string
	// LinePeriodStart is the start of the subscription period the invoice bills for.
	LinePeriodStart time.Time
}

type CheckoutCompleted struct {
	Envelope
	SessionID      string
	OrganizationID string
	CustomerID     string
	SubscriptionID string
}

// SubscriptionChanged covers customer.subscription.created and .updated.
type SubscriptionChanged struct {
	Envelope
	Created      bool
	Subscription Subscription
}

type SubscriptionDeleted struct {
	Envelope
	Subscription Subscription
}

type InvoicePaid struct {
	Envelope
	Invoice Invoice
}

type InvoicePaymentFailed struct {
	Envelope
	Invoice Invoice
}

// Unhandled is acknowledged and ignored.
type Unhandled struct {
	Envelope
}

// Decode parses an already verified webhook body.
func Decode(body []byte) (Event, error) {
	var se stripe.Event
	if err := json.Unmarshal(body, &se); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if se.ID == "" || se.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}
	env := Envelope{ID: se.ID, Type: string(se.Type)}

	var raw json.RawMessage
	if se.Data != nil {
		raw = se.Data.Raw
	}

	switch se.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var s stripe.CheckoutSession
		if err := unmarshalObject(raw, &s); err != nil {
			return nil, err
		}
		ev := CheckoutCompleted{Envelope: env, SessionID: s.ID, OrganizationID: s.Metadata[metadataOrgKey]}
		if s.Customer != nil {
			ev.CustomerID = s.Customer.ID
		}
		if s.Subscription != nil {
			ev.SubscriptionID = s.Subscription.ID
		}
		return ev, nil

	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		var s stripe.Subscription
		if err := unmarshalObject(raw, &s); err != nil {
			return nil, err
		}
		return SubscriptionChanged{
			Envelope:     env,
			Created:      se.Type == stripe.EventTypeCustomerSubscriptionCreated,
			Subscription: subscriptionFrom(&s),
		}, nil

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var s stripe.Subscription
		if err := unmarshalObject(raw, &s); err != nil {
			return nil, err
		}
		return SubscriptionDeleted{Envelope: env, Subscription: subscriptionFrom(&s)}, nil

	case stripe.EventTypeInvoicePaid:
		var inv stripe.Invoice
		if err := unmarshalObject(raw, &inv); err != nil {
			return nil, err
		}
		return InvoicePaid{Envelope: env, Invoice: invoiceFrom(&inv)}, nil

	case stripe.EventTypeInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := unmarshalObject(raw, &inv); err != nil {
			return nil, err
		}
		return InvoicePaymentFailed{Envelope: env, Invoice: invoiceFrom(&inv)}, nil

	default:
		return Unhandled{Envelope: env}, nil
	}
}

const metadataOrgKey = "organizationId"

func unmarshalObject(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: missing data.object", ErrMalformedEvent)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

func subscriptionFrom(s *stripe.Subscription) Subscription {
	out := Subscription{
		ID:             s.ID,
		Status:         s.Status,
		OrganizationID: s.Metadata[metadataOrgKey],
		PeriodStart:    unix(s.CurrentPeriodStart),
		PeriodEnd:      unix(s.CurrentPeriodEnd),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		out.PriceID = s.Items.Data[0].Price.ID
	}
	return out
}

func invoiceFrom(inv *stripe.Invoice) Invoice {
	out := Invoice{
		ID:            inv.ID,
		BillingReason: inv.BillingReason,
		AmountPaid:    inv.AmountPaid,
		AmountDue:     inv.AmountDue,
		Currency:      string(inv.Currency),
	}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line == nil || line.Period == nil {
				continue
			}
			if line.Type == stripe.InvoiceLineItemTypeSubscription && !line.Proration {
				out.LinePeriodStart = unix(line.Period.Start)
				break
			}
		}
	}
	return out
}

func unix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
