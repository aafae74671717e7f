package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is append-only. There is no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service stamps and validates billing events before they are stored.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.OrganizationID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Invoice records an invoice outcome with its amount.
func (s *Service) Invoice(ctx context.Context, orgID string, t EventType, stripeEventID, invoiceID string, amountCents int64, currency, description string) error {
	return s.Append(ctx, Event{
		OrganizationID:  orgID,
		Type:            t,
		StripeEventID:   stripeEventID,
		StripeInvoiceID: &invoiceID,
		AmountCents:     &amountCents,
		Currency:        &currency,
		Description:     description,
	})
}
