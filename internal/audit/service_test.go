package audit

import (
	"context"
	"testing"
)

func TestService_AppendRequiresOrganizationAndType(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Event{Type: EventInvoicePaid}); err == nil {
		t.Fatalf("expected error without organization")
	}
	if err := svc.Append(context.Background(), Event{OrganizationID: "org"}); err == nil {
		t.Fatalf("expected error without type")
	}
}

func TestService_StampsIDAndTime(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{OrganizationID: "org", Type: EventSubscriptionUpdated, StripeEventID: "evt_1"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at stamped: %+v", evs[0])
	}
}

func TestService_InvoiceCarriesAmount(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Invoice(context.Background(), "org", EventInvoicePaid, "evt_2", "in_1", 4900, "usd", "Invoice paid"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	e := repo.Events()[0]
	if e.AmountCents == nil || *e.AmountCents != 4900 {
		t.Fatalf("expected amount 4900, got %+v", e.AmountCents)
	}
	if e.StripeInvoiceID == nil || *e.StripeInvoiceID != "in_1" {
		t.Fatalf("expected invoice id")
	}
}
