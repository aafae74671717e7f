package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"

	"callflex/internal/audit"
	"callflex/internal/idempotency"
	"callflex/internal/tenants"
	"callflex/pkg/logger"
	"callflex/pkg/utils"
)

// ErrTenantUnresolved means no organization could be matched to the event yet.
// The event is parked for retry instead of being dropped.
var ErrTenantUnresolved = errors.New("billing: tenant unresolved")

const StepReconcile = "reconcile"

// TenantStore is the slice of tenants.Repository reconciliation writes through.
type TenantStore interface {
	GetOrganization(ctx context.Context, id string) (tenants.Organization, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (tenants.Organization, error)
	FindPlanByPriceID(ctx context.Context, priceID string) (tenants.Plan, error)
	ApplyCheckout(ctx context.Context, b tenants.CheckoutBinding) error
	SyncSubscription(ctx context.Context, s tenants.SubscriptionSync) error
	CancelSubscription(ctx context.Context, orgID string) error
	SetStatus(ctx context.Context, orgID string, status tenants.Status) error
	ResetUsageForPeriod(ctx context.Context, orgID string, periodStart time.Time) (bool, error)
}

// Outcome describes what one reconciliation did.
type Outcome struct {
	OrganizationID string
	Applied        bool
	Ignored        bool
	UsageReset     bool
}

type Reconciler struct {
	orgs    TenantStore
	gateway Gateway
	events  *audit.Service
	ledger  idempotency.Ledger
}

func NewReconciler(orgs TenantStore, gateway Gateway, events *audit.Service, ledger idempotency.Ledger) *Reconciler {
	return &Reconciler{orgs: orgs, gateway: gateway, events: events, ledger: ledger}
}

// Reconcile applies ev to the tenant it belongs to, at most once per event id.
//
// Returns ErrTenantUnresolved (wrapped) when the tenant cannot be found, and
// idempotency.ErrInFlight when another delivery of the same event is running.
func (r *Reconciler) Reconcile(ctx context.Context, ev Event) (Outcome, error) {
	if _, ok := ev.(Unhandled); ok {
		return Outcome{Ignored: true}, nil
	}
	log := logger.From(ctx).With("stripe_event_id", ev.EventID(), "event_type", ev.EventType())

	// Network lookups happen before the ledger opens its transaction.
	var sub Subscription
	if c, ok := ev.(CheckoutCompleted); ok {
		if c.SubscriptionID == "" {
			return Outcome{}, fmt.Errorf("%w: checkout session %s has no subscription", ErrMalformedEvent, c.SessionID)
		}
		var err error
		if sub, err = r.gateway.Subscription(ctx, c.SubscriptionID); err != nil {
			return Outcome{}, err
		}
	}

	orgID, err := r.resolveTenant(ctx, ev, sub)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{OrganizationID: orgID}

	k := idempotency.Key{Provider: idempotency.ProviderStripe, EventID: ev.EventID(), Step: StepReconcile}
	ran, err := r.ledger.Once(ctx, k, func(ctx context.Context) error {
		reset, err := r.apply(ctx, orgID, ev, sub)
		out.UsageReset = reset
		return err
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile %s: %w", ev.EventID(), err)
	}
	out.Applied = ran
	if !ran {
		log.Info("stripe event already reconciled", "organization_id", orgID)
	}
	return out, nil
}

func (r *Reconciler) resolveTenant(ctx context.Context, ev Event, sub Subscription) (string, error) {
	var explicit, subID string
	switch e := ev.(type) {
	case CheckoutCompleted:
		explicit, subID = firstNonEmpty(e.OrganizationID, sub.OrganizationID), e.SubscriptionID
	case SubscriptionChanged:
		explicit, subID = e.Subscription.OrganizationID, e.Subscription.ID
	case SubscriptionDeleted:
		explicit, subID = e.Subscription.OrganizationID, e.Subscription.ID
	case InvoicePaid:
		subID = e.Invoice.SubscriptionID
	case InvoicePaymentFailed:
		subID = e.Invoice.SubscriptionID
	}

	if explicit != "" {
		o, err := r.orgs.GetOrganization(ctx, explicit)
		if err == nil {
			return o.ID, nil
		}
		if !errors.Is(err, tenants.ErrNotFound) {
			return "", fmt.Errorf("load organization %s: %w", explicit, err)
		}
	}
	if subID != "" {
		o, err := r.orgs.FindBySubscriptionID(ctx, subID)
		if err == nil {
			return o.ID, nil
		}
		if !errors.Is(err, tenants.ErrNotFound) {
			return "", fmt.Errorf("find organization by subscription %s: %w", subID, err)
		}
	}
	return "", fmt.Errorf("%w: event %s (subscription %q, organization %q)", ErrTenantUnresolved, ev.EventID(), subID, explicit)
}

func (r *Reconciler) apply(ctx context.Context, orgID string, ev Event, checkoutSub Subscription) (bool, error) {
	switch e := ev.(type) {
	case CheckoutCompleted:
		planID := r.planFor(ctx, checkoutSub.PriceID)
		customerID := firstNonEmpty(e.CustomerID, checkoutSub.CustomerID)
		if err := r.orgs.ApplyCheckout(ctx, tenants.CheckoutBinding{
			OrganizationID:       orgID,
			PlanID:               planID,
			StripeCustomerID:     customerID,
			StripeSubscriptionID: checkoutSub.ID,
			PeriodStart:          checkoutSub.PeriodStart,
			PeriodEnd:            checkoutSub.PeriodEnd,
		}); err != nil {
			return false, err
		}
		return false, r.record(ctx, audit.Event{
			OrganizationID: orgID,
			Type:           audit.EventSubscriptionCreated,
			StripeEventID:  e.ID,
			Description:    "Checkout completed",
			Metadata: utils.MustJSONB(map[string]any{
				"plan_id":         planID,
				"subscription_id": checkoutSub.ID,
				"session_id":      e.SessionID,
			}),
		})

	case SubscriptionChanged:
		s := e.Subscription
		status := MapSubscriptionStatus(s.Status)
		planID := r.planFor(ctx, s.PriceID)
		if err := r.orgs.SyncSubscription(ctx, tenants.SubscriptionSync{
			OrganizationID:       orgID,
			Status:               status,
			PlanID:               planID,
			StripeSubscriptionID: s.ID,
			PeriodStart:          s.PeriodStart,
			PeriodEnd:            s.PeriodEnd,
		}); err != nil {
			return false, err
		}
		t := audit.EventSubscriptionUpdated
		if e.Created {
			t = audit.EventSubscriptionCreated
		}
		return false, r.record(ctx, audit.Event{
			OrganizationID: orgID,
			Type:           t,
			StripeEventID:  e.ID,
			Description:    "Subscription " + string(s.Status),
			Metadata: utils.MustJSONB(map[string]any{
				"plan_id":         planID,
				"subscription_id": s.ID,
				"stripe_status":   s.Status,
			}),
		})

	case SubscriptionDeleted:
		if err := r.orgs.CancelSubscription(ctx, orgID); err != nil {
			return false, err
		}
		return false, r.record(ctx, audit.Event{
			OrganizationID: orgID,
			Type:           audit.EventSubscriptionCanceled,
			StripeEventID:  e.ID,
			Description:    "Subscription canceled",
			Metadata:       utils.MustJSONB(map[string]any{"subscription_id": e.Subscription.ID}),
		})

	case InvoicePaid:
		inv := e.Invoice
		if err := r.orgs.SetStatus(ctx, orgID, tenants.StatusActive); err != nil {
			return false, err
		}
		reset := false
		if StartsNewPeriod(inv) {
			var err error
			if reset, err = r.orgs.ResetUsageForPeriod(ctx, orgID, inv.LinePeriodStart); err != nil {
				return false, err
			}
		}
		return reset, r.record(ctx, invoiceEvent(orgID, audit.EventInvoicePaid, e.ID, inv, inv.AmountPaid, map[string]any{
			"billing_reason": inv.BillingReason,
			"usage_reset":    reset,
		}))

	case InvoicePaymentFailed:
		inv := e.Invoice
		if err := r.orgs.SetStatus(ctx, orgID, tenants.StatusPastDue); err != nil {
			return false, err
		}
		return false, r.record(ctx, invoiceEvent(orgID, audit.EventInvoicePaymentFailed, e.ID, inv, inv.AmountDue, map[string]any{
			"billing_reason": inv.BillingReason,
		}))
	}
	return false, nil
}

func invoiceEvent(orgID string, t audit.EventType, eventID string, inv Invoice, amount int64, meta map[string]any) audit.Event {
	invoiceID, currency := inv.ID, inv.Currency
	return audit.Event{
		OrganizationID:  orgID,
		Type:            t,
		StripeEventID:   eventID,
		StripeInvoiceID: &invoiceID,
		AmountCents:     &amount,
		Currency:        &currency,
		Description:     string(t),
		Metadata:        utils.MustJSONB(meta),
	}
}

func (r *Reconciler) record(ctx context.Context, e audit.Event) error {
	if err := r.events.Append(ctx, e); err != nil {
		return fmt.Errorf("append billing event: %w", err)
	}
	return nil
}

// planFor returns nil when priceID matches no plan; the plan is then left unset.
func (r *Reconciler) planFor(ctx context.Context, priceID string) *string {
	if priceID == "" {
		return nil
	}
	p, err := r.orgs.FindPlanByPriceID(ctx, priceID)
	if err != nil {
		logger.From(ctx).Warn("stripe price matches no plan", "price_id", priceID, "err", err)
		return nil
	}
	return &p.ID
}

// MapSubscriptionStatus maps a Stripe status onto an organization status.
// nil means the organization status is left unchanged.
func MapSubscriptionStatus(s stripe.SubscriptionStatus) *tenants.Status {
	var st tenants.Status
	switch s {
	case stripe.SubscriptionStatusActive:
		st = tenants.StatusActive
	case stripe.SubscriptionStatusTrialing:
		st = tenants.StatusTrial
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		st = tenants.StatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		st = tenants.StatusCanceled
	default:
		return nil
	}
	return &st
}

// StartsNewPeriod reports whether a paid invoice opens a billing period.
// Proration, manual and one-off invoices never do.
func StartsNewPeriod(inv Invoice) bool {
	if inv.LinePeriodStart.IsZero() {
		return false
	}
	switch inv.BillingReason {
	case stripe.InvoiceBillingReasonSubscriptionCycle, stripe.InvoiceBillingReasonSubscriptionCreate:
		return true
	default:
		return false
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
