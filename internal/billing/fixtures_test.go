package billing

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79"

	"callflex/internal/audit"
	"callflex/internal/idempotency"
	"callflex/internal/tenants"
)

var (
	periodStart = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	nextStart   = periodEnd
)

type fakeGateway struct {
	mu   sync.Mutex
	subs map[string]Subscription
	gets int
}

func (g *fakeGateway) Subscription(ctx context.Context, id string) (Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gets++
	s, ok := g.subs[id]
	if !ok {
		return Subscription{}, &stripe.Error{Code: stripe.ErrorCodeResourceMissing, Msg: "no such subscription"}
	}
	return s, nil
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, c NewCustomer) (string, error) {
	return "cus_new", nil
}

func (g *fakeGateway) CheckoutURL(ctx context.Context, req CheckoutRequest) (string, error) {
	return "https://checkout.test/" + req.PriceID, nil
}

func (g *fakeGateway) PortalURL(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://portal.test/" + customerID, nil
}

func (g *fakeGateway) Invoices(ctx context.Context, customerID string, limit int) ([]InvoiceSummary, error) {
	return []InvoiceSummary{}, nil
}

type env struct {
	orgs    *tenants.MemoryRepo
	events  *audit.MemoryRepo
	ledger  *idempotency.MemoryLedger
	gateway *fakeGateway
	rec     *Reconciler
}

func newEnv(t *testing.T) env {
	t.Helper()
	orgs := tenants.NewMemoryRepo()
	orgs.PutOrganization(tenants.Organization{ID: "org_1", Status: tenants.StatusTrial, CurrentPeriodMinutesUsed: 42})
	monthly, yearly := "price_m", "price_y"
	orgs.PutPlan(tenants.Plan{ID: "plan_starter", IncludedMinutes: 300, StripePriceIDMonthly: &monthly, StripePriceIDYearly: &yearly})

	gw := &fakeGateway{subs: map[string]Subscription{
		"sub_1": {
			ID:          "sub_1",
			Status:      stripe.SubscriptionStatusActive,
			CustomerID:  "cus_1",
			PriceID:     "price_y",
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
		},
	}}
	events := audit.NewMemoryRepo()
	ledger := idempotency.NewMemoryLedger()
	return env{
		orgs:    orgs,
		events:  events,
		ledger:  ledger,
		gateway: gw,
		rec:     NewReconciler(orgs, gw, audit.NewService(events), ledger),
	}
}

// linkSubscription puts org_1 in the state a completed checkout leaves it in.
func (e env) linkSubscription(t *testing.T) {
	t.Helper()
	plan := "plan_starter"
	err := e.orgs.ApplyCheckout(context.Background(), tenants.CheckoutBinding{
		OrganizationID:       "org_1",
		PlanID:               &plan,
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
		PeriodStart:          periodStart,
		PeriodEnd:            periodEnd,
	})
	if err != nil {
		t.Fatalf("link subscription: %v", err)
	}
}

func (e env) org(t *testing.T) tenants.Organization {
	t.Helper()
	o, err := e.orgs.GetOrganization(context.Background(), "org_1")
	if err != nil {
		t.Fatalf("get org: %v", err)
	}
	return o
}

func stripeEventBody(t *testing.T, id, typ string, obj map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":     id,
		"object": "event",
		"type":   typ,
		"data":   map[string]any{"object": obj},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return b
}

func decode(t *testing.T, body []byte) Event {
	t.Helper()
	ev, err := Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ev
}

func checkoutBody(t *testing.T, id string) []byte {
	return stripeEventBody(t, id, "checkout.session.completed", map[string]any{
		"id":           "cs_1",
		"object":       "checkout.session",
		"customer":     "cus_1",
		"subscription": "sub_1",
		"metadata":     map[string]string{"organizationId": "org_1"},
	})
}

func subscriptionBody(t *testing.T, id, typ, status string, meta map[string]string) []byte {
	return stripeEventBody(t, id, typ, map[string]any{
		"id":                   "sub_1",
		"object":               "subscription",
		"status":               status,
		"customer":             "cus_1",
		"metadata":             meta,
		"current_period_start": nextStart.Unix(),
		"current_period_end":   nextStart.AddDate(0, 1, 0).Unix(),
		"items": map[string]any{
			"object": "list",
			"data":   []any{map[string]any{"id": "si_1", "price": map[string]any{"id": "price_m"}}},
		},
	})
}

func invoiceBody(t *testing.T, id, typ, reason string, lineStart time.Time) []byte {
	return stripeEventBody(t, id, typ, map[string]any{
		"id":             "in_1",
		"object":         "invoice",
		"subscription":   "sub_1",
		"customer":       "cus_1",
		"billing_reason": reason,
		"amount_paid":    4900,
		"amount_due":     4900,
		"currency":       "usd",
		"lines": map[string]any{
			"object": "list",
			"data": []any{map[string]any{
				"id":        "il_1",
				"type":      "subscription",
				"proration": false,
				"period":    map[string]any{"start": lineStart.Unix(), "end": lineStart.AddDate(0, 1, 0).Unix()},
			}},
		},
	})
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
