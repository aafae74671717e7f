package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"callflex/internal/audit"
	"callflex/internal/tenants"
)

func TestReconcile_CheckoutBindsPlanAndResetsUsage(t *testing.T) {
	e := newEnv(t)

	out, err := e.rec.Reconcile(context.Background(), decode(t, checkoutBody(t, "evt_co")))
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, "org_1", out.OrganizationID)

	o := e.org(t)
	assert.Equal(t, tenants.StatusActive, o.Status)
	require.NotNil(t, o.PlanID)
	assert.Equal(t, "plan_starter", *o.PlanID, "yearly price must match the plan too")
	assert.Equal(t, 0, o.CurrentPeriodMinutesUsed)
	require.NotNil(t, o.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *o.StripeSubscriptionID)
	assert.True(t, o.CurrentPeriodEnd.Equal(periodEnd))

	evs := e.events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, audit.EventSubscriptionCreated, evs[0].Type)
	assert.Equal(t, "evt_co", evs[0].StripeEventID)
}

func TestReconcile_DuplicateEventAppliesOnce(t *testing.T) {
	e := newEnv(t)
	ev := decode(t, checkoutBody(t, "evt_dup"))

	_, err := e.rec.Reconcile(context.Background(), ev)
	require.NoError(t, err)

	// Usage accrued after checkout must survive a redelivery.
	_, err = e.orgs.IncrementMinutesUsed(context.Background(), "org_1", 7)
	require.NoError(t, err)

	out, err := e.rec.Reconcile(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, 7, e.org(t).CurrentPeriodMinutesUsed)
	assert.Len(t, e.events.Events(), 1)
}

func TestReconcile_SubscriptionStatusMapping(t *testing.T) {
	cases := []struct {
		stripeStatus string
		want         tenants.Status
	}{
		{"active", tenants.StatusActive},
		{"trialing", tenants.StatusTrial},
		{"past_due", tenants.StatusPastDue},
		{"unpaid", tenants.StatusPastDue},
		{"canceled", tenants.StatusCanceled},
		{"incomplete_expired", tenants.StatusCanceled},
		{"incomplete", tenants.StatusActive}, // unchanged from the linked state
		{"paused", tenants.StatusActive},
	}
	for _, tc := range cases {
		t.Run(tc.stripeStatus, func(t *testing.T) {
			e := newEnv(t)
			e.linkSubscription(t)

			body := subscriptionBody(t, "evt_"+tc.stripeStatus, "customer.subscription.updated", tc.stripeStatus, nil)
			_, err := e.rec.Reconcile(context.Background(), decode(t, body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, e.org(t).Status)
		})
	}
}

func TestReconcile_SubscriptionResolvedByMetadata(t *testing.T) {
	e := newEnv(t)

	body := subscriptionBody(t, "evt_created", "customer.subscription.created", "trialing", map[string]string{"organizationId": "org_1"})
	out, err := e.rec.Reconcile(context.Background(), decode(t, body))
	require.NoError(t, err)
	assert.Equal(t, "org_1", out.OrganizationID)

	o := e.org(t)
	assert.Equal(t, tenants.StatusTrial, o.Status)
	require.NotNil(t, o.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *o.StripeSubscriptionID)

	evs := e.events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, audit.EventSubscriptionCreated, evs[0].Type)
}

func TestReconcile_UnknownPriceLeavesPlanAlone(t *testing.T) {
	e := newEnv(t)
	e.linkSubscription(t)

	body := stripeEventBody(t, "evt_price", "customer.subscription.updated", map[string]any{
		"id":     "sub_1",
		"status": "active",
		"items": map[string]any{
			"data": []any{map[string]any{"price": map[string]any{"id": "price_unknown"}}},
		},
	})
	_, err := e.rec.Reconcile(context.Background(), decode(t, body))
	require.NoError(t, err)

	o := e.org(t)
	require.NotNil(t, o.PlanID)
	assert.Equal(t, "plan_starter", *o.PlanID)
}

func TestReconcile_SubscriptionDeletedUnlinks(t *testing.T) {
	e := newEnv(t)
	e.linkSubscription(t)

	body := subscriptionBody(t, "evt_del", "customer.subscription.deleted", "canceled", nil)
	_, err := e.rec.Reconcile(context.Background(), decode(t, body))
	require.NoError(t, err)

	o := e.org(t)
	assert.Equal(t, tenants.StatusCanceled, o.Status)
	assert.Nil(t, o.StripeSubscriptionID)
	assert.Nil(t, o.PlanID)
	assert.Equal(t, audit.EventSubscriptionCanceled, e.events.Events()[0].Type)
}

func TestReconcile_InvoicePaidResetsOnlyAtPeriodBoundary(t *testing.T) {
	e := newEnv(t)
	e.linkSubscription(t)
	ctx := context.Background()
	require.NoError(t, e.orgs.SetStatus(ctx, "org_1", tenants.StatusPastDue))
	_, err := e.orgs.IncrementMinutesUsed(ctx, "org_1", 120)
	require.NoError(t, err)

	// A proration invoice mid-period reactivates but keeps the counter.
	out, err := e.rec.Reconcile(ctx, decode(t, invoiceBody(t, "evt_prorate", "invoice.paid", "subscription_update", periodStart)))
	require.NoError(t, err)
	assert.False(t, out.UsageReset)
	assert.Equal(t, tenants.StatusActive, e.org(t).Status)
	assert.Equal(t, 120, e.org(t).CurrentPeriodMinutesUsed)

	// The cycle invoice for the period already being counted does not reset either.
	out, err = e.rec.Reconcile(ctx, decode(t, invoiceBody(t, "evt_same", "invoice.paid", "subscription_cycle", periodStart)))
	require.NoError(t, err)
	assert.False(t, out.UsageReset)
	assert.Equal(t, 120, e.org(t).CurrentPeriodMinutesUsed)

	out, err = e.rec.Reconcile(ctx, decode(t, invoiceBody(t, "evt_cycle", "invoice.paid", "subscription_cycle", nextStart)))
	require.NoError(t, err)
	assert.True(t, out.UsageReset)
	assert.Equal(t, 0, e.org(t).CurrentPeriodMinutesUsed)

	evs := e.events.Events()
	require.Len(t, evs, 3)
	last := evs[2]
	assert.Equal(t, audit.EventInvoicePaid, last.Type)
	require.NotNil(t, last.AmountCents)
	assert.EqualValues(t, 4900, *last.AmountCents)
}

func TestReconcile_InvoicePaymentFailedMarksPastDue(t *testing.T) {
	e := newEnv(t)
	e.linkSubscription(t)

	_, err := e.rec.Reconcile(context.Background(), decode(t, invoiceBody(t, "evt_fail", "invoice.payment_failed", "subscription_cycle", nextStart)))
	require.NoError(t, err)
	assert.Equal(t, tenants.StatusPastDue, e.org(t).Status)
	assert.Equal(t, audit.EventInvoicePaymentFailed, e.events.Events()[0].Type)
}

func TestReconcile_CheckoutThenPaymentFailedWalksEveryState(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, tenants.StatusTrial, e.org(t).Status)

	_, err := e.rec.Reconcile(context.Background(), decode(t, checkoutBody(t, "evt_chain_co")))
	require.NoError(t, err)
	assert.Equal(t, tenants.StatusActive, e.org(t).Status)

	// No metadata on the invoice: the tenant is found by the subscription the checkout linked.
	_, err = e.rec.Reconcile(context.Background(), decode(t, invoiceBody(t, "evt_chain_fail", "invoice.payment_failed", "subscription_cycle", nextStart)))
	require.NoError(t, err)
	assert.Equal(t, tenants.StatusPastDue, e.org(t).Status)

	evs := e.events.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, audit.EventSubscriptionCreated, evs[0].Type)
	assert.Equal(t, audit.EventInvoicePaymentFailed, evs[1].Type)
}

func TestReconcile_UnresolvedTenant(t *testing.T) {
	e := newEnv(t)

	_, err := e.rec.Reconcile(context.Background(), decode(t, invoiceBody(t, "evt_orphan", "invoice.paid", "subscription_cycle", nextStart)))
	require.ErrorIs(t, err, ErrTenantUnresolved)
	assert.Empty(t, e.events.Events())

	// Once the subscription is linked the same event id still applies.
	e.linkSubscription(t)
	out, err := e.rec.Reconcile(context.Background(), decode(t, invoiceBody(t, "evt_orphan", "invoice.paid", "subscription_cycle", nextStart)))
	require.NoError(t, err)
	assert.True(t, out.Applied)
}

func TestReconcile_FailedWriteIsRetried(t *testing.T) {
	e := newEnv(t)
	e.linkSubscription(t)
	e.events.Err = assert.AnError

	ev := decode(t, invoiceBody(t, "evt_retry", "invoice.payment_failed", "subscription_cycle", nextStart))
	_, err := e.rec.Reconcile(context.Background(), ev)
	require.Error(t, err)

	e.events.Err = nil
	out, err := e.rec.Reconcile(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, out.Applied)
}

func TestReconcile_UnhandledIgnored(t *testing.T) {
	e := newEnv(t)
	out, err := e.rec.Reconcile(context.Background(), decode(t, stripeEventBody(t, "evt_x", "customer.created", map[string]any{"id": "cus_1"})))
	require.NoError(t, err)
	assert.True(t, out.Ignored)
}

func TestStartsNewPeriod(t *testing.T) {
	assert.True(t, StartsNewPeriod(Invoice{BillingReason: stripe.InvoiceBillingReasonSubscriptionCreate, LinePeriodStart: nextStart}))
	assert.False(t, StartsNewPeriod(Invoice{BillingReason: stripe.InvoiceBillingReasonManual, LinePeriodStart: nextStart}))
	assert.False(t, StartsNewPeriod(Invoice{BillingReason: stripe.InvoiceBillingReasonSubscriptionCycle}))
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`{"id":"evt_1"}`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = Decode(stripeEventBody(t, "evt_2", "invoice.paid", nil))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}
