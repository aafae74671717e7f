package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

var ErrGatewayNotConfigured = errors.New("billing: stripe secret key not configured")

// Gateway is the outbound side of Stripe used by reconciliation and the billing routes.
type Gateway interface {
	Subscription(ctx context.Context, id string) (Subscription, error)
	CreateCustomer(ctx context.Context, c NewCustomer) (string, error)
	CheckoutURL(ctx context.Context, req CheckoutRequest) (string, error)
	PortalURL(ctx context.Context, customerID, returnURL string) (string, error)
	Invoices(ctx context.Context, customerID string, limit int) ([]InvoiceSummary, error)
}

type NewCustomer struct {
	OrganizationID string
	Email          string
	Name           string
}

type CheckoutRequest struct {
	OrganizationID string
	CustomerID     string
	PriceID        string
	SuccessURL     string
	CancelURL      string
}

type InvoiceSummary struct {
	ID         string  `json:"id"`
	Number     string  `json:"number"`
	Status     string  `json:"status"`
	Amount     int64   `json:"amount"`
	Currency   string  `json:"currency"`
	Created    int64   `json:"created"`
	InvoicePDF *string `json:"invoicePdf"`
	HostedURL  *string `json:"hostedUrl"`
}

// StripeGateway talks to Stripe with a per-instance client so no package
// globals are touched.
type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	if secretKey == "" {
		return &StripeGateway{}
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api}
}

func (g *StripeGateway) Subscription(ctx context.Context, id string) (Subscription, error) {
	if g.api == nil {
		return Subscription{}, ErrGatewayNotConfigured
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	s, err := g.api.Subscriptions.Get(id, params)
	if err != nil {
		return Subscription{}, fmt.Errorf("stripe: get subscription %s: %w", id, err)
	}
	return subscriptionFrom(s), nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, c NewCustomer) (string, error) {
	if g.api == nil {
		return "", ErrGatewayNotConfigured
	}
	params := &stripe.CustomerParams{Name: stripe.String(c.Name)}
	if c.Email != "" {
		params.Email = stripe.String(c.Email)
	}
	params.Context = ctx
	params.AddMetadata(metadataOrgKey, c.OrganizationID)

	cus, err := g.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create customer: %w", err)
	}
	return cus.ID, nil
}

// CheckoutURL tags both the session and the subscription with the
// organization so either webhook can resolve the tenant.
func (g *StripeGateway) CheckoutURL(ctx context.Context, req CheckoutRequest) (string, error) {
	if g.api == nil {
		return "", ErrGatewayNotConfigured
	}
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(req.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataOrgKey: req.OrganizationID},
		},
	}
	params.Context = ctx
	params.AddMetadata(metadataOrgKey, req.OrganizationID)

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return s.URL, nil
}

func (g *StripeGateway) PortalURL(ctx context.Context, customerID, returnURL string) (string, error) {
	if g.api == nil {
		return "", ErrGatewayNotConfigured
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	s, err := g.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create portal session: %w", err)
	}
	return s.URL, nil
}

func (g *StripeGateway) Invoices(ctx context.Context, customerID string, limit int) ([]InvoiceSummary, error) {
	if g.api == nil {
		return nil, ErrGatewayNotConfigured
	}
	params := &stripe.InvoiceListParams{Customer: stripe.String(customerID)}
	params.Limit = stripe.Int64(int64(limit))
	params.Context = ctx

	out := []InvoiceSummary{}
	it := g.api.Invoices.List(params)
	for it.Next() && len(out) < limit {
		inv := it.Invoice()
		sum := InvoiceSummary{
			ID:       inv.ID,
			Number:   inv.Number,
			Status:   string(inv.Status),
			Amount:   inv.AmountPaid,
			Currency: string(inv.Currency),
			Created:  inv.Created,
		}
		if inv.InvoicePDF != "" {
			sum.InvoicePDF = stripe.String(inv.InvoicePDF)
		}
		if inv.HostedInvoiceURL != "" {
			sum.HostedURL = stripe.String(inv.HostedInvoiceURL)
		}
		out = append(out, sum)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("stripe: list invoices: %w", err)
	}
	return out, nil
}
