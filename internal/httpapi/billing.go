package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"callflex/internal/billing"
	"callflex/internal/rbac"
	"callflex/internal/reporting"
	"callflex/internal/tenants"
	"callflex/internal/usage"
	"callflex/pkg/logger"
)

const invoiceLimit = 12

type billingUsage struct {
	MinutesUsed     int        `json:"minutesUsed"`
	MinutesIncluded int        `json:"minutesIncluded"`
	PeriodStart     *time.Time `json:"periodStart"`
	PeriodEnd       *time.Time `json:"periodEnd"`
}

type billingOverview struct {
	Status           tenants.Status `json:"status"`
	Plan             *tenants.Plan  `json:"plan"`
	Usage            billingUsage   `json:"usage"`
	HasPaymentMethod bool           `json:"hasPaymentMethod"`
}

type usageReport struct {
	usage.Summary
	DailyBreakdown []reporting.DailyUsage `json:"dailyBreakdown"`
}

// orgWithPlan loads the authorized organization and its plan, if any.
func (h Handlers) orgWithPlan(ctx context.Context, orgID string) (tenants.Organization, *tenants.Plan, error) {
	org, err := h.Tenants.GetOrganization(ctx, orgID)
	if err != nil {
		return tenants.Organization{}, nil, err
	}
	if org.PlanID == nil {
		return org, nil, nil
	}
	plan, err := h.Tenants.GetPlan(ctx, *org.PlanID)
	if errors.Is(err, tenants.ErrNotFound) {
		return org, nil, nil
	}
	if err != nil {
		return tenants.Organization{}, nil, err
	}
	return org, &plan, nil
}

func (h Handlers) BillingOverview(c *gin.Context) {
	org, plan, err := h.orgWithPlan(c.Request.Context(), rbac.OrganizationID(c))
	if err != nil {
		fail(c, err)
		return
	}
	out := billingOverview{
		Status: org.Status,
		Plan:   plan,
		Usage: billingUsage{
			MinutesUsed: org.CurrentPeriodMinutesUsed,
			PeriodStart: org.CurrentPeriodStart,
			PeriodEnd:   org.CurrentPeriodEnd,
		},
		HasPaymentMethod: org.StripeSubscriptionID != nil && *org.StripeSubscriptionID != "",
	}
	if plan != nil {
		out.Usage.MinutesIncluded = plan.IncludedMinutes
	}
	c.JSON(http.StatusOK, gin.H{"billing": out})
}

func (h Handlers) BillingUsage(c *gin.Context) {
	ctx := c.Request.Context()
	org, plan, err := h.orgWithPlan(ctx, rbac.OrganizationID(c))
	if err != nil {
		fail(c, err)
		return
	}

	in := usage.SummaryInput{
		MinutesUsed: org.CurrentPeriodMinutesUsed,
		PeriodStart: org.CurrentPeriodStart,
		PeriodEnd:   org.CurrentPeriodEnd,
	}
	if plan != nil {
		in.MinutesIncluded = plan.IncludedMinutes
		in.OverageRate = plan.OverageRatePerMinute
	}

	from := h.now().UTC().Truncate(24 * time.Hour)
	if org.CurrentPeriodStart != nil {
		from = org.CurrentPeriodStart.UTC().Truncate(24 * time.Hour)
	}
	daily, err := h.Reporting.Daily(ctx, org.ID, from)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": usageReport{Summary: usage.Summarize(in), DailyBreakdown: daily}})
}

type checkoutRequest struct {
	OrganizationID string `json:"organizationId" binding:"required"`
	PriceID        string `json:"priceId" binding:"required"`
}

func (h Handlers) CreateCheckout(c *gin.Context) {
	var req checkoutRequest
	if !bindJSON(c, &req) || !sameOrganization(c, req.OrganizationID) {
		return
	}
	ctx := c.Request.Context()
	org, err := h.Tenants.GetOrganization(ctx, req.OrganizationID)
	if err != nil {
		fail(c, err)
		return
	}

	customerID := ""
	if org.StripeCustomerID != nil {
		customerID = *org.StripeCustomerID
	}
	if customerID == "" {
		nc := billing.NewCustomer{OrganizationID: org.ID, Name: org.Name}
		if org.PrimaryEmail != nil {
			nc.Email = *org.PrimaryEmail
		}
		if customerID, err = h.Gateway.CreateCustomer(ctx, nc); err != nil {
			fail(c, err)
			return
		}
		if err := h.Tenants.SetStripeCustomer(ctx, org.ID, customerID); err != nil {
			fail(c, err)
			return
		}
		logger.From(ctx).Info("stripe customer created", "org_id", org.ID, "customer_id", customerID)
	}

	url, err := h.Gateway.CheckoutURL(ctx, billing.CheckoutRequest{
		OrganizationID: org.ID,
		CustomerID:     customerID,
		PriceID:        req.PriceID,
		SuccessURL:     h.AppURL + "/dashboard/billing?success=true",
		CancelURL:      h.AppURL + "/dashboard/billing?canceled=true",
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkoutUrl": url})
}

func (h Handlers) CreatePortal(c *gin.Context) {
	ctx := c.Request.Context()
	org, err := h.Tenants.GetOrganization(ctx, rbac.OrganizationID(c))
	if err != nil {
		fail(c, err)
		return
	}
	if org.StripeCustomerID == nil || *org.StripeCustomerID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "No billing account found"})
		return
	}
	url, err := h.Gateway.PortalURL(ctx, *org.StripeCustomerID, h.AppURL+"/dashboard/billing")
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"portalUrl": url})
}

func (h Handlers) ListInvoices(c *gin.Context) {
	ctx := c.Request.Context()
	org, err := h.Tenants.GetOrganization(ctx, rbac.OrganizationID(c))
	if err != nil {
		fail(c, err)
		return
	}
	if org.StripeCustomerID == nil || *org.StripeCustomerID == "" {
		c.JSON(http.StatusOK, gin.H{"invoices": []billing.InvoiceSummary{}})
		return
	}
	invoices, err := h.Gateway.Invoices(ctx, *org.StripeCustomerID, invoiceLimit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}
