package httpapi

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"callflex/internal/assistants"
	"callflex/internal/billing"
	"callflex/internal/calls"
	"callflex/internal/phonenumbers"
	"callflex/internal/rbac"
	"callflex/internal/realtime"
	"callflex/internal/reporting"
	"callflex/internal/templates"
	"callflex/internal/tenants"
)

// TenantStore is the slice of tenants.Repository the REST routes use.
type TenantStore interface {
	rbac.MembershipReader
	GetOrganization(ctx context.Context, id string) (tenants.Organization, error)
	UpdateOrganization(ctx context.Context, id string, p tenants.OrganizationPatch) (tenants.Organization, error)
	ListOrganizationsForUser(ctx context.Context, userID string) ([]tenants.OrganizationWithRole, error)
	ListMembers(ctx context.Context, orgID string) ([]tenants.Member, error)
	UpdateMemberRole(ctx context.Context, orgID, userID string, role tenants.Role) (tenants.Membership, error)
	RemoveMember(ctx context.Context, orgID, userID string) error
	Provision(ctx context.Context, s tenants.Signup) (tenants.Provisioned, error)
	CreateInvitation(ctx context.Context, inv tenants.Invitation) (tenants.Invitation, error)
	GetPlan(ctx context.Context, id string) (tenants.Plan, error)
	SetStripeCustomer(ctx context.Context, orgID, customerID string) error
}

type CallReader interface {
	List(ctx context.Context, f calls.ListFilter) ([]calls.Call, int, error)
	Get(ctx context.Context, orgID, id string) (calls.Call, error)
	GetTranscript(ctx context.Context, orgID, callID string) (calls.Transcript, error)
	GetRecording(ctx context.Context, orgID, callID string) (calls.Recording, error)
	ListActions(ctx context.Context, orgID, callID string) ([]calls.Action, error)
}

// Handlers groups the tenant REST API. Keep these thin: parse and validate
// input, authorize, call the owning package, return JSON.
type Handlers struct {
	Tenants      TenantStore
	Calls        CallReader
	Reporting    *reporting.Service
	Templates    templates.Repository
	Assistants   *assistants.Service
	PhoneNumbers *phonenumbers.Service
	Gateway      billing.Gateway
	Realtime     realtime.Broadcaster

	// AppURL is the dashboard origin Stripe redirects back to.
	AppURL string

	// KeepAlive is the SSE comment interval; zero means 25s.
	KeepAlive time.Duration

	Clock func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

// Mount registers every /api/v1 route on api. Templates are public; signup
// only needs a verified identity; the rest sit behind requireUser and a
// per-request membership check.
func (h Handlers) Mount(api *gin.RouterGroup, requireUser, requireIdentity gin.HandlerFunc) {
	useJSONFieldNames()

	account := api.Group("/auth")
	{
		account.GET("/me", requireUser, h.Me)
		account.POST("/signup", requireIdentity, h.Signup)
	}

	tpl := api.Group("/templates")
	{
		tpl.GET("", h.ListTemplates)
		tpl.GET("/meta/industries", h.ListIndustries)
		tpl.GET("/:slug", h.GetTemplate)
	}

	member := rbac.RequireMembership(h.Tenants, rbac.AnyMember...)
	manager := rbac.RequireMembership(h.Tenants, rbac.Managers...)

	orgs := api.Group("/organizations", requireUser)
	{
		orgs.GET("", h.ListOrganizations)
		orgs.GET("/:id", rbac.RequireOrganizationParam(h.Tenants, rbac.AnyMember...), h.GetOrganization)
		orgs.PATCH("/:id", rbac.RequireOrganizationParam(h.Tenants, rbac.Managers...), h.UpdateOrganization)
		orgs.GET("/:id/members", rbac.RequireOrganizationParam(h.Tenants, rbac.AnyMember...), h.ListMembers)
		orgs.POST("/:id/members", rbac.RequireOrganizationParam(h.Tenants, rbac.Managers...), h.InviteMember)
		orgs.PATCH("/:id/members/:userId", rbac.RequireOrganizationParam(h.Tenants, rbac.OwnerOnly...), h.UpdateMemberRole)
		orgs.DELETE("/:id/members/:userId", rbac.RequireOrganizationParam(h.Tenants, rbac.OwnerOnly...), h.RemoveMember)
		orgs.GET("/:id/events", rbac.RequireOrganizationParam(h.Tenants, rbac.AnyMember...), h.OrganizationEvents)
	}

	cl := api.Group("/calls", requireUser, member)
	{
		cl.GET("", h.ListCalls)
		cl.GET("/stats/overview", h.CallStats)
		cl.GET("/:id", h.GetCall)
		cl.GET("/:id/transcript", h.GetTranscript)
		cl.GET("/:id/recording", h.GetRecording)
		cl.GET("/:id/actions", h.ListActions)
	}

	bill := api.Group("/billing", requireUser)
	{
		bill.GET("", member, h.BillingOverview)
		bill.GET("/usage", member, h.BillingUsage)
		bill.GET("/invoices", member, h.ListInvoices)
		bill.POST("/checkout", manager, h.CreateCheckout)
		bill.POST("/portal", manager, h.CreatePortal)
	}

	as := api.Group("/assistants", requireUser)
	{
		as.GET("", member, h.ListAssistants)
		as.POST("", member, h.CreateAssistant)
		as.GET("/:id", h.GetAssistant)
		as.PATCH("/:id", h.UpdateAssistant)
		as.DELETE("/:id", h.DeleteAssistant)
		as.POST("/:id/sync", h.SyncAssistant)
	}

	pn := api.Group("/phone-numbers", requireUser)
	{
		pn.GET("", member, h.ListPhoneNumbers)
		pn.POST("/search", member, h.SearchPhoneNumbers)
		pn.POST("", manager, h.ProvisionPhoneNumber)
		pn.GET("/:id", h.GetPhoneNumber)
		pn.PATCH("/:id", h.UpdatePhoneNumber)
		pn.DELETE("/:id", h.ReleasePhoneNumber)
	}
}
