package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"callflex/internal/assistants"
	"callflex/internal/auth"
	"callflex/internal/billing"
	"callflex/internal/calls"
	"callflex/internal/config"
	"callflex/internal/phonenumbers"
	"callflex/internal/realtime"
	"callflex/internal/reporting"
	"callflex/internal/telephony"
	"callflex/internal/templates"
	"callflex/internal/tenants"
)

const (
	orgA = "11111111-1111-4111-8111-111111111111"
	orgB = "22222222-2222-4222-8222-222222222222"

	ownerMembership  = "m-owner"
	memberMembership = "m-member"
)

type fakeGateway struct {
	mu        sync.Mutex
	customers int
	checkouts []billing.CheckoutRequest
}

func (g *fakeGateway) Subscription(ctx context.Context, id string) (billing.Subscription, error) {
	return billing.Subscription{ID: id}, nil
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, c billing.NewCustomer) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.customers++
	return "cus_test", nil
}

func (g *fakeGateway) CheckoutURL(ctx context.Context, req billing.CheckoutRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkouts = append(g.checkouts, req)
	return "https://checkout.stripe.test/session", nil
}

func (g *fakeGateway) PortalURL(ctx context.Context, customerID, returnURL string) (string, error) {
	return "https://billing.stripe.test/" + customerID, nil
}

func (g *fakeGateway) Invoices(ctx context.Context, customerID string, limit int) ([]billing.InvoiceSummary, error) {
	return []billing.InvoiceSummary{{ID: "in_1", Amount: 4900, Currency: "usd"}}, nil
}

type env struct {
	router     *gin.Engine
	verifier   *auth.Verifier
	tenants    *tenants.MemoryRepo
	calls      *calls.MemoryRepo
	reporting  *reporting.MemoryRepo
	templates  *templates.MemoryRepo
	assistants *assistants.MemoryRepo
	gateway    *fakeGateway
	realtime   *realtime.MemoryBroadcaster
	handlers   Handlers
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	v, err := auth.NewVerifier(config.AuthConfig{JWTSecret: "test-secret"})
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	ten := tenants.NewMemoryRepo()
	included, maxNumbers := 100, 1
	plan := "plan_starter"
	ten.PutPlan(tenants.Plan{ID: plan, Name: "starter", IncludedMinutes: included, MaxPhoneNumbers: &maxNumbers, IsActive: true})

	start := time.Now().UTC().AddDate(0, 0, -3)
	ten.PutOrganization(tenants.Organization{
		ID: orgA, Name: "Acme Dental", Status: tenants.StatusActive, Timezone: "America/Chicago",
		PlanID: &plan, CurrentPeriodMinutesUsed: 120, CurrentPeriodStart: &start,
	})
	ten.PutOrganization(tenants.Organization{ID: orgB, Name: "Other", Status: tenants.StatusTrial, Timezone: "UTC"})

	for _, u := range []tenants.User{
		{ID: "u-owner", AuthID: "auth-owner", Email: "owner@acme.test"},
		{ID: "u-member", AuthID: "auth-member", Email: "member@acme.test"},
		{ID: "u-out", AuthID: "auth-out", Email: "out@other.test"},
	} {
		ten.PutUser(u)
	}
	ten.PutMembership(tenants.Membership{ID: ownerMembership, OrganizationID: orgA, UserID: "u-owner", Role: tenants.RoleOwner})
	ten.PutMembership(tenants.Membership{ID: memberMembership, OrganizationID: orgA, UserID: "u-member", Role: tenants.RoleMember})
	ten.PutMembership(tenants.Membership{ID: "m-out", OrganizationID: orgB, UserID: "u-out", Role: tenants.RoleOwner})

	e := &env{
		verifier:   v,
		tenants:    ten,
		calls:      calls.NewMemoryRepo(),
		reporting:  reporting.NewMemoryRepo(),
		templates:  templates.NewMemoryRepo(),
		assistants: assistants.NewMemoryRepo(),
		gateway:    &fakeGateway{},
		realtime:   realtime.NewMemoryBroadcaster(),
	}
	e.handlers = Handlers{
		Tenants:      ten,
		Calls:        e.calls,
		Reporting:    reporting.NewService(e.reporting),
		Templates:    e.templates,
		Assistants:   assistants.NewService(e.assistants, e.templates),
		PhoneNumbers: phonenumbers.NewService(phonenumbers.NewMemoryRepo(), telephony.NewCatalogProvider(), ten, e.assistants),
		Gateway:      e.gateway,
		Realtime:     e.realtime,
		AppURL:       "https://app.callflex.test",
		KeepAlive:    time.Hour,
	}

	e.router = gin.New()
	e.handlers.Mount(e.router.Group("/api/v1"), auth.RequireUser(v, ten), auth.RequireIdentity(v))
	return e
}

func (e *env) token(t *testing.T, authID string) string {
	t.Helper()
	tok, err := e.verifier.Sign(time.Now(), authID, "", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func (e *env) do(t *testing.T, method, path, authID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if authID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, authID))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}
