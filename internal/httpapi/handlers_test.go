package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"callflex/internal/assistants"
	"callflex/internal/calls"
	"callflex/internal/reporting"
	"callflex/internal/templates"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func TestTemplates_PublicAndFiltered(t *testing.T) {
	e := newEnv(t)
	e.templates.Put(templates.Template{ID: "t1", Slug: "dental", IsActive: true, IsFeatured: true})
	e.templates.Put(templates.Template{ID: "t2", Slug: "legal", IsActive: true})

	w := e.do(t, http.MethodGet, "/api/v1/templates?featured=true", "", "")
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody(t, w)["templates"].([]any); len(got) != 1 {
		t.Fatalf("expected one featured template, got %d", len(got))
	}

	w = e.do(t, http.MethodGet, "/api/v1/templates/missing", "", "")
	expectStatus(t, w, http.StatusNotFound)
	if decodeBody(t, w)["error"] != "Template not found" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestOrganizations_AuthAndMembership(t *testing.T) {
	e := newEnv(t)

	expectStatus(t, e.do(t, http.MethodGet, "/api/v1/organizations", "", ""), http.StatusUnauthorized)
	expectStatus(t, e.do(t, http.MethodGet, "/api/v1/organizations/"+orgA, "auth-out", ""), http.StatusForbidden)

	w := e.do(t, http.MethodGet, "/api/v1/organizations/"+orgA, "auth-member", "")
	expectStatus(t, w, http.StatusOK)
	if decodeBody(t, w)["role"] != "member" {
		t.Fatalf("expected member role, got %s", w.Body.String())
	}

	w = e.do(t, http.MethodGet, "/api/v1/organizations", "auth-owner", "")
	expectStatus(t, w, http.StatusOK)
	if got := decodeBody(t, w)["organizations"].([]any); len(got) != 1 {
		t.Fatalf("expected one organization, got %d", len(got))
	}
}

func TestOrganizations_PatchRequiresManagerAndValidates(t *testing.T) {
	e := newEnv(t)
	path := "/api/v1/organizations/" + orgA

	expectStatus(t, e.do(t, http.MethodPatch, path, "auth-member", `{"name":"X"}`), http.StatusForbidden)

	w := e.do(t, http.MethodPatch, path, "auth-owner", `{"timezone":"Mars/Olympus"}`)
	expectStatus(t, w, http.StatusBadRequest)
	fields, _ := decodeBody(t, w)["fields"].(map[string]any)
	if fields["timezone"] == nil {
		t.Fatalf("expected timezone field error, got %s", w.Body.String())
	}

	w = e.do(t, http.MethodPatch, path, "auth-owner", `{"website":"not a url"}`)
	expectStatus(t, w, http.StatusBadRequest)
	fields, _ = decodeBody(t, w)["fields"].(map[string]any)
	if fields["website"] != "url" {
		t.Fatalf("expected website url error, got %s", w.Body.String())
	}

	w = e.do(t, http.MethodPatch, path, "auth-owner", `{"name":"Acme Dental Group","timezone":"UTC"}`)
	expectStatus(t, w, http.StatusOK)
	org, _ := e.tenants.GetOrganization(context.Background(), orgA)
	if org.Name != "Acme Dental Group" || org.Timezone != "UTC" {
		t.Fatalf("patch not applied: %+v", org)
	}
}

func TestMembers_OwnerOnlyAndNotSelf(t *testing.T) {
	e := newEnv(t)
	base := "/api/v1/organizations/" + orgA + "/members/"

	// Member routes are keyed by user id, not membership id.
	expectStatus(t, e.do(t, http.MethodPatch, base+memberMembership, "auth-owner", `{"role":"admin"}`), http.StatusNotFound)

	expectStatus(t, e.do(t, http.MethodPatch, base+"u-member", "auth-member", `{"role":"admin"}`), http.StatusForbidden)
	expectStatus(t, e.do(t, http.MethodPatch, base+"u-member", "auth-owner", `{"role":"root"}`), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodPatch, base+"u-member", "auth-owner", `{"role":"admin"}`), http.StatusOK)

	w := e.do(t, http.MethodDelete, base+"u-owner", "auth-owner", "")
	expectStatus(t, w, http.StatusBadRequest)
	if decodeBody(t, w)["error"] != "Cannot remove yourself" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
	expectStatus(t, e.do(t, http.MethodDelete, base+"u-member", "auth-owner", ""), http.StatusOK)
	expectStatus(t, e.do(t, http.MethodDelete, base+"u-member", "auth-owner", ""), http.StatusNotFound)
}

func TestCalls_ListPaginatesWithinTenant(t *testing.T) {
	e := newEnv(t)
	now := time.Now().UTC()
	for i, org := range []string{orgA, orgA, orgA, orgB} {
		e.calls.Put(calls.Call{ID: string(rune('a' + i)), OrganizationID: org, Status: calls.StatusCompleted, CreatedAt: now.Add(-time.Duration(i) * time.Hour)})
	}
	e.calls.Put(calls.Call{ID: "old", OrganizationID: orgA, CreatedAt: now.AddDate(0, 0, -45)})

	expectStatus(t, e.do(t, http.MethodGet, "/api/v1/calls", "auth-member", ""), http.StatusBadRequest)

	w := e.do(t, http.MethodGet, "/api/v1/calls?organizationId="+orgA+"&limit=2", "auth-member", "")
	expectStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)
	page := body["pagination"].(map[string]any)
	if page["total"].(float64) != 3 || page["hasMore"] != true || len(body["calls"].([]any)) != 2 {
		t.Fatalf("unexpected page %s", w.Body.String())
	}

	expectStatus(t, e.do(t, http.MethodGet, "/api/v1/calls?organizationId="+orgA+"&limit=x", "auth-member", ""), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodGet, "/api/v1/calls?organizationId="+orgB, "auth-member", ""), http.StatusForbidden)
	expectStatus(t, e.do(t, http.MethodGet, "/api/v1/calls/d?organizationId="+orgA, "auth-member", ""), http.StatusNotFound)
}

func TestCalls_TranscriptNotFoundAndStats(t *testing.T) {
	e := newEnv(t)
	e.calls.Put(calls.Call{ID: "c1", OrganizationID: orgA, CreatedAt: time.Now().UTC()})

	w := e.do(t, http.MethodGet, "/api/v1/calls/c1/transcript?organizationId="+orgA, "auth-member", "")
	expectStatus(t, w, http.StatusNotFound)
	if decodeBody(t, w)["error"] != "Transcript not found" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	e.reporting.PutDaily(orgA, reporting.DailyUsage{Date: time.Now().UTC(), TotalCalls: 4, TotalMinutes: 9})
	w = e.do(t, http.MethodGet, "/api/v1/calls/stats/overview?organizationId="+orgA+"&period=week", "auth-member", "")
	expectStatus(t, w, http.StatusOK)
	stats := decodeBody(t, w)["stats"].(map[string]any)
	if stats["totalCalls"].(float64) != 4 || stats["period"] != "week" {
		t.Fatalf("unexpected stats %v", stats)
	}
	expectStatus(t, e.do(t, http.MethodGet, "/api/v1/calls/stats/overview?organizationId="+orgA+"&period=year", "auth-member", ""), http.StatusBadRequest)
}

func TestBilling_UsageReportsOverageAndDailyBreakdown(t *testing.T) {
	e := newEnv(t)
	e.reporting.PutDaily(orgA, reporting.DailyUsage{Date: time.Now().UTC().AddDate(0, 0, -1), TotalCalls: 2, TotalMinutes: 5})
	e.reporting.PutDaily(orgA, reporting.DailyUsage{Date: time.Now().UTC().AddDate(0, 0, -30), TotalCalls: 9, TotalMinutes: 90})

	w := e.do(t, http.MethodGet, "/api/v1/billing/usage?organizationId="+orgA, "auth-member", "")
	expectStatus(t, w, http.StatusOK)
	u := decodeBody(t, w)["usage"].(map[string]any)
	if u["overageMinutes"].(float64) != 20 || u["minutesRemaining"].(float64) != 0 || u["percentUsed"].(float64) != 120 {
		t.Fatalf("unexpected usage %v", u)
	}
	if got := u["dailyBreakdown"].([]any); len(got) != 1 {
		t.Fatalf("expected only in-period rows, got %d", len(got))
	}

	w = e.do(t, http.MethodGet, "/api/v1/billing?organizationId="+orgA, "auth-member", "")
	expectStatus(t, w, http.StatusOK)
	b := decodeBody(t, w)["billing"].(map[string]any)
	if b["hasPaymentMethod"] != false || b["usage"].(map[string]any)["minutesIncluded"].(float64) != 100 {
		t.Fatalf("unexpected overview %v", b)
	}
}

func TestBilling_CheckoutCreatesCustomerOnce(t *testing.T) {
	e := newEnv(t)
	body := `{"organizationId":"` + orgA + `","priceId":"price_m"}`

	expectStatus(t, e.do(t, http.MethodPost, "/api/v1/billing/checkout", "auth-member", body), http.StatusForbidden)

	for i := 0; i < 2; i++ {
		w := e.do(t, http.MethodPost, "/api/v1/billing/checkout", "auth-owner", body)
		expectStatus(t, w, http.StatusOK)
		if decodeBody(t, w)["checkoutUrl"] != "https://checkout.stripe.test/session" {
			t.Fatalf("unexpected body %s", w.Body.String())
		}
	}
	if e.gateway.customers != 1 {
		t.Fatalf("expected one customer, got %d", e.gateway.customers)
	}
	last := e.gateway.checkouts[len(e.gateway.checkouts)-1]
	if last.CustomerID != "cus_test" || last.SuccessURL != "https://app.callflex.test/dashboard/billing?success=true" {
		t.Fatalf("unexpected checkout request %+v", last)
	}

	w := e.do(t, http.MethodPost, "/api/v1/billing/checkout", "auth-owner", `{"organizationId":"`+orgA+`"}`)
	expectStatus(t, w, http.StatusBadRequest)
	fields, _ := decodeBody(t, w)["fields"].(map[string]any)
	if fields["priceId"] != "required" {
		t.Fatalf("expected priceId field error, got %s", w.Body.String())
	}
}

func TestBilling_PortalAndInvoicesWithoutCustomer(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/billing/portal", "auth-owner", `{"organizationId":"`+orgA+`"}`)
	expectStatus(t, w, http.StatusBadRequest)
	if decodeBody(t, w)["error"] != "No billing account found" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	w = e.do(t, http.MethodGet, "/api/v1/billing/invoices?organizationId="+orgA, "auth-member", "")
	expectStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `"invoices":[]`) {
		t.Fatalf("expected empty invoice list, got %s", w.Body.String())
	}
}

func TestAssistants_CreateValidatesAndRendersTemplate(t *testing.T) {
	e := newEnv(t)
	first := "Thanks for calling {{business_name}}"
	tplID := "33333333-3333-4333-8333-333333333333"
	e.templates.Put(templates.Template{ID: tplID, Slug: "dental", SystemPrompt: "You work for {{business_name}}.", FirstMessage: &first, IsActive: true})

	w := e.do(t, http.MethodPost, "/api/v1/assistants", "auth-member", `{"organizationId":"`+orgA+`"}`)
	expectStatus(t, w, http.StatusBadRequest)
	fields, _ := decodeBody(t, w)["fields"].(map[string]any)
	if fields["name"] != "required" {
		t.Fatalf("expected name field error, got %s", w.Body.String())
	}

	body := `{"organizationId":"` + orgA + `","templateId":"` + tplID + `","name":"Front desk","variableValues":{"business_name":"Acme"}}`
	w = e.do(t, http.MethodPost, "/api/v1/assistants", "auth-member", body)
	expectStatus(t, w, http.StatusCreated)
	a := decodeBody(t, w)["assistant"].(map[string]any)
	if a["system_prompt"] != "You work for Acme." || a["status"] != "draft" {
		t.Fatalf("unexpected assistant %v", a)
	}

	w = e.do(t, http.MethodPost, "/api/v1/assistants?organizationId="+orgA, "auth-member", `{"organizationId":"`+orgB+`","name":"x"}`)
	expectStatus(t, w, http.StatusForbidden)
}

func TestAssistants_RowLevelAuthorization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	foreign, _ := e.assistants.Create(ctx, assistants.Assistant{OrganizationID: orgB, Name: "theirs", Status: assistants.StatusDraft})
	own, _ := e.assistants.Create(ctx, assistants.Assistant{OrganizationID: orgA, Name: "ours", Status: assistants.StatusDraft})

	expectStatus(t, e.do(t, http.MethodGet, "/api/v1/assistants/"+foreign.ID, "auth-owner", ""), http.StatusForbidden)
	expectStatus(t, e.do(t, http.MethodGet, "/api/v1/assistants/nope", "auth-owner", ""), http.StatusNotFound)
	expectStatus(t, e.do(t, http.MethodDelete, "/api/v1/assistants/"+own.ID, "auth-member", ""), http.StatusForbidden)

	w := e.do(t, http.MethodPost, "/api/v1/assistants/"+own.ID+"/sync", "auth-member", "")
	expectStatus(t, w, http.StatusOK)
	w = e.do(t, http.MethodPatch, "/api/v1/assistants/"+own.ID, "auth-member", `{"system_prompt":"new prompt"}`)
	expectStatus(t, w, http.StatusOK)
	if a := decodeBody(t, w)["assistant"].(map[string]any); a["vapi_synced_at"] != nil {
		t.Fatalf("prompt change must clear sync marker: %v", a)
	}

	expectStatus(t, e.do(t, http.MethodDelete, "/api/v1/assistants/"+own.ID, "auth-owner", ""), http.StatusOK)
}

func TestPhoneNumbers_ProvisionRespectsPlanLimit(t *testing.T) {
	e := newEnv(t)
	provision := func(user, number string) *httptest.ResponseRecorder {
		return e.do(t, http.MethodPost, "/api/v1/phone-numbers", user, `{"organizationId":"`+orgA+`","phoneNumber":"`+number+`"}`)
	}

	expectStatus(t, provision("auth-member", "+14155550100"), http.StatusForbidden)
	expectStatus(t, provision("auth-owner", "4155550100"), http.StatusBadRequest)
	expectStatus(t, provision("auth-owner", "+14155550100"), http.StatusCreated)

	w := provision("auth-owner", "+14155550101")
	expectStatus(t, w, http.StatusForbidden)
	if decodeBody(t, w)["error"] != "Phone number limit reached. Please upgrade your plan." {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	w = e.do(t, http.MethodPost, "/api/v1/phone-numbers/search", "auth-member", `{"organizationId":"`+orgA+`","areaCode":"415","limit":2}`)
	expectStatus(t, w, http.StatusOK)
	found := decodeBody(t, w)["availableNumbers"].([]any)
	if len(found) != 2 || found[0].(map[string]any)["phoneNumber"] != "+14155550101" {
		t.Fatalf("provisioned number must not be offered: %v", found)
	}
}

func TestOrganizationEvents_StreamsBroadcasts(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/organizations/"+orgA+"/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+e.token(t, "auth-member"))
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.router.ServeHTTP(w, req)
	}()

	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	sent := 0
loop:
	for {
		select {
		case <-deadline:
			break loop
		case <-tick.C:
			_ = e.realtime.Broadcast(context.Background(), orgA, "call_started", map[string]string{"callId": "c1"})
			if sent++; sent == 20 {
				break loop
			}
		}
	}
	cancel()
	<-done

	if got := w.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(w.Body.String(), "event:call_started") || !strings.Contains(w.Body.String(), `"callId":"c1"`) {
		t.Fatalf("expected broadcast in stream, got %q", w.Body.String())
	}
}

func TestHealth_ReportsFailingDependency(t *testing.T) {
	e := newEnv(t)
	e.router.GET("/health", Health(map[string]Check{
		"db":    func(ctx context.Context) error { return nil },
		"redis": func(ctx context.Context) error { return context.DeadlineExceeded },
	}))

	w := e.do(t, http.MethodGet, "/health", "", "")
	expectStatus(t, w, http.StatusServiceUnavailable)
	body := decodeBody(t, w)
	if body["status"] != "unhealthy" || body["checks"].(map[string]any)["db"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}
