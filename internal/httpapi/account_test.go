package httpapi

import (
	"net/http"
	"strings"
	"testing"
)

func TestAuthMe_ReturnsUserAndOrganizations(t *testing.T) {
	e := newEnv(t)

	expectStatus(t, e.do(t, http.MethodGet, "/api/v1/auth/me", "", ""), http.StatusUnauthorized)

	w := e.do(t, http.MethodGet, "/api/v1/auth/me", "auth-owner", "")
	expectStatus(t, w, http.StatusOK)
	body := decodeBody(t, w)
	if body["user"].(map[string]any)["id"] != "u-owner" {
		t.Fatalf("unexpected user %v", body["user"])
	}
	orgs := body["organizations"].([]any)
	if len(orgs) != 1 {
		t.Fatalf("expected one organization, got %d", len(orgs))
	}
	org := orgs[0].(map[string]any)
	if org["id"] != orgA || org["role"] != "owner" {
		t.Fatalf("unexpected organization entry %v", org)
	}
}

func TestSignup_ProvisionsTrialOwnerOnce(t *testing.T) {
	e := newEnv(t)
	const signup = `{"fullName":"New Owner","organizationName":"New Clinic","email":"New@Clinic.test"}`

	// No users row yet: the tenant API refuses, signup accepts.
	expectStatus(t, e.do(t, http.MethodGet, "/api/v1/auth/me", "auth-new", ""), http.StatusUnauthorized)
	expectStatus(t, e.do(t, http.MethodPost, "/api/v1/auth/signup", "", signup), http.StatusUnauthorized)
	expectStatus(t, e.do(t, http.MethodPost, "/api/v1/auth/signup", "auth-new", `{"fullName":"New Owner","organizationName":"New Clinic"}`), http.StatusBadRequest)

	w := e.do(t, http.MethodPost, "/api/v1/auth/signup", "auth-new", signup)
	expectStatus(t, w, http.StatusCreated)
	body := decodeBody(t, w)
	org := body["organization"].(map[string]any)
	if org["status"] != "trial" || !strings.HasPrefix(org["slug"].(string), "new-clinic-") || org["trial_ends_at"] == nil {
		t.Fatalf("unexpected organization %v", org)
	}
	if body["user"].(map[string]any)["email"] != "new@clinic.test" {
		t.Fatalf("unexpected user %v", body["user"])
	}

	w = e.do(t, http.MethodGet, "/api/v1/auth/me", "auth-new", "")
	expectStatus(t, w, http.StatusOK)
	orgs := decodeBody(t, w)["organizations"].([]any)
	if len(orgs) != 1 || orgs[0].(map[string]any)["role"] != "owner" {
		t.Fatalf("expected the new owner membership, got %v", orgs)
	}

	expectStatus(t, e.do(t, http.MethodPost, "/api/v1/auth/signup", "auth-new", signup), http.StatusConflict)
	expectStatus(t, e.do(t, http.MethodPost, "/api/v1/auth/signup", "auth-owner", signup), http.StatusConflict)
}

func TestInviteMember_ManagersOnly(t *testing.T) {
	e := newEnv(t)
	path := "/api/v1/organizations/" + orgA + "/members"

	expectStatus(t, e.do(t, http.MethodPost, path, "auth-member", `{"email":"new@acme.test"}`), http.StatusForbidden)
	expectStatus(t, e.do(t, http.MethodPost, path, "auth-out", `{"email":"new@acme.test"}`), http.StatusForbidden)
	expectStatus(t, e.do(t, http.MethodPost, path, "auth-owner", `{"email":"not-an-email"}`), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodPost, path, "auth-owner", `{"email":"new@acme.test","role":"owner"}`), http.StatusBadRequest)
	expectStatus(t, e.do(t, http.MethodPost, path, "auth-owner", `{"email":"Member@acme.test"}`), http.StatusConflict)

	w := e.do(t, http.MethodPost, path, "auth-owner", `{"email":"new@acme.test"}`)
	expectStatus(t, w, http.StatusOK)
	inv := decodeBody(t, w)["invitation"].(map[string]any)
	if inv["status"] != "pending" || inv["role"] != "member" || inv["email"] != "new@acme.test" || inv["invited_by"] != "u-owner" {
		t.Fatalf("unexpected invitation %v", inv)
	}
}
