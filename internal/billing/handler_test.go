package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79/webhook"

	"callflex/internal/queue"
	"callflex/internal/signature"
	"callflex/internal/tenants"
)

const whsec = "whsec_test"

func newRouter(t *testing.T, e env, q queue.Queue) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := Handler{Reconciler: e.rec, Retry: q}
	r.POST("/api/webhooks/stripe", signature.Require(signature.Stripe{Secret: whsec}, http.StatusBadRequest), h.Handle)
	return r
}

func post(r *gin.Engine, body []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if header != "" {
		req.Header.Set(signature.StripeHeader, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sign(body []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    whsec,
		Timestamp: time.Now(),
	}).Header
}

func TestHandler_RejectsBadSignature(t *testing.T) {
	e := newEnv(t)
	r := newRouter(t, e, queue.NewMemoryQueue(4))

	w := post(r, checkoutBody(t, "evt_1"), "t=1,v1=deadbeef")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if e.org(t).Status != tenants.StatusTrial {
		t.Fatalf("rejected webhook must not change state")
	}

	w = post(r, checkoutBody(t, "evt_1"), "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without header, got %d", w.Code)
	}
}

func TestHandler_ReconcilesSignedEvent(t *testing.T) {
	e := newEnv(t)
	r := newRouter(t, e, queue.NewMemoryQueue(4))

	body := checkoutBody(t, "evt_ok")
	w := post(r, body, sign(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if resp["received"] != true || resp["queued"] != nil {
		t.Fatalf("unexpected response: %v", resp)
	}
	if e.org(t).Status != tenants.StatusActive {
		t.Fatalf("expected active after checkout")
	}
}

func TestHandler_QueuesUnresolvedEvent(t *testing.T) {
	e := newEnv(t)
	q := queue.NewMemoryQueue(4)
	r := newRouter(t, e, q)

	body := invoiceBody(t, "evt_orphan", "invoice.paid", "subscription_cycle", nextStart)
	w := post(r, body, sign(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["queued"] != true {
		t.Fatalf("expected queued:true, got %v", resp)
	}

	items, err := q.DequeueWithTimeout(context.Background(), 5, 10*time.Millisecond)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected one queued item, got %d (%v)", len(items), err)
	}
	var p PendingEvent
	if err := json.Unmarshal(items[0], &p); err != nil {
		t.Fatalf("bad pending event: %v", err)
	}
	if p.EventID != "evt_orphan" || p.EventType != "invoice.paid" {
		t.Fatalf("unexpected pending event: %+v", p)
	}
}

func TestHandler_AcknowledgesUnhandledType(t *testing.T) {
	e := newEnv(t)
	r := newRouter(t, e, queue.NewMemoryQueue(4))

	body := stripeEventBody(t, "evt_other", "customer.created", map[string]any{"id": "cus_9"})
	w := post(r, body, sign(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHandler_GatewayFailureIs500(t *testing.T) {
	e := newEnv(t)
	delete(e.gateway.subs, "sub_1")
	r := newRouter(t, e, queue.NewMemoryQueue(4))

	body := checkoutBody(t, "evt_gw")
	w := post(r, body, sign(body))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
