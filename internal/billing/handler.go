package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"callflex/internal/idempotency"
	"callflex/internal/signature"
	"callflex/pkg/logger"
)

// PendingEvent is a verified Stripe event waiting for its tenant to resolve.
type PendingEvent struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Enqueuer is the write side of the retry queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, item any) error
}

// Handler serves POST /api/webhooks/stripe behind signature.Require.
type Handler struct {
	Reconciler *Reconciler
	Retry      Enqueuer
}

func (h Handler) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromGin(c)

	body, ok := signature.RawBody(c)
	if !ok {
		var err error
		if body, err = io.ReadAll(io.LimitReader(c.Request.Body, signature.MaxBodyBytes)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read body"})
			return
		}
	}

	ev, err := Decode(body)
	if err != nil {
		log.Warn("stripe: malformed event", "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}
	log = log.With("stripe_event_id", ev.EventID(), "event_type", ev.EventType())
	log.Info("stripe webhook")

	out, err := h.Reconciler.Reconcile(logger.With(ctx, log), ev)
	switch {
	case err == nil:
	case errors.Is(err, ErrTenantUnresolved):
		p := PendingEvent{EventID: ev.EventID(), EventType: ev.EventType(), Payload: body, EnqueuedAt: time.Now().UTC()}
		if qerr := h.Retry.Enqueue(ctx, p); qerr != nil {
			logger.CaptureError(ctx, "stripe: enqueue unresolved event", qerr, "stripe_event_id", ev.EventID())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
			return
		}
		log.Warn("stripe event queued for retry", "err", err)
		c.JSON(http.StatusOK, gin.H{"received": true, "queued": true})
		return
	case errors.Is(err, idempotency.ErrInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "Event is already being processed"})
		return
	default:
		logger.CaptureError(ctx, "stripe: reconcile", err, "stripe_event_id", ev.EventID())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		return
	}

	switch {
	case out.Ignored:
		log.Info("unhandled stripe event")
	case out.Applied:
		log.Info("stripe event reconciled", "organization_id", out.OrganizationID, "usage_reset", out.UsageReset)
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
