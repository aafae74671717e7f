package voice

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"callflex/internal/idempotency"
	"callflex/internal/signature"
	"callflex/internal/tenants"
	"callflex/pkg/logger"
)

type OrganizationReader interface {
	GetOrganization(ctx context.Context, id string) (tenants.Organization, error)
}

// Handler serves POST /api/webhooks/vapi/:organizationId behind signature.Require.
type Handler struct {
	Ingestor        *Ingestor
	Orgs            OrganizationReader
	FunctionTimeout time.Duration
}

func (h Handler) Handle(c *gin.Context) {
	orgID := c.Param("organizationId")
	log := logger.FromGin(c).With("organization_id", orgID)
	ctx := c.Request.Context()

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
		log.Warn("vapi: malformed event", "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}
	log = log.With("event_type", ev.Type())
	log.Info("vapi webhook")

	if _, err := h.Orgs.GetOrganization(ctx, orgID); err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
			return
		}
		logger.CaptureError(ctx, "vapi: load organization", err, "organization_id", orgID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		return
	}

	switch e := ev.(type) {
	case CallStart:
		if err := h.Ingestor.CallStarted(ctx, orgID, e); err != nil {
			h.fail(c, "vapi: call-start", err)
			return
		}
	case CallEnd:
		report, err := h.Ingestor.CallEnded(ctx, orgID, e)
		if err != nil {
			h.fail(c, "vapi: call-end", err)
			return
		}
		log.Info("vapi call-end reconciled", "found", report.Found, "applied", report.Applied)
	case TranscriptUpdate:
		h.Ingestor.TranscriptUpdated(ctx, orgID, e)
	case FunctionCall:
		timeout := h.FunctionTimeout
		if timeout <= 0 {
			timeout = 4 * time.Second
		}
		fctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		c.JSON(http.StatusOK, gin.H{"result": h.Ingestor.Function(fctx, orgID, e)})
		return
	default:
		log.Info("vapi: unhandled event type")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h Handler) fail(c *gin.Context, msg string, err error) {
	ctx := c.Request.Context()
	if errors.Is(err, idempotency.ErrInFlight) {
		logger.FromGin(c).Warn(msg+": duplicate delivery in flight", "err", err)
		c.JSON(http.StatusConflict, gin.H{"error": "Event is already being processed"})
		return
	}
	logger.CaptureError(ctx, msg, err, "organization_id", c.Param("organizationId"))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
}
