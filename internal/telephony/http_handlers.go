package telephony

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"callflex/internal/idempotency"
	"callflex/pkg/logger"
)

// StatusHandler serves the Twilio callbacks behind signature.Require.
// Twilio expects a plain 2xx body; anything else triggers its retry.
type StatusHandler struct {
	Ingestor *StatusIngestor
}

func (h StatusHandler) HandleCallStatus(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseTwilioStatus(c.Request)
	if err != nil {
		log.Warn("twilio status parse failed", "err", err)
		c.String(http.StatusBadRequest, "invalid form")
		return
	}
	log = log.With("call_sid", form.CallSid, "call_status", form.CallStatus)

	applied, err := h.Ingestor.Apply(c.Request.Context(), form)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidRequest):
		c.String(http.StatusBadRequest, "invalid form")
		return
	case errors.Is(err, idempotency.ErrInFlight):
		c.String(http.StatusConflict, "in flight")
		return
	default:
		logger.CaptureError(c.Request.Context(), "twilio: status update", err, "call_sid", form.CallSid)
		c.String(http.StatusInternalServerError, "error")
		return
	}

	log.Info("twilio call status", "applied", applied)
	c.String(http.StatusOK, "OK")
}

// HandleSMSStatus only records delivery outcomes in the log.
func (h StatusHandler) HandleSMSStatus(c *gin.Context) {
	form, err := ParseTwilioSMSStatus(c.Request)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid form")
		return
	}
	logger.FromGin(c).Info("twilio sms status",
		"message_sid", form.MessageSid,
		"message_status", form.MessageStatus,
		"error_code", form.ErrorCode,
	)
	c.String(http.StatusOK, "OK")
}
