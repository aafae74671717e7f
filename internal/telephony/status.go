package telephony

import (
	"context"
	"errors"
	"fmt"

	"callflex/internal/calls"
	"callflex/internal/idempotency"
	"callflex/pkg/logger"
)

// MapStatus folds Twilio's call statuses onto ours. Statuses outside the
// known vocabulary pass through unchanged with ok false.
func MapStatus(twilioStatus string) (calls.Status, bool) {
	switch twilioStatus {
	case "queued", "ringing", "in-progress":
		return calls.StatusInProgress, true
	case "completed":
		return calls.StatusCompleted, true
	case "busy", "failed", "no-answer", "canceled":
		return calls.StatusFailed, true
	default:
		return calls.Status(twilioStatus), false
	}
}

type CallStatusStore interface {
	FindByProviderSID(ctx context.Context, sid string) (calls.Call, error)
	UpdateStatus(ctx context.Context, ref calls.Ref, status calls.Status, durationSeconds *int) error
}

// StatusIngestor applies carrier status callbacks to calls.
type StatusIngestor struct {
	calls  CallStatusStore
	ledger idempotency.Ledger
}

func NewStatusIngestor(c CallStatusStore, ledger idempotency.Ledger) *StatusIngestor {
	return &StatusIngestor{calls: c, ledger: ledger}
}

// Apply is a silent no-op for unknown calls and unmapped statuses.
// It reports whether the call row was changed.
func (s *StatusIngestor) Apply(ctx context.Context, f TwilioStatusForm) (bool, error) {
	if f.CallSid == "" || f.CallStatus == "" {
		return false, fmt.Errorf("%w: CallSid and CallStatus are required", ErrInvalidRequest)
	}
	status, ok := MapStatus(f.CallStatus)
	if !ok {
		logger.From(ctx).Warn("twilio status stored unmapped", "call_sid", f.CallSid, "call_status", f.CallStatus)
	}

	call, err := s.calls.FindByProviderSID(ctx, f.CallSid)
	if errors.Is(err, calls.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find call %s: %w", f.CallSid, err)
	}

	k := idempotency.Key{Provider: idempotency.ProviderTwilio, EventID: f.CallSid, Step: f.CallStatus}
	return s.ledger.Once(ctx, k, func(ctx context.Context) error {
		return s.calls.UpdateStatus(ctx, call.Ref(), status, f.CallDuration)
	})
}
