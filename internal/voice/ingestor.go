package voice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callflex/internal/actions"
	"callflex/internal/calls"
	"callflex/internal/idempotency"
	"callflex/internal/realtime"
	"callflex/internal/usage"
	"callflex/pkg/logger"
	"callflex/pkg/utils"
)

// Call-end steps, applied in this order. Each is recorded in the ledger
// separately so a redelivery only re-runs what did not apply.
const (
	StepCallStart  = "call-start"
	StepComplete   = "complete"
	StepTranscript = "transcript"
	StepRecording  = "recording"
	StepUsage      = "usage"
)

type CallRepository interface {
	Create(ctx context.Context, c calls.Call) (calls.Call, error)
	FindByVAPIID(ctx context.Context, orgID, vapiCallID string) (calls.Call, error)
	Complete(ctx context.Context, ref calls.Ref, c calls.Completion) error
	InsertTranscript(ctx context.Context, t calls.Transcript) error
	InsertRecording(ctx context.Context, r calls.Recording) error
}

type ActionExecutor interface {
	Execute(ctx context.Context, req actions.Request) (actions.Result, error)
}

type Ingestor struct {
	calls       CallRepository
	accountant  *usage.Accountant
	ledger      idempotency.Ledger
	broadcaster realtime.Broadcaster
	executor    ActionExecutor
	clock       func() time.Time
}

func NewIngestor(callRepo CallRepository, accountant *usage.Accountant, ledger idempotency.Ledger, b realtime.Broadcaster, exec ActionExecutor) *Ingestor {
	return &Ingestor{
		calls:       callRepo,
		accountant:  accountant,
		ledger:      ledger,
		broadcaster: b,
		executor:    exec,
		clock:       time.Now,
	}
}

func key(eventID, step string) idempotency.Key {
	return idempotency.Key{Provider: idempotency.ProviderVAPI, EventID: eventID, Step: step}
}

// CallStarted inserts the call once per voice-engine call id.
func (in *Ingestor) CallStarted(ctx context.Context, orgID string, ev CallStart) error {
	p := ev.Call
	ran, err := in.ledger.Once(ctx, key(p.ID, StepCallStart), func(ctx context.Context) error {
		now := in.clock().UTC()
		_, err := in.calls.Create(ctx, calls.Call{
			OrganizationID: orgID,
			VAPICallID:     &p.ID,
			PhoneNumberID:  optional(p.PhoneNumber.ID),
			AssistantID:    optional(p.Assistant.ID),
			FromNumber:     orUnknown(p.Customer.Number),
			ToNumber:       orUnknown(p.PhoneNumber.Number),
			StartedAt:      &now,
			Status:         calls.StatusInProgress,
			Direction:      calls.DirectionInbound,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("call-start %s: %w", p.ID, err)
	}
	if !ran {
		logger.From(ctx).Info("call-start already applied", "vapi_call_id", p.ID)
		return nil
	}
	in.broadcast(ctx, orgID, realtime.EventCallStarted, map[string]any{
		"callId": p.ID,
		"from":   p.Customer.Number,
	})
	return nil
}

// EndReport says which call-end steps this delivery applied.
type EndReport struct {
	Found   bool
	Applied []string
	Failed  []string
}

// CallEnded runs every step even if an earlier one fails. A non-nil error
// means at least one step must be retried.
func (in *Ingestor) CallEnded(ctx context.Context, orgID string, ev CallEnd) (EndReport, error) {
	p := ev.Call
	log := logger.From(ctx).With("vapi_call_id", p.ID, "organization_id", orgID)

	call, err := in.calls.FindByVAPIID(ctx, orgID, p.ID)
	if errors.Is(err, calls.ErrNotFound) {
		log.Warn("call-end for unknown call; nothing to reconcile")
		in.broadcastEnded(ctx, orgID, p)
		return EndReport{}, nil
	}
	if err != nil {
		return EndReport{}, fmt.Errorf("find call %s: %w", p.ID, err)
	}

	report := EndReport{Found: true}
	var errs []error
	for _, s := range in.endSteps(orgID, call, p) {
		if s.skip {
			continue
		}
		ran, err := in.ledger.Once(ctx, key(p.ID, s.name), s.run)
		if err != nil {
			report.Failed = append(report.Failed, s.name)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			log.Error("call-end step failed", "step", s.name, "err", err)
			continue
		}
		if ran {
			report.Applied = append(report.Applied, s.name)
		}
	}

	if len(report.Applied) > 0 {
		in.broadcastEnded(ctx, orgID, p)
	}
	return report, errors.Join(errs...)
}

type step struct {
	name string
	skip bool
	run  idempotency.Func
}

func (in *Ingestor) endSteps(orgID string, call calls.Call, p CallPayload) []step {
	ref := call.Ref()
	duration := p.DurationSeconds()
	return []step{
		{
			name: StepComplete,
			run: func(ctx context.Context) error {
				cost := p.CostCents()
				return in.calls.Complete(ctx, ref, calls.Completion{
					EndedAt:         in.clock().UTC(),
					DurationSeconds: duration,
					EndedReason:     optional(p.EndedReason),
					Summary:         optional(p.Summary),
					CostCents:       &cost,
				})
			},
		},
		{
			name: StepTranscript,
			skip: p.Transcript == "",
			run: func(ctx context.Context) error {
				t := calls.Transcript{
					CallID:         call.ID,
					CallCreatedAt:  call.CreatedAt,
					OrganizationID: orgID,
					TranscriptText: &p.Transcript,
					Summary:        optional(p.Summary),
				}
				if len(p.Messages) > 0 {
					t.TranscriptSegments = utils.JSONB(p.Messages)
				}
				return in.calls.InsertTranscript(ctx, t)
			},
		},
		{
			name: StepRecording,
			skip: p.RecordingURL == "",
			run: func(ctx context.Context) error {
				return in.calls.InsertRecording(ctx, calls.Recording{
					CallID:          call.ID,
					CallCreatedAt:   call.CreatedAt,
					OrganizationID:  orgID,
					StoragePath:     p.RecordingURL,
					DurationSeconds: &duration,
				})
			},
		},
		{
			name: StepUsage,
			run: func(ctx context.Context) error {
				charge, err := in.accountant.RecordMinutes(ctx, orgID, p.BillableMinutes())
				if err != nil {
					return err
				}
				logger.From(ctx).Info("usage recorded", "organization_id", orgID, "minutes", charge.Minutes, "total_minutes", charge.TotalMinutes)
				return nil
			},
		},
	}
}

// TranscriptUpdated relays a live transcript chunk. Nothing is stored.
func (in *Ingestor) TranscriptUpdated(ctx context.Context, orgID string, ev TranscriptUpdate) {
	in.broadcast(ctx, orgID, realtime.EventTranscriptUpdate, map[string]any{
		"callId":     ev.CallID,
		"transcript": ev.Transcript,
	})
}

// Function runs an in-call function within the caller's deadline.
func (in *Ingestor) Function(ctx context.Context, orgID string, ev FunctionCall) actions.Result {
	res, err := in.executor.Execute(ctx, actions.Request{
		OrganizationID: orgID,
		Name:           ev.Name,
		Parameters:     ev.Parameters,
		VAPICallID:     ev.Call.ID,
	})
	if err != nil {
		logger.CaptureError(ctx, "voice function failed", err, "function", ev.Name, "organization_id", orgID, "vapi_call_id", ev.Call.ID)
	}
	return res
}

func (in *Ingestor) broadcastEnded(ctx context.Context, orgID string, p CallPayload) {
	in.broadcast(ctx, orgID, realtime.EventCallEnded, map[string]any{
		"callId":   p.ID,
		"duration": p.Duration,
		"summary":  p.Summary,
	})
}

// broadcast never fails the webhook.
func (in *Ingestor) broadcast(ctx context.Context, orgID, event string, payload any) {
	if in.broadcaster == nil {
		return
	}
	if err := in.broadcaster.Broadcast(ctx, orgID, event, payload); err != nil {
		logger.From(ctx).Warn("realtime broadcast failed", "event", event, "organization_id", orgID, "err", err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
