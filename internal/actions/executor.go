package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"callflex/internal/calls"
	"callflex/internal/routing"
	"callflex/internal/tenants"
	"callflex/pkg/logger"
	"callflex/pkg/utils"
)

// Function names the voice engine may invoke mid-call.
const (
	FnTransferCall     = "transferCall"
	FnTakeMessage      = "takeMessage"
	FnScheduleCallback = "scheduleCallback"
)

// ApologyMessage is spoken when an action could not be recorded.
const ApologyMessage = "I'm sorry, something went wrong on my end and I couldn't complete that. Please try again in a moment."

var (
	ErrUnknownCall    = errors.New("actions: call not found for organization")
	ErrInvalidRequest = errors.New("actions: organization and function name are required")
)

type Request struct {
	OrganizationID string
	Name           string
	Parameters     map[string]any
	// VAPICallID identifies the in-flight call the action belongs to.
	VAPICallID string
}

type Result struct {
	Success  bool      `json:"success"`
	Message  string    `json:"message"`
	Transfer *Transfer `json:"transfer,omitempty"`
}

type Transfer struct {
	Number string `json:"number"`
}

type OrganizationReader interface {
	GetOrganization(ctx context.Context, id string) (tenants.Organization, error)
}

type CallStore interface {
	FindByVAPIID(ctx context.Context, orgID, vapiCallID string) (calls.Call, error)
	AppendAction(ctx context.Context, a calls.Action) error
}

// Executor runs in-call functions. A success result is returned only after the
// CallAction row is written; a failed write yields success=false and the error.
type Executor struct {
	orgs  OrganizationReader
	calls CallStore
	clock func() time.Time
}

func NewExecutor(orgs OrganizationReader, callStore CallStore) *Executor {
	return &Executor{orgs: orgs, calls: callStore, clock: time.Now}
}

func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	if req.OrganizationID == "" || req.Name == "" {
		return Result{Success: false, Message: "Unknown function"}, ErrInvalidRequest
	}
	switch req.Name {
	case FnTransferCall:
		return e.transferCall(ctx, req)
	case FnTakeMessage:
		return e.takeMessage(ctx, req)
	case FnScheduleCallback:
		return e.scheduleCallback(ctx, req)
	default:
		logger.From(ctx).Info("unknown voice function", "function", req.Name, "organization_id", req.OrganizationID)
		return Result{Success: false, Message: "Unknown function"}, nil
	}
}

func (e *Executor) transferCall(ctx context.Context, req Request) (Result, error) {
	destination := param(req.Parameters, "destination")

	org, err := e.orgs.GetOrganization(ctx, req.OrganizationID)
	if err != nil {
		return apology(), fmt.Errorf("load organization: %w", err)
	}
	settings, err := org.ParsedSettings()
	if err != nil {
		logger.From(ctx).Warn("organization settings unreadable; no transfer numbers", "organization_id", org.ID, "err", err)
	}
	d := routing.NewTransferTable(settings.TransferNumbers).Resolve(destination)
	if d.Action != routing.ActionConnect {
		return Result{
			Success: false,
			Message: fmt.Sprintf("Sorry, I don't have a %s number configured. Let me take a message instead.", destination),
		}, nil
	}

	data := map[string]any{
		"destination":  destination,
		"phone_number": d.ConnectTo,
		"reason":       req.Parameters["reason"],
	}
	if err := e.record(ctx, req, calls.ActionTransfer, calls.ActionCompleted, data); err != nil {
		return apology(), err
	}
	return Result{
		Success:  true,
		Message:  fmt.Sprintf("I'm transferring you to %s now. Please hold.", destination),
		Transfer: &Transfer{Number: d.ConnectTo},
	}, nil
}

func (e *Executor) takeMessage(ctx context.Context, req Request) (Result, error) {
	if err := e.record(ctx, req, calls.ActionMessageTaken, calls.ActionCompleted, req.Parameters); err != nil {
		return apology(), err
	}
	// TODO: deliver the message by SMS/email once a notification provider is chosen.
	logger.From(ctx).Info("message taken", "organization_id", req.OrganizationID, "vapi_call_id", req.VAPICallID)

	msg := "I've taken your message"
	if forWhom := param(req.Parameters, "messageFor"); forWhom != "" {
		msg += " for " + forWhom
	}
	return Result{Success: true, Message: msg + ". Someone will get back to you soon."}, nil
}

func (e *Executor) scheduleCallback(ctx context.Context, req Request) (Result, error) {
	phone := param(req.Parameters, "phoneNumber")
	if phone == "" {
		// A prompt for the caller, not a failure.
		return Result{Success: false, Message: "I need a phone number to schedule a callback. What number should we call you on?"}, nil
	}
	if err := e.record(ctx, req, calls.ActionCallbackScheduled, calls.ActionPending, req.Parameters); err != nil {
		return apology(), err
	}

	when := "as soon as possible"
	if t := param(req.Parameters, "preferredTime"); t != "" {
		when = "around " + t
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Perfect, I've scheduled a callback for you. Someone will call you at %s %s.", phone, when),
	}, nil
}

func (e *Executor) record(ctx context.Context, req Request, typ calls.ActionType, status calls.ActionStatus, data any) error {
	if req.VAPICallID == "" {
		return ErrUnknownCall
	}
	call, err := e.calls.FindByVAPIID(ctx, req.OrganizationID, req.VAPICallID)
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			return ErrUnknownCall
		}
		return fmt.Errorf("find call: %w", err)
	}

	now := e.clock().UTC()
	a := calls.Action{
		CallID:         call.ID,
		CallCreatedAt:  call.CreatedAt,
		OrganizationID: req.OrganizationID,
		ActionType:     typ,
		ActionData:     utils.MustJSONB(data),
		Status:         status,
		TriggeredAt:    now,
	}
	if status == calls.ActionCompleted {
		a.CompletedAt = &now
	}
	if err := e.calls.AppendAction(ctx, a); err != nil {
		return fmt.Errorf("record %s: %w", typ, err)
	}
	return nil
}

func apology() Result {
	return Result{Success: false, Message: ApologyMessage}
}

func param(p map[string]any, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
