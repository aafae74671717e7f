package idempotency

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrInvalidKey = errors.New("idempotency: provider, event id and step are required")
	// ErrInFlight is returned when another worker holds the same key and has not finished.
	// Callers answer with a retryable status so the provider redelivers.
	ErrInFlight = errors.New("idempotency: step already in flight")
)

const (
	ProviderVAPI   = "vapi"
	ProviderStripe = "stripe"
	ProviderTwilio = "twilio"
)

// Key identifies one side effect of one provider event.
type Key struct {
	Provider string
	EventID  string
	Step     string
}

func (k Key) Valid() bool {
	return k.Provider != "" && k.EventID != "" && k.Step != ""
}

func (k Key) String() string {
	return strings.Join([]string{k.Provider, k.EventID, k.Step}, ":")
}

// Func is the side effect guarded by a key. The ctx it receives may carry a
// database transaction; repositories that use utils.Conn join it.
type Func func(ctx context.Context) error

// Ledger records which (provider, event, step) triples have been applied.
//
// Once runs fn unless k is already recorded. The mark is kept only if fn
// succeeds, so a failed step is retried on redelivery. ran reports whether fn
// executed and succeeded in this call.
type Ledger interface {
	Once(ctx context.Context, k Key, fn Func) (ran bool, err error)
}
