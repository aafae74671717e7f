package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var ErrInvalidUsage = errors.New("usage: invalid request")

// Counter is the storage primitive behind the accountant. Implementations must
// apply delta in one statement and return the resulting total; the tenants
// repository does.
type Counter interface {
	IncrementMinutesUsed(ctx context.Context, orgID string, delta int) (int, error)
}

// Accountant converts call durations into billable minutes and records them
// against the tenant's current period. It never blocks on overage.
type Accountant struct {
	counter Counter
}

func NewAccountant(counter Counter) *Accountant {
	return &Accountant{counter: counter}
}

type Charge struct {
	Minutes      int `json:"minutes"`
	TotalMinutes int `json:"total_minutes"`
}

// Record adds the billable minutes of a call lasting durationSeconds. The
// engine reports fractional seconds; minutes are taken from the raw value.
func (a *Accountant) Record(ctx context.Context, orgID string, durationSeconds float64) (Charge, error) {
	return a.RecordMinutes(ctx, orgID, BillableMinutes(durationSeconds))
}

// RecordMinutes adds already-billable minutes. Zero records nothing and does
// not touch storage.
func (a *Accountant) RecordMinutes(ctx context.Context, orgID string, minutes int) (Charge, error) {
	if orgID == "" || minutes < 0 {
		return Charge{}, ErrInvalidUsage
	}
	if minutes == 0 {
		return Charge{}, nil
	}
	total, err := a.counter.IncrementMinutesUsed(ctx, orgID, minutes)
	if err != nil {
		return Charge{}, fmt.Errorf("record %d minutes: %w", minutes, err)
	}
	return Charge{Minutes: minutes, TotalMinutes: total}, nil
}

// BillableMinutes is ceil(d/60), 0 for d <= 0.
func BillableMinutes(durationSeconds float64) int {
	if durationSeconds <= 0 || math.IsNaN(durationSeconds) {
		return 0
	}
	return int(math.Ceil(durationSeconds / 60))
}
