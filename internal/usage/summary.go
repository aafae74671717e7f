package usage

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultOverageRate applies when a plan has no per-minute overage rate.
var DefaultOverageRate = decimal.NewFromInt(8)

type Summary struct {
	MinutesUsed      int             `json:"minutesUsed"`
	MinutesIncluded  int             `json:"minutesIncluded"`
	MinutesRemaining int             `json:"minutesRemaining"`
	OverageMinutes   int             `json:"overageMinutes"`
	OverageCost      decimal.Decimal `json:"overageCost"`
	PeriodStart      *time.Time      `json:"periodStart"`
	PeriodEnd        *time.Time      `json:"periodEnd"`
	PercentUsed      int             `json:"percentUsed"`
}

type SummaryInput struct {
	MinutesUsed     int
	MinutesIncluded int
	OverageRate     decimal.NullDecimal
	PeriodStart     *time.Time
	PeriodEnd       *time.Time
}

func Summarize(in SummaryInput) Summary {
	used := in.MinutesUsed
	if used < 0 {
		used = 0
	}
	included := in.MinutesIncluded
	if included < 0 {
		included = 0
	}

	rate := DefaultOverageRate
	if in.OverageRate.Valid && in.OverageRate.Decimal.IsPositive() {
		rate = in.OverageRate.Decimal
	}

	overage := max(0, used-included)
	s := Summary{
		MinutesUsed:      used,
		MinutesIncluded:  included,
		MinutesRemaining: max(0, included-used),
		OverageMinutes:   overage,
		OverageCost:      rate.Mul(decimal.NewFromInt(int64(overage))),
		PeriodStart:      in.PeriodStart,
		PeriodEnd:        in.PeriodEnd,
	}
	if included > 0 {
		s.PercentUsed = int(math.Round(float64(used) / float64(included) * 100))
	}
	return s
}
