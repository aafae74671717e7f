package reporting

import (
	"context"
	"fmt"
	"time"
)

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service { return &Service{repo: repo, clock: time.Now} }

// ParsePeriod defaults to today.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "":
		return PeriodToday, nil
	case PeriodToday, PeriodWeek, PeriodMonth:
		return Period(s), nil
	default:
		return "", fmt.Errorf("%w: period must be today, week or month", ErrInvalidRequest)
	}
}

// PeriodStart is UTC midnight for today, otherwise a rolling 7 days or one month back.
func PeriodStart(p Period, now time.Time) time.Time {
	now = now.UTC()
	switch p {
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodMonth:
		return now.AddDate(0, -1, 0)
	default:
		return day(now)
	}
}

// Overview sums daily_usage since the period start and counts calls still in progress.
func (s *Service) Overview(ctx context.Context, orgID string, p Period) (OverviewStats, error) {
	if orgID == "" {
		return OverviewStats{}, fmt.Errorf("%w: organization id required", ErrInvalidRequest)
	}
	start := PeriodStart(p, s.clock())

	rows, err := s.repo.DailyUsage(ctx, orgID, start, time.Time{})
	if err != nil {
		return OverviewStats{}, fmt.Errorf("daily usage: %w", err)
	}
	out := OverviewStats{Period: p}
	for _, r := range rows {
		out.TotalCalls += r.TotalCalls
		out.TotalMinutes += r.TotalMinutes
	}

	if out.ActiveCalls, err = s.repo.CountActiveCalls(ctx, orgID, start); err != nil {
		return OverviewStats{}, fmt.Errorf("active calls: %w", err)
	}
	return out, nil
}

// Daily returns the breakdown since from (the billing period start), oldest first.
func (s *Service) Daily(ctx context.Context, orgID string, from time.Time) ([]DailyUsage, error) {
	if from.IsZero() {
		from = s.clock()
	}
	return s.repo.DailyUsage(ctx, orgID, from, time.Time{})
}
