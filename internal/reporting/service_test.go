package reporting

import (
	"context"
	"errors"
	"testing"
	"time"
)

var now = time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC)

func newService(repo Repository) *Service {
	s := NewService(repo)
	s.clock = func() time.Time { return now }
	return s
}

func seed() *MemoryRepo {
	r := NewMemoryRepo()
	r.PutDaily("org1", DailyUsage{Date: time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), TotalCalls: 4, TotalMinutes: 11})
	r.PutDaily("org1", DailyUsage{Date: time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), TotalCalls: 2, TotalMinutes: 5})
	r.PutDaily("org1", DailyUsage{Date: time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC), TotalCalls: 10, TotalMinutes: 30})
	r.PutDaily("org2", DailyUsage{Date: time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), TotalCalls: 99, TotalMinutes: 99})
	r.PutActive(ActiveCall{OrganizationID: "org1", CreatedAt: now.Add(-10 * time.Minute)})
	r.PutActive(ActiveCall{OrganizationID: "org1", CreatedAt: now.AddDate(0, 0, -3)})
	r.PutActive(ActiveCall{OrganizationID: "org2", CreatedAt: now})
	return r
}

func TestOverview_Periods(t *testing.T) {
	svc := newService(seed())

	cases := []struct {
		p                      Period
		calls, minutes, active int
	}{
		{PeriodToday, 4, 11, 1},
		{PeriodWeek, 6, 16, 2},
		{PeriodMonth, 16, 46, 2},
	}
	for _, tc := range cases {
		got, err := svc.Overview(context.Background(), "org1", tc.p)
		if err != nil {
			t.Fatalf("%s: unexpected err: %v", tc.p, err)
		}
		if got.TotalCalls != tc.calls || got.TotalMinutes != tc.minutes || got.ActiveCalls != tc.active {
			t.Fatalf("%s: got %+v", tc.p, got)
		}
		if got.Period != tc.p {
			t.Fatalf("expected period echoed")
		}
	}
}

func TestParsePeriod(t *testing.T) {
	if p, err := ParsePeriod(""); err != nil || p != PeriodToday {
		t.Fatalf("expected default today, got %q %v", p, err)
	}
	if _, err := ParsePeriod("year"); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestDaily_OldestFirstFromPeriodStart(t *testing.T) {
	svc := newService(seed())
	rows, err := svc.Daily(context.Background(), "org1", time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(rows) != 2 || rows[0].TotalCalls != 2 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
