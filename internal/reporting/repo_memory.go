package reporting

import (
	"context"
	"sort"
	"sync"
	"time"
)

type ActiveCall struct {
	OrganizationID string
	CreatedAt      time.Time
}

// MemoryRepo is an in-memory Repository for tests. It enforces organization
// isolation on reads.
type MemoryRepo struct {
	mu     sync.Mutex
	daily  map[string][]DailyUsage
	active []ActiveCall
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{daily: map[string][]DailyUsage{}} }

func (r *MemoryRepo) PutDaily(orgID string, d DailyUsage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.daily[orgID] = append(r.daily[orgID], d)
}

func (r *MemoryRepo) PutActive(a ActiveCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = append(r.active, a)
}

func (r *MemoryRepo) DailyUsage(ctx context.Context, orgID string, from, to time.Time) ([]DailyUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fromDay := day(from)
	out := []DailyUsage{}
	for _, d := range r.daily[orgID] {
		if d.Date.Before(fromDay) {
			continue
		}
		if !to.IsZero() && !d.Date.Before(day(to)) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *MemoryRepo) CountActiveCalls(ctx context.Context, orgID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.active {
		if a.OrganizationID == orgID && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
