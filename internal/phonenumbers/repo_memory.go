package phonenumbers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRepo struct {
	mu    sync.Mutex
	items map[string]PhoneNumber
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: map[string]PhoneNumber{}}
}

func (r *MemoryRepo) List(ctx context.Context, orgID string) ([]PhoneNumber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []PhoneNumber{}
	for _, n := range r.items {
		if n.OrganizationID == orgID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (PhoneNumber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return PhoneNumber{}, ErrNotFound
	}
	return n, nil
}

func (r *MemoryRepo) Count(ctx context.Context, orgID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := 0
	for _, n := range r.items {
		if n.OrganizationID == orgID {
			c++
		}
	}
	return c, nil
}

func (r *MemoryRepo) Create(ctx context.Context, n PhoneNumber) (PhoneNumber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	n.ID = uuid.NewString()
	n.CreatedAt, n.UpdatedAt = now, now
	if len(n.RoutingRules) == 0 {
		n.RoutingRules = []byte("{}")
	}
	r.items[n.ID] = n
	return n, nil
}

func (r *MemoryRepo) Update(ctx context.Context, id string, p Patch) (PhoneNumber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok {
		return PhoneNumber{}, ErrNotFound
	}
	if p.FriendlyName != nil {
		n.FriendlyName = p.FriendlyName
	}
	if p.AssistantID != nil {
		n.AssistantID = p.AssistantID
		if *p.AssistantID == "" {
			n.AssistantID = nil
		}
	}
	if len(p.RoutingRules) > 0 {
		n.RoutingRules = p.RoutingRules
	}
	n.UpdatedAt = time.Now().UTC()
	r.items[id] = n
	return n, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}
