package assistants

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRepo struct {
	mu    sync.Mutex
	items map[string]Assistant
	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: map[string]Assistant{}, clock: time.Now}
}

func (r *MemoryRepo) List(ctx context.Context, orgID string) ([]Assistant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Assistant{}
	for _, a := range r.items {
		if a.OrganizationID == orgID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Assistant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return Assistant{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepo) Create(ctx context.Context, a Assistant) (Assistant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock().UTC()
	a.ID = uuid.NewString()
	a.CreatedAt, a.UpdatedAt = now, now
	if len(a.VariableValues) == 0 {
		a.VariableValues = []byte("{}")
	}
	r.items[a.ID] = a
	return a, nil
}

func (r *MemoryRepo) Update(ctx context.Context, id string, p Patch) (Assistant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return Assistant{}, ErrNotFound
	}
	setString(&a.Name, p.Name)
	setString(&a.SystemPrompt, p.SystemPrompt)
	setString(&a.VoiceProvider, p.VoiceProvider)
	if p.Description != nil {
		a.Description = p.Description
	}
	if p.FirstMessage != nil {
		a.FirstMessage = p.FirstMessage
	}
	if p.VoiceID != nil {
		a.VoiceID = p.VoiceID
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if len(p.VariableValues) > 0 {
		a.VariableValues = p.VariableValues
	}
	if len(p.EnabledFunctions) > 0 {
		a.EnabledFunctions = p.EnabledFunctions
	}
	if len(p.FunctionConfig) > 0 {
		a.FunctionConfig = p.FunctionConfig
	}
	if p.ClearSync {
		a.VAPISyncedAt = nil
	}
	a.UpdatedAt = r.clock().UTC()
	r.items[id] = a
	return a, nil
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

func (r *MemoryRepo) MarkSynced(ctx context.Context, id string, at time.Time) (Assistant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return Assistant{}, ErrNotFound
	}
	a.VAPISyncedAt = &at
	a.Status = StatusActive
	r.items[id] = a
	return a, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
