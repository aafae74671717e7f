package calls

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests.
// Set FailActions to make AppendAction return an error.
type MemoryRepo struct {
	mu          sync.Mutex
	seq         int
	calls       []Call
	transcripts []Transcript
	recordings  []Recording
	actions     []Action

	FailActions error
	Clock       func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{Clock: func() time.Time { return time.Now().UTC() }}
}

func (r *MemoryRepo) Put(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *MemoryRepo) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

func (r *MemoryRepo) Transcripts() []Transcript {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transcript(nil), r.transcripts...)
}

func (r *MemoryRepo) Recordings() []Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recording(nil), r.recordings...)
}

func (r *MemoryRepo) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Action(nil), r.actions...)
}

func (r *MemoryRepo) nextID(prefix string) string {
	r.seq++
	return prefix + strconv.Itoa(r.seq)
}

func (r *MemoryRepo) Create(ctx context.Context, c Call) (Call, error) {
	if c.OrganizationID == "" {
		return Call{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.nextID("call_")
	c.CreatedAt = r.Clock()
	r.calls = append(r.calls, c)
	return c, nil
}

func (r *MemoryRepo) FindByVAPIID(ctx context.Context, orgID, vapiCallID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		c := r.calls[i]
		if c.OrganizationID == orgID && c.VAPICallID != nil && *c.VAPICallID == vapiCallID {
			return c, nil
		}
	}
	return Call{}, ErrNotFound
}

func (r *MemoryRepo) FindByProviderSID(ctx context.Context, sid string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		c := r.calls[i]
		if c.ProviderCallSID != nil && *c.ProviderCallSID == sid {
			return c, nil
		}
	}
	return Call{}, ErrNotFound
}

func (r *MemoryRepo) update(ref Ref, fn func(*Call)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.calls {
		if r.calls[i].ID == ref.ID && r.calls[i].CreatedAt.Equal(ref.CreatedAt) {
			fn(&r.calls[i])
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepo) Complete(ctx context.Context, ref Ref, c Completion) error {
	return r.update(ref, func(call *Call) {
		ended, d := c.EndedAt.UTC(), c.DurationSeconds
		call.Status = StatusCompleted
		call.EndedAt = &ended
		call.DurationSeconds = &d
		call.EndedReason = c.EndedReason
		call.Summary = c.Summary
		call.CostCents = c.CostCents
	})
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, ref Ref, status Status, durationSeconds *int) error {
	return r.update(ref, func(call *Call) {
		call.Status = status
		if durationSeconds != nil {
			d := *durationSeconds
			call.DurationSeconds = &d
		}
	})
}

func (r *MemoryRepo) InsertTranscript(ctx context.Context, t Transcript) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.transcripts {
		if existing.CallID == t.CallID {
			return nil
		}
	}
	t.ID = r.nextID("tr_")
	t.CreatedAt = r.Clock()
	r.transcripts = append(r.transcripts, t)
	return nil
}

func (r *MemoryRepo) InsertRecording(ctx context.Context, rec Recording) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.recordings {
		if existing.CallID == rec.CallID {
			return nil
		}
	}
	rec.ID = r.nextID("rec_")
	rec.CreatedAt = r.Clock()
	r.recordings = append(r.recordings, rec)
	return nil
}

func (r *MemoryRepo) AppendAction(ctx context.Context, a Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailActions != nil {
		return r.FailActions
	}
	a.ID = r.nextID("act_")
	r.actions = append(r.actions, a)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, orgID, id string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c.OrganizationID == orgID && c.ID == id {
			return c, nil
		}
	}
	return Call{}, ErrNotFound
}

func (r *MemoryRepo) List(ctx context.Context, f ListFilter) ([]Call, int, error) {
	if f.OrganizationID == "" {
		return nil, 0, ErrInvalidArgument
	}
	r.mu.Lock()
	var matched []Call
	for _, c := range r.calls {
		if c.OrganizationID != f.OrganizationID || c.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && c.CreatedAt.After(f.To) {
			continue
		}
		if f.AssistantID != "" && (c.AssistantID == nil || *c.AssistantID != f.AssistantID) {
			continue
		}
		if f.Status != "" && string(c.Status) != f.Status {
			continue
		}
		matched = append(matched, c)
	}
	r.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	out := []Call{}
	for i := f.Offset; i < total && len(out) < f.Limit; i++ {
		out = append(out, matched[i])
	}
	return out, total, nil
}

func (r *MemoryRepo) GetTranscript(ctx context.Context, orgID, callID string) (Transcript, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.transcripts {
		if t.OrganizationID == orgID && t.CallID == callID {
			return t, nil
		}
	}
	return Transcript{}, ErrNotFound
}

func (r *MemoryRepo) GetRecording(ctx context.Context, orgID, callID string) (Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.recordings {
		if rec.OrganizationID == orgID && rec.CallID == callID {
			return rec, nil
		}
	}
	return Recording{}, ErrNotFound
}

func (r *MemoryRepo) ListActions(ctx context.Context, orgID, callID string) ([]Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Action{}
	for _, a := range r.actions {
		if a.OrganizationID == orgID && a.CallID == callID {
			out = append(out, a)
		}
	}
	return out, nil
}
