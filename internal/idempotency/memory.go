package idempotency

import (
	"context"
	"sync"
)

// MemoryLedger is a process-local Ledger for tests.
type MemoryLedger struct {
	mu       sync.Mutex
	done     map[string]bool
	inflight map[string]bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{done: map[string]bool{}, inflight: map[string]bool{}}
}

func (l *MemoryLedger) Once(ctx context.Context, k Key, fn Func) (bool, error) {
	if !k.Valid() {
		return false, ErrInvalidKey
	}
	id := k.String()

	l.mu.Lock()
	if l.done[id] {
		l.mu.Unlock()
		return false, nil
	}
	if l.inflight[id] {
		l.mu.Unlock()
		return false, ErrInFlight
	}
	l.inflight[id] = true
	l.mu.Unlock()

	err := fn(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inflight, id)
	if err != nil {
		return false, err
	}
	l.done[id] = true
	return true, nil
}

// Done reports whether k has been recorded.
func (l *MemoryLedger) Done(k Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done[k.String()]
}
