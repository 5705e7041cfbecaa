package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process [Store] bounded to a fixed number of entries. The
// oldest entry is evicted once the cap is reached.
type Memory struct {
	mu      sync.RWMutex
	cap     int
	entries []Entry // oldest first
}

var _ Store = (*Memory)(nil)

// NewMemory returns a Memory store holding at most capacity entries. A
// capacity ≤ 0 uses [MaxLimit].
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = MaxLimit
	}
	return &Memory{cap: capacity}
}

// Record implements [Store].
func (m *Memory) Record(ctx context.Context, e Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, fmt.Errorf("history: record: %w", err)
	}
	e = Prepare(e)

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == m.cap {
		copy(m.entries, m.entries[1:])
		m.entries = m.entries[:len(m.entries)-1]
	}
	m.entries = append(m.entries, e)
	return e, nil
}

// Recent implements [Store].
func (m *Memory) Recent(_ context.Context, limit int) ([]Entry, error) {
	limit = ClampLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()
	n := min(limit, len(m.entries))
	out := make([]Entry, 0, n)
	for i := len(m.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// Get implements [Store].
func (m *Memory) Get(_ context.Context, id uuid.UUID) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

// Ping implements [Store]. It always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }
