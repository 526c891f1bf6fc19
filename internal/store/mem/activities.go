package mem

import (
	"context"
	"sync"

	"bazario.org/user-service/internal/auth"
)

// Activities is an append-only in-memory auth.ActivityStore.
type Activities struct {
	mu      sync.Mutex
	entries []*auth.Activity
}

func NewActivities() *Activities {
	return &Activities{}
}

func (m *Activities) Append(_ context.Context, entry *auth.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// ListByUser returns the newest entries first.
func (m *Activities) ListByUser(_ context.Context, userID string, limit int) ([]*auth.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*auth.Activity
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].UserID == userID {
			out = append(out, m.entries[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// CountByType reports how many recorded entries carry the given type.
func (m *Activities) CountByType(typ auth.ActivityType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Type == typ {
			n++
		}
	}
	return n
}
