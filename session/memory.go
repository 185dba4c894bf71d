package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process AuditStore. Records are copied on the way
// in and out so callers can never alias internal state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

func cloneRecord(r *Record) *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.LogoutTime != nil {
		t := *r.LogoutTime
		cp.LogoutTime = &t
	}
	return &cp
}

func (m *MemoryStore) Create(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[rec.ID] = cloneRecord(rec)
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *MemoryStore) OpenSessions(ctx context.Context, userID string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, id := range m.order {
		rec := m.records[id]
		if rec.UserID == userID && rec.LogoutTime == nil {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func (m *MemoryStore) Close(ctx context.Context, id string, logoutAt time.Time, total time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return false, ErrNotFound
	}
	if rec.LogoutTime != nil {
		return false, nil
	}

	t := logoutAt
	rec.LogoutTime = &t
	rec.TotalTime = total
	return true, nil
}

func (m *MemoryStore) LastSession(ctx context.Context, userID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.order) - 1; i >= 0; i-- {
		rec := m.records[m.order[i]]
		if rec.UserID == userID {
			return cloneRecord(rec), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, id := range m.order {
		rec := m.records[id]
		if rec.UserID == userID {
			out = append(out, cloneRecord(rec))
		}
	}

	// newest first
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LoginTime.After(out[j].LoginTime)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
