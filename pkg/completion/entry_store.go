package completion

import (
	"context"
	"sync"
	"time"
)

// Entry is one memoised completeness result.
type Entry struct {
	SubjectID  string    `json:"subject_id"`
	IsComplete bool      `json:"is_complete"`
	ComputedAt time.Time `json:"computed_at"`
}

// EntryStore holds cache entries. Implementations need not enforce the TTL;
// the Cache checks entry age on every read. Put is last-write-wins per subject.
type EntryStore interface {
	Get(ctx context.Context, subjectID string) (Entry, bool, error)
	Put(ctx context.Context, e Entry, ttl time.Duration) error
	Delete(ctx context.Context, subjectID string) error
	Clear(ctx context.Context) error
}

// MemoryStore is a process-local EntryStore.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Get(ctx context.Context, subjectID string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[subjectID]
	return e, ok, nil
}

func (m *MemoryStore) Put(ctx context.Context, e Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.SubjectID] = e
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, subjectID)
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry)
	return nil
}

// Len reports the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
