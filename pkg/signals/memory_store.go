package signals

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It backs tests and demo wiring and can
// inject per-signal failures.
type MemoryStore struct {
	mu            sync.RWMutex
	profiles      map[string]ProfileRecord
	completeness  map[string]int
	integrations  map[string]int
	engagement    map[string][]time.Time
	subscriptions map[string]SubscriptionRecord
	admins        map[string]bool
	failures      map[Signal]error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:      make(map[string]ProfileRecord),
		completeness:  make(map[string]int),
		integrations:  make(map[string]int),
		engagement:    make(map[string][]time.Time),
		subscriptions: make(map[string]SubscriptionRecord),
		admins:        make(map[string]bool),
		failures:      make(map[Signal]error),
	}
}

func (m *MemoryStore) SetProfile(subjectID string, rec ProfileRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[subjectID] = rec
}

func (m *MemoryStore) SetCompleteness(subjectID string, v int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeness[subjectID] = v
}

func (m *MemoryStore) SetActiveIntegrations(subjectID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.integrations[subjectID] = n
}

func (m *MemoryStore) AddEngagement(subjectID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engagement[subjectID] = append(m.engagement[subjectID], at)
}

func (m *MemoryStore) SetSubscription(subjectID string, rec SubscriptionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[subjectID] = rec
}

func (m *MemoryStore) SetAdmin(callerID string, admin bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[callerID] = admin
}

// Fail makes every fetch of sig return err until cleared with a nil err.
func (m *MemoryStore) Fail(sig Signal, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, sig)
		return
	}
	m.failures[sig] = err
}

func (m *MemoryStore) failure(sig Signal) error {
	return m.failures[sig]
}

func (m *MemoryStore) Profile(ctx context.Context, subjectID string) (*ProfileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(SignalProfile); err != nil {
		return nil, err
	}
	rec, ok := m.profiles[subjectID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) ProfileCompleteness(ctx context.Context, subjectID string) (*int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(SignalBusinessProfile); err != nil {
		return nil, err
	}
	v, ok := m.completeness[subjectID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *MemoryStore) ActiveIntegrationCount(ctx context.Context, subjectID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(SignalIntegrations); err != nil {
		return 0, err
	}
	return m.integrations[subjectID], nil
}

func (m *MemoryStore) RecentEngagementCount(ctx context.Context, subjectID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(SignalEngagement); err != nil {
		return 0, err
	}
	n := 0
	for _, at := range m.engagement[subjectID] {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Subscription(ctx context.Context, subjectID string) (*SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(SignalSubscription); err != nil {
		return nil, err
	}
	rec, ok := m.subscriptions[subjectID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) IsAdmin(ctx context.Context, callerID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(SignalAdminRole); err != nil {
		return false, err
	}
	return m.admins[callerID], nil
}
