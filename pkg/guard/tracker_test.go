package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_BeginSupersedes(t *testing.T) {
	tr := NewTracker()
	a := tr.Begin("s")
	b := tr.Begin("s")

	assert.Greater(t, b, a)
	assert.False(t, tr.IsCurrent("s", a))
	assert.True(t, tr.IsCurrent("s", b))

	// Sessions are independent.
	assert.Equal(t, uint64(1), tr.Begin("other"))
	assert.True(t, tr.IsCurrent("s", b))
}

func TestTracker_Observe(t *testing.T) {
	tr := NewTracker()
	assert.True(t, tr.Observe("s", 5))
	assert.True(t, tr.Observe("s", 5), "repeating the latest is fine")
	assert.False(t, tr.Observe("s", 4))
	assert.True(t, tr.IsCurrent("s", 5))

	assert.True(t, tr.Observe("s", 9))
	assert.False(t, tr.IsCurrent("s", 5))
	assert.True(t, tr.IsCurrent("unknown", 1))
}

func TestTracker_PrunesIdleSessions(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker().WithClock(func() time.Time { return now })

	tr.Begin("old")
	now = now.Add(DefaultSessionIdle + 2*time.Minute)
	tr.Begin("new")

	assert.Equal(t, 1, tr.Len())
}
