package guard

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

// DefaultSessionIdle is how long an idle browsing session is remembered.
const DefaultSessionIdle = 30 * time.Minute

// Tracker numbers the navigations of each browsing session so a verdict that
// resolves after a newer navigation started can be recognised and dropped.
type Tracker struct {
	mu        sync.Mutex
	sessions  map[string]*navSession
	idle      time.Duration
	clock     func() time.Time
	lastPrune time.Time
}

type navSession struct {
	latest   uint64
	lastSeen time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]*navSession),
		idle:     DefaultSessionIdle,
		clock:    time.Now,
	}
}

// WithClock overrides clock for testing.
func (t *Tracker) WithClock(clock func() time.Time) *Tracker {
	t.clock = clock
	return t
}

// Begin starts a new navigation and returns its sequence number.
func (t *Tracker) Begin(session string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.touch(session)
	s.latest++
	return s.latest
}

// Observe records a client-numbered navigation. It returns false when seq is
// older than a navigation already seen for the session.
func (t *Tracker) Observe(session string, seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.touch(session)
	if seq < s.latest {
		return false
	}
	s.latest = seq
	return true
}

// IsCurrent reports whether seq is still the latest navigation of session.
func (t *Tracker) IsCurrent(session string, seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[session]
	if !ok {
		// Forgotten sessions cannot have been superseded.
		return true
	}
	return seq >= s.latest
}

// Len reports the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *Tracker) touch(session string) *navSession {
	now := t.clock()
	t.pruneLocked(now)
	s, ok := t.sessions[session]
	if !ok {
		s = &navSession{}
		t.sessions[session] = s
	}
	s.lastSeen = now
	return s
}

func (t *Tracker) pruneLocked(now time.Time) {
	if now.Sub(t.lastPrune) < time.Minute {
		return
	}
	t.lastPrune = now
	for id, s := range t.sessions {
		if now.Sub(s.lastSeen) > t.idle {
			delete(t.sessions, id)
		}
	}
}

var (
	ErrBadSequence = errors.New("guard: navigation sequence must be a positive integer")
	ErrSuperseded  = errors.New("guard: navigation superseded by a newer one")
)

// Sequence assigns nav its browsing session and sequence number. An empty
// session falls back to the caller id; an empty raw sequence begins a new
// navigation. Anonymous requests without a session are not tracked.
func (g *Guard) Sequence(nav *Navigation, session, raw string) error {
	nav.Session = session
	if nav.Session == "" && nav.Caller != nil {
		nav.Session = nav.Caller.GetID()
	}
	if raw == "" {
		if nav.Session != "" {
			nav.Seq = g.tracker.Begin(nav.Session)
		}
		return nil
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || seq == 0 {
		return ErrBadSequence
	}
	nav.Seq = seq
	if nav.Session != "" && !g.tracker.Observe(nav.Session, seq) {
		return ErrSuperseded
	}
	return nil
}
