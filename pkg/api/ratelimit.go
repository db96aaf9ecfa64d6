package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultClientIdle is how long an idle client's bucket is kept.
const DefaultClientIdle = 3 * time.Minute

// IPLimiter gives every client IP its own token bucket. Idle buckets are
// dropped lazily while handling requests, so it owns no goroutine.
type IPLimiter struct {
	mu        sync.Mutex
	clients   map[string]*bucket
	limit     rate.Limit
	burst     int
	idle      time.Duration
	clock     func() time.Time
	lastSweep time.Time
}

type bucket struct {
	*rate.Limiter
	seen time.Time
}

// NewIPLimiter allows rps requests per second with the given burst per IP.
func NewIPLimiter(rps float64, burst int) *IPLimiter {
	return &IPLimiter{
		clients: make(map[string]*bucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    DefaultClientIdle,
		clock:   time.Now,
	}
}

// WithClock overrides clock for testing.
func (l *IPLimiter) WithClock(clock func() time.Time) *IPLimiter {
	l.clock = clock
	return l
}

// Allow consumes one token for ip.
func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if now.Sub(l.lastSweep) >= time.Minute {
		l.lastSweep = now
		for k, b := range l.clients {
			if now.Sub(b.seen) > l.idle {
				delete(l.clients, k)
			}
		}
	}

	b, ok := l.clients[ip]
	if !ok {
		b = &bucket{Limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = b
	}
	b.seen = now
	return b.AllowN(now, 1)
}

// Clients reports the number of tracked client IPs.
func (l *IPLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware answers 429 once a client's bucket is empty.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r)) {
			WriteTooManyRequests(w, 1)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the host part of the request's remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return host
}
