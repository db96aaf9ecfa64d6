// Package completion memoises the "has this subject finished onboarding"
// determination.
//
// Results are cached per subject for a fixed TTL. Identities on the bypass
// list always evaluate complete and never touch the cache. A computation that
// cannot be trusted (a required signal failed, the predicate errored) yields
// false and is not cached, so a transient failure does not pin a subject as
// incomplete for a whole TTL.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/signals"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/userstate"
)

// DefaultTTL is how long a computed result stays live.
const DefaultTTL = 5 * time.Minute

// Collector is the subset of signals.Collector the cache computes with.
type Collector interface {
	Collect(ctx context.Context, subject signals.Subject) (userstate.Snapshot, signals.Report)
}

// Subject identifies the identity being checked.
type Subject struct {
	ID    string
	Email string
}

// ComputeError is logged when a completeness result could not be determined.
type ComputeError struct {
	SubjectID string
	Err       error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("completion: compute %s: %v", e.SubjectID, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

// Config configures a Cache.
type Config struct {
	TTL          time.Duration
	BypassEmails []string
	// Predicate is a CEL expression; empty selects DefaultPredicate.
	Predicate string
}

// Cache is safe for concurrent use.
type Cache struct {
	store     EntryStore
	collector Collector
	predicate *Predicate
	required  []signals.Signal
	ttl       time.Duration
	bypass    map[string]struct{}
	clock     func() time.Time
	group     singleflight.Group
	logger    *slog.Logger

	// Invalidations bump a generation so a computation that started before
	// them never writes its result back.
	genMu sync.Mutex
	epoch uint64
	gens  map[string]uint64
}

type generation struct {
	epoch, subject uint64
}

// New creates a cache over store, computing misses with collector.
func New(store EntryStore, collector Collector, cfg Config) (*Cache, error) {
	if store == nil {
		return nil, errors.New("completion: entry store is required")
	}
	if collector == nil {
		return nil, errors.New("completion: collector is required")
	}
	pred, err := NewPredicate(cfg.Predicate)
	if err != nil {
		return nil, err
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	bypass := make(map[string]struct{}, len(cfg.BypassEmails))
	for _, e := range cfg.BypassEmails {
		if n := NormalizeEmail(e); n != "" {
			bypass[n] = struct{}{}
		}
	}

	return &Cache{
		store:     store,
		collector: collector,
		predicate: pred,
		required:  requiredSignals(pred.Expression()),
		ttl:       ttl,
		bypass:    bypass,
		clock:     time.Now,
		logger:    slog.Default().With("component", "completion"),
		gens:      make(map[string]uint64),
	}, nil
}

// WithClock overrides clock for testing.
func (c *Cache) WithClock(clock func() time.Time) *Cache {
	c.clock = clock
	return c
}

// WithLogger replaces the component logger.
func (c *Cache) WithLogger(l *slog.Logger) *Cache {
	if l != nil {
		c.logger = l.With("component", "completion")
	}
	return c
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// NormalizeEmail folds an address for bypass-list comparison.
func NormalizeEmail(email string) string {
	return norm.NFKC.String(strings.ToLower(strings.TrimSpace(email)))
}

// Bypassed reports whether email is on the bypass list.
func (c *Cache) Bypassed(email string) bool {
	n := NormalizeEmail(email)
	if n == "" {
		return false
	}
	_, ok := c.bypass[n]
	return ok
}

// IsComplete never returns an error: failures evaluate to false.
func (c *Cache) IsComplete(ctx context.Context, subject Subject) bool {
	if c.Bypassed(subject.Email) {
		return true
	}
	if subject.ID == "" {
		return false
	}

	entry, ok, err := c.store.Get(ctx, subject.ID)
	if err != nil {
		c.logger.WarnContext(ctx, "cache read failed, recomputing", "subject", subject.ID, "error", err)
	} else if ok && c.live(entry) {
		return entry.IsComplete
	}

	gen := c.generation(subject.ID)
	key := subject.ID + "#" + strconv.FormatUint(gen.epoch, 10) + "." + strconv.FormatUint(gen.subject, 10)
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.compute(ctx, subject.ID, gen)
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "completeness computation failed", "subject", subject.ID, "error", err)
		return false
	}
	return v.(bool)
}

func (c *Cache) live(e Entry) bool {
	return c.clock().Sub(e.ComputedAt) < c.ttl
}

func (c *Cache) generation(subjectID string) generation {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return generation{epoch: c.epoch, subject: c.gens[subjectID]}
}

func (c *Cache) compute(ctx context.Context, subjectID string, gen generation) (bool, error) {
	snap, report := c.collector.Collect(ctx, signals.Subject{ID: subjectID})
	for _, sig := range c.required {
		if report.Failed(sig) {
			return false, &ComputeError{SubjectID: subjectID, Err: report.Err()}
		}
	}

	complete, err := c.predicate.Evaluate(snap)
	if err != nil {
		return false, &ComputeError{SubjectID: subjectID, Err: err}
	}

	// The result was computed from data an invalidation has since replaced.
	// It answers this lookup but is not stored.
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.epoch != gen.epoch || c.gens[subjectID] != gen.subject {
		c.logger.DebugContext(ctx, "discarding result superseded by invalidation", "subject", subjectID)
		return complete, nil
	}
	entry := Entry{SubjectID: subjectID, IsComplete: complete, ComputedAt: c.clock()}
	if err := c.store.Put(ctx, entry, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "cache write failed", "subject", subjectID, "error", err)
	}
	return complete, nil
}

// Invalidate drops the entry for subjectID. An empty subjectID clears every
// entry.
func (c *Cache) Invalidate(ctx context.Context, subjectID string) {
	if subjectID == "" {
		c.InvalidateAll(ctx)
		return
	}
	c.genMu.Lock()
	c.gens[subjectID]++
	err := c.store.Delete(ctx, subjectID)
	c.genMu.Unlock()
	if err != nil {
		c.logger.ErrorContext(ctx, "cache invalidate failed", "subject", subjectID, "error", err)
	}
}

// InvalidateAll clears every entry.
func (c *Cache) InvalidateAll(ctx context.Context) {
	c.genMu.Lock()
	c.epoch++
	clear(c.gens)
	err := c.store.Clear(ctx)
	c.genMu.Unlock()
	if err != nil {
		c.logger.ErrorContext(ctx, "cache clear failed", "error", err)
	}
}

// requiredSignals lists the signals whose failure makes a computation
// untrustworthy for the given predicate.
func requiredSignals(expr string) []signals.Signal {
	req := []signals.Signal{signals.SignalProfile, signals.SignalBusinessProfile}
	if strings.Contains(expr, "has_active_integrations") {
		req = append(req, signals.SignalIntegrations)
	}
	if strings.Contains(expr, "subscription_status") {
		req = append(req, signals.SignalSubscription)
	}
	return req
}
