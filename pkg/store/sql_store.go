// Package store provides the read-model backends the signal collector fans
// out to: PostgreSQL in production and SQLite in lite mode.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/signals"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

func (d Dialect) String() string {
	if d == DialectSQLite {
		return "sqlite"
	}
	return "postgres"
}

// SQLStore implements signals.Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ signals.Store = (*SQLStore)(nil)

// NewPostgresStore wraps a lib/pq connection.
func NewPostgresStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: DialectPostgres}
}

// NewSQLiteStore wraps a modernc.org/sqlite connection.
func NewSQLiteStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: DialectSQLite}
}

// rebind rewrites $N placeholders for dialects that use '?'.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectSQLite {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' {
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			if j > i+1 {
				b.WriteByte('?')
				i = j - 1
				continue
			}
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		onboarding_step TEXT,
		setup_preference TEXT,
		chaos_score INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS business_profiles (
		user_id TEXT PRIMARY KEY,
		profile_completeness INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS integrations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS engagement_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		occurred_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		user_id TEXT PRIMARY KEY,
		subscription_status TEXT,
		trial_end_date TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		PRIMARY KEY (user_id, role)
	)`,
}

// Init creates the read-model tables when absent.
func (s *SQLStore) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: init %s schema: %w", s.dialect, err)
		}
	}
	return nil
}

func (s *SQLStore) Profile(ctx context.Context, subjectID string) (*signals.ProfileRecord, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT onboarding_step, setup_preference, chaos_score FROM profiles WHERE user_id = $1"),
		subjectID)

	var (
		step, pref sql.NullString
		chaos      sql.NullInt64
	)
	err := row.Scan(&step, &pref, &chaos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	rec := &signals.ProfileRecord{OnboardingStep: step.String, SetupPreference: pref.String}
	if chaos.Valid {
		v := int(chaos.Int64)
		rec.ChaosScore = &v
	}
	return rec, nil
}

func (s *SQLStore) ProfileCompleteness(ctx context.Context, subjectID string) (*int, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT profile_completeness FROM business_profiles WHERE user_id = $1"),
		subjectID)

	var v sql.NullInt64
	err := row.Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get business profile: %w", err)
	}
	if !v.Valid {
		return nil, nil
	}
	n := int(v.Int64)
	return &n, nil
}

func (s *SQLStore) ActiveIntegrationCount(ctx context.Context, subjectID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT COUNT(*) FROM integrations WHERE user_id = $1 AND is_active = TRUE"),
		subjectID)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count integrations: %w", err)
	}
	return n, nil
}

func (s *SQLStore) RecentEngagementCount(ctx context.Context, subjectID string, since time.Time) (int, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT COUNT(*) FROM engagement_events WHERE user_id = $1 AND occurred_at >= $2"),
		subjectID, since.UTC())

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count engagement events: %w", err)
	}
	return n, nil
}

func (s *SQLStore) Subscription(ctx context.Context, subjectID string) (*signals.SubscriptionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT subscription_status, trial_end_date FROM subscriptions WHERE user_id = $1"),
		subjectID)

	var (
		status sql.NullString
		end    sql.NullTime
	)
	err := row.Scan(&status, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	rec := &signals.SubscriptionRecord{Status: status.String}
	if end.Valid {
		t := end.Time
		rec.TrialEndDate = &t
	}
	return rec, nil
}

func (s *SQLStore) IsAdmin(ctx context.Context, callerID string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT COUNT(*) FROM user_roles WHERE user_id = $1 AND role = 'admin'"),
		callerID)

	var n int
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check admin role: %w", err)
	}
	return n > 0, nil
}
