package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStore_Profile(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	query := regexp.QuoteMeta("SELECT onboarding_step, setup_preference, chaos_score FROM profiles WHERE user_id = $1")

	mock.ExpectQuery(query).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"onboarding_step", "setup_preference", "chaos_score"}).
			AddRow("completed", "grow", 42))

	rec, err := s.Profile(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "completed", rec.OnboardingStep)
	assert.Equal(t, "grow", rec.SetupPreference)
	require.NotNil(t, rec.ChaosScore)
	assert.Equal(t, 42, *rec.ChaosScore)

	// Null chaos score stays unset so the collector applies the fail-safe default.
	mock.ExpectQuery(query).
		WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows([]string{"onboarding_step", "setup_preference", "chaos_score"}).
			AddRow("in_progress", nil, nil))

	rec, err = s.Profile(ctx, "user-2")
	require.NoError(t, err)
	assert.Nil(t, rec.ChaosScore)
	assert.Equal(t, "", rec.SetupPreference)

	// Not found
	mock.ExpectQuery(query).
		WithArgs("user-3").
		WillReturnRows(sqlmock.NewRows([]string{"onboarding_step", "setup_preference", "chaos_score"}))

	rec, err = s.Profile(ctx, "user-3")
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ProfileCompletenessError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT profile_completeness FROM business_profiles WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnError(errors.New("connection refused"))

	v, err := s.ProfileCompleteness(context.Background(), "user-1")
	assert.Error(t, err)
	assert.Nil(t, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ActiveIntegrationCount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM integrations WHERE user_id = $1 AND is_active = TRUE")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.ActiveIntegrationCount(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPostgresStore_Subscription(t *testing.T) {
	s, mock := newMockStore(t)
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT subscription_status, trial_end_date FROM subscriptions WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"subscription_status", "trial_end_date"}).AddRow("trial", end))

	rec, err := s.Subscription(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, rec.TrialEndDate)
	assert.Equal(t, "trial", rec.Status)
	assert.True(t, end.Equal(*rec.TrialEndDate))
}

func TestPostgresStore_IsAdmin(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM user_roles WHERE user_id = $1 AND role = 'admin'")).
		WithArgs("admin-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := s.IsAdmin(context.Background(), "admin-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPostgresStore_Init(t *testing.T) {
	s, mock := newMockStore(t)
	for range schema {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, s.Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	lite := &SQLStore{dialect: DialectSQLite}
	q := "SELECT 1 FROM t WHERE a = $1 AND b >= $2 AND c = '$'"

	assert.Equal(t, q, pg.rebind(q))
	assert.Equal(t, "SELECT 1 FROM t WHERE a = ? AND b >= ? AND c = '$'", lite.rebind(q))
}
