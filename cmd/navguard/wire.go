package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/completion"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/config"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/guard"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/identity"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/impersonation"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/observability"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/routing"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/signals"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/store"
)

// app is the wired dependency graph shared by serve and decide.
type app struct {
	cfg   *config.Config
	db    *sql.DB
	redis *redis.Client
	store *store.SQLStore
	// sessionKeys verify session tokens; impersonation tokens use their own.
	sessionKeys       identity.KeySet
	impersonationKeys identity.KeySet
	collector         *signals.Collector
	completion        *completion.Cache
	overlay           *impersonation.Overlay
	guard             *guard.Guard
	metrics           *observability.Provider
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// loadKeys derives the key set for purpose from SESSION_SECRET, or creates an
// ephemeral Ed25519 key set when no secret is configured.
func loadKeys(cfg *config.Config, purpose string) (identity.KeySet, error) {
	if cfg.SessionSecret != "" {
		return identity.DeriveHMACKeySet([]byte(cfg.SessionSecret), purpose)
	}
	slog.Warn("SESSION_SECRET not set, using an ephemeral signing key; tokens will not survive a restart", "purpose", purpose)
	return identity.NewInMemoryKeySet()
}

func loadTable(path string) (*routing.Table, error) {
	if path == "" {
		return routing.DefaultTable(), nil
	}
	return routing.LoadTable(path)
}

func openStore(ctx context.Context, cfg *config.Config) (*sql.DB, *store.SQLStore, error) {
	if cfg.LiteMode() {
		slog.Info("lite mode: using sqlite", "path", cfg.SQLitePath)
		db, err := store.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		s := store.NewSQLiteStore(db)
		if err := s.Init(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return db, s, nil
	}
	db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return db, store.NewPostgresStore(db), nil
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	var err error
	if a.db, a.store, err = openStore(ctx, cfg); err != nil {
		return nil, err
	}
	if a.sessionKeys, err = loadKeys(cfg, identity.PurposeSession); err != nil {
		return nil, fmt.Errorf("session keys: %w", err)
	}
	if a.impersonationKeys, err = loadKeys(cfg, identity.PurposeImpersonation); err != nil {
		return nil, fmt.Errorf("impersonation keys: %w", err)
	}
	table, err := loadTable(cfg.RoutesFile)
	if err != nil {
		return nil, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version
	obsCfg.Enabled = cfg.OTelEnabled
	obsCfg.OTLPEndpoint = cfg.OTelEndpoint
	obsCfg.Insecure = cfg.OTelInsecure
	if a.metrics, err = observability.New(ctx, obsCfg); err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}

	a.collector = signals.NewCollector(signals.FromStore(a.store)).WithTimeout(cfg.SignalTimeout)

	var entries completion.EntryStore = completion.NewMemoryStore()
	if cfg.RedisAddr != "" {
		a.redis, err = store.NewRedis(ctx, store.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return nil, err
		}
		entries = completion.NewRedisStore(a.redis)
	}
	a.completion, err = completion.New(entries, a.collector, completion.Config{
		TTL:          cfg.CompletionTTL,
		BypassEmails: cfg.BypassEmails,
		Predicate:    cfg.CompletionPredicate,
	})
	if err != nil {
		return nil, err
	}

	a.overlay = impersonation.NewOverlay(a.impersonationKeys)
	a.guard, err = guard.New(guard.Deps{
		Table:         table,
		Collector:     a.collector,
		Completion:    a.completion,
		Overlay:       a.overlay,
		Metrics:       a.metrics,
		SignalTimeout: cfg.SignalTimeout,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// Close releases connections and flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.metrics != nil {
		errs = append(errs, a.metrics.Shutdown(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
