package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/api"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/auth"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/config"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/paywall"
	"github.com/KingsLot128/trade-mate-ai-connect-sub003/pkg/server"
)

func runServer(stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	logger := newLogger(cfg, stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	limiter := api.NewIPLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	srv, err := server.New(server.Deps{
		Guard:         a.guard,
		Overlay:       a.overlay,
		Collector:     a.collector,
		Completion:    a.completion,
		Admins:        a.store,
		Gate:          paywall.NewGate(),
		Validator:     auth.NewJWTValidator(a.sessionKeys),
		Limiter:       limiter,
		SecureCookies: cfg.SecureCookies,
	})
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("navguard ready",
			"addr", httpServer.Addr,
			"lite_mode", cfg.LiteMode(),
			"redis", cfg.RedisAddr != "",
			"completion_ttl", a.completion.TTL().String(),
			"bypass_count", len(cfg.BypassEmails),
			"routes_version", a.guard.Table().Version().String(),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			return 1
		}
	}
	return 0
}
