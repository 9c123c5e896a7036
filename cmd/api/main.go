package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanwahyu/automaton-integrity/internal/bootstrap"
	"github.com/bryanwahyu/automaton-integrity/internal/config"
	"github.com/bryanwahyu/automaton-integrity/internal/infra/httpserver"
	"github.com/bryanwahyu/automaton-integrity/internal/logging"
	"github.com/bryanwahyu/automaton-integrity/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("config load error", "err", err)
		os.Exit(1)
	}
	logging.Init(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap error", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go limiter.Janitor(ctx.Done(), 5*time.Minute, 10*time.Minute)

	if len(cfg.Auth.APIKeys) == 0 {
		slog.Warn("no API keys configured, tenant routes are unauthenticated")
	}
	handler := httpserver.NewRouter(app.Service, httpserver.Options{
		APIKeys:        cfg.Auth.APIKeys,
		RateLimiter:    limiter,
		HealthCheckers: app.Checkers,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		// a scan may run up to its deadline before the response is written
		WriteTimeout: cfg.Scan.Deadline.Duration + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", addr, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		slog.Error("shutdown error", "err", err)
	}
}
