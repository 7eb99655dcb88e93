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

	"golang.org/x/sync/errgroup"

	"github.com/revittco/toolgw/internal/api"
	"github.com/revittco/toolgw/internal/audit"
	"github.com/revittco/toolgw/internal/auth"
	"github.com/revittco/toolgw/internal/config"
	"github.com/revittco/toolgw/internal/gateway"
	"github.com/revittco/toolgw/internal/jobs"
	"github.com/revittco/toolgw/internal/mcpserver"
	"github.com/revittco/toolgw/internal/policy"
	"github.com/revittco/toolgw/internal/proxy"
	"github.com/revittco/toolgw/internal/ratelimit"
	"github.com/revittco/toolgw/internal/registry"
	"github.com/revittco/toolgw/internal/store/sqlite"
)

const version = "0.1.0"

// jobReapInterval is how often the background reaper sweeps for jobs
// older than the default retention window.
const (
	jobReapInterval = time.Hour
	jobRetention    = 24 * time.Hour
)

func cmdServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	db, err := sqlite.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reg := registry.New(db)

	if _, err := os.Stat(cfg.ConfigFile); err == nil {
		cat, err := registry.LoadCatalogFile(cfg.ConfigFile)
		if err != nil {
			return fmt.Errorf("load tool catalog: %w", err)
		}
		if err := registry.Sync(ctx, db, cat); err != nil {
			return fmt.Errorf("sync tool catalog: %w", err)
		}
		reg.Invalidate()
		logger.Info("tool catalog synced", "file", cfg.ConfigFile, "tools", len(cat.Tools))
	} else {
		logger.Warn("tool catalog file not found, starting with an empty catalog", "file", cfg.ConfigFile)
	}

	pol := policy.NewEngine(cfg.PolicyFile)
	if err := pol.Load(); err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	validator := auth.NewValidator(cfg)
	limiter := ratelimit.New()
	prx := proxy.New(cfg.GatewaySharedSecret, cfg.BackendTimeout)
	recorder := audit.NewRecorder(db)
	gw := gateway.NewService(reg, pol, prx, recorder, cfg.MaxPayloadBytes)
	dispatcher := mcpserver.NewDispatcher(reg, pol, gw, limiter, recorder, cfg.AppName, version)
	runner := jobs.NewRunner(db, gw)

	router := api.NewRouter(api.RouterDeps{
		Config:     cfg,
		Store:      db,
		Registry:   reg,
		Policy:     pol,
		Validator:  validator,
		Dispatcher: dispatcher,
		JobRunner:  runner,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return runJobReaper(gctx, runner)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

// runJobReaper periodically reaps jobs older than the retention window
// until ctx is cancelled.
func runJobReaper(ctx context.Context, runner *jobs.Runner) error {
	ticker := time.NewTicker(jobReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			count, err := runner.Reap(ctx, jobRetention)
			if err != nil {
				slog.Error("job reap failed", "error", err)
				continue
			}
			if count > 0 {
				slog.Info("reaped stale jobs", "count", count)
			}
		}
	}
}
