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
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/p-n-ai/pai-course/internal/assistant"
	"github.com/p-n-ai/pai-course/internal/content"
	"github.com/p-n-ai/pai-course/internal/platform/cache"
	"github.com/p-n-ai/pai-course/internal/platform/config"
	"github.com/p-n-ai/pai-course/internal/platform/database"
	"github.com/p-n-ai/pai-course/internal/progress"
	"github.com/p-n-ai/pai-course/internal/server"
	"github.com/p-n-ai/pai-course/internal/session"
)

func main() {
	// A .env file is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := setup(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "content", cfg.Content.Source, "progress", cfg.Progress.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	a.close(shutdownCtx)
}

// app holds the wired dependencies and what must be released on shutdown.
type app struct {
	handler   http.Handler
	refresher *content.Refresher
	closers   []func()
}

func (a *app) close(ctx context.Context) {
	if a.refresher != nil {
		a.refresher.Stop(ctx)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// setup builds the stores, catalog and HTTP handler from cfg. On error
// everything opened so far is released.
func setup(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	var opts []server.Option

	store, events, err := newStore(ctx, cfg, a, &opts)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL, cfg.Cache.Prefix)
		if err != nil {
			return nil, fmt.Errorf("connecting to cache: %w", err)
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		opts = append(opts, server.WithHealthCheck("cache", c))
		store = progress.NewCachedStore(store, c, cfg.Cache.TTL)
		slog.Info("progress cache enabled", "ttl", cfg.Cache.TTL)
	}

	catalog, reloader, err := newCatalog(ctx, cfg.Content)
	if err != nil {
		return nil, err
	}
	if cfg.Content.RefreshSchedule != "" {
		r, err := content.NewRefresher(cfg.Content.RefreshSchedule, reloader)
		if err != nil {
			return nil, err
		}
		r.Start()
		a.refresher = r
	}

	verifier, err := session.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return nil, err
	}

	if cfg.Assistant.URL != "" {
		pool := assistant.NewPool(cfg.Assistant.URL)
		sweepCtx, cancelSweep := context.WithCancel(context.Background())
		go pool.Run(sweepCtx, time.Minute, cfg.Assistant.IdleTimeout)
		a.closers = append(a.closers, pool.Close, cancelSweep)
		opts = append(opts, server.WithAssistant(pool))
	}

	a.handler = server.New(catalog, progress.NewTracker(store, events), verifier, opts...).Handler()
	return a, nil
}

func newStore(ctx context.Context, cfg *config.Config, a *app, opts *[]server.Option) (progress.Store, progress.EventLogger, error) {
	if cfg.UsesDatabase() {
		db, err := database.New(ctx, cfg.Database.URL, database.Options{
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
			Attempts: cfg.Database.ConnectAttempts,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		*opts = append(*opts, server.WithHealthCheck("database", db))

		store, err := progress.NewPostgresStore(db.Pool)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrating progress schema: %w", err)
		}
		return store, progress.NewPostgresEventLogger(db.Pool), nil
	}

	switch cfg.Progress.Backend {
	case config.ProgressRemote:
		store, err := progress.NewRemoteStore(cfg.Progress.URL,
			progress.WithServiceToken(cfg.Progress.ServiceToken),
			progress.WithRetries(cfg.Progress.Retries),
		)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	default:
		slog.Warn("using in-memory progress store; progress is lost on restart")
		return progress.NewMemoryStore(), progress.NewMemoryEventLogger(), nil
	}
}

func newCatalog(ctx context.Context, cfg config.ContentConfig) (content.Catalog, content.Reloader, error) {
	if cfg.Source == config.ContentRemote {
		c, err := content.NewRemoteCatalog(cfg.URL, cfg.Token)
		if err != nil {
			return nil, nil, err
		}
		if err := c.Reload(ctx); err != nil {
			// Courses are also fetched on demand, so a cold start is not fatal.
			slog.Warn("initial course list fetch failed", "url", cfg.URL, "error", err)
		}
		return c, c, nil
	}

	c, err := content.NewFileCatalog(cfg.Path, content.WithStrict(cfg.Strict))
	if err != nil {
		return nil, nil, fmt.Errorf("loading courses: %w", err)
	}
	return c, c, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
