// Command kodcaldav runs the KodBox CalDAV bridge: a background engine
// that mirrors KodBox projects into in-memory calendars, and a read-only
// CalDAV server over them.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kodcaldav/kodcaldav/internal/cache"
	"github.com/kodcaldav/kodcaldav/internal/config"
	"github.com/kodcaldav/kodcaldav/internal/syncer"
	"github.com/kodcaldav/kodcaldav/internal/upstream"
	caldav "github.com/kodcaldav/kodcaldav/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		listen     = flag.String("listen", "", "listen address, overrides config")
		once       = flag.Bool("once", false, "run one sync cycle and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	logger := newLogger(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *once); err != nil {
		logger.Error("bridge exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, once bool) error {
	client := upstream.NewKodBox(
		cfg.KodBox.BaseURL,
		cfg.KodBox.Username,
		cfg.KodBox.Password,
		upstream.WithHTTPClient(&http.Client{Timeout: cfg.KodBox.Timeout.Std()}),
		upstream.WithLogger(logger.With("component", "kodbox")),
	)

	store := cache.NewStore()
	engine := syncer.New(client, store, syncer.Options{
		Interval:   cfg.Sync.Interval.Std(),
		MaxRetries: cfg.Sync.MaxRetries,
		RetryDelay: cfg.Sync.RetryDelay.Std(),
		Logger:     logger.With("component", "syncer"),
	})

	if once {
		return engine.RunCycle(ctx)
	}

	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	handler := caldav.NewHandler("/", store,
		caldav.WithLogger(logger.With("component", "caldav")))
	authenticator := &caldav.StaticAuthenticator{
		Username: cfg.CalDAV.Username,
		Password: cfg.CalDAV.Password,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/caldav", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusMovedPermanently)
	})
	mux.Handle("/health", caldav.HealthHandler(store))
	mux.Handle("/", handler)

	srv := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: caldav.AuthMiddleware(authenticator, cfg.CalDAV.Realm)(mux),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("caldav server listening", "addr", cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
