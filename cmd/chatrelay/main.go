// chatrelay exposes an OpenAI-compatible chat-completions endpoint backed by
// one shared interactive browser session.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apihandler "github.com/chatrelay/chatrelay/internal/api"
	"github.com/chatrelay/chatrelay/internal/automator"
	"github.com/chatrelay/chatrelay/internal/backend"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/models"
	"github.com/chatrelay/chatrelay/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chatrelay:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	client := backend.NewClient(cfg.BackendURL, cfg.AuthToken, logger)
	poller := backend.NewPoller(client, cfg.PollInterval, cfg.PollCeiling, cfg.NetworkRetries, logger)

	// The browser is created lazily on the first request; a failed launch
	// is cached and surfaced to every caller until restart.
	pool := session.NewPool(func() (*session.Session, error) {
		auto, err := automator.Launch(context.Background(), automator.Config{
			Binary:      cfg.ChromeBinary,
			ProfileDir:  cfg.ProfileDir,
			DebugPort:   cfg.DebugPort,
			Headless:    cfg.Headless,
			TypingMode:  string(automator.NormalizeTypingMode(cfg.TypingMode)),
			KeyDelayMin: cfg.KeyDelayMin,
			KeyDelayMax: cfg.KeyDelayMax,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return session.New(auto, poller, session.Options{
			SubmitTimeout: cfg.SubmitTimeout,
			Retries:       cfg.NetworkRetries,
			Bell:          cfg.EnableBell,
			Logger:        logger,
		}), nil
	})
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Warn("browser shutdown", "error", err)
		}
	}()

	catalog := models.NewStore(cfg.ModelsPath, logger)
	handler := apihandler.NewHandler(pool, catalog, cfg.SystemPromptMode, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	handler.Mount(r)

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: a completion can legitimately take hours.
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// requestLogger emits one structured line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr)
		})
	}
}
