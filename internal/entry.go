// Package internal provides the main application initialization and runtime logic.
package internal

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/swairshah/zotero-mcp-server/internal/api"
	"github.com/swairshah/zotero-mcp-server/internal/library"
	"github.com/swairshah/zotero-mcp-server/internal/localdb"
	"github.com/swairshah/zotero-mcp-server/internal/mcpserver"
	"github.com/swairshah/zotero-mcp-server/internal/sse"
	"github.com/swairshah/zotero-mcp-server/internal/storage"
	"github.com/swairshah/zotero-mcp-server/internal/webapi"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Structured JSON logger on stderr: stdout belongs to the MCP stdio
	// transport when it is enabled.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("backend", cfg.Backend),
		slog.Bool("mcp_stdio", app.mcpStdio),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Select the library backend once, at startup.
	backend, err := buildBackend(cfg, logger)
	if err != nil {
		return err
	}

	svc := library.NewService(backend)

	// SSE broker.
	throttle := cfg.Database.Throttle
	if throttle <= 0 {
		throttle = 2 * time.Second
	}
	broker := sse.NewBroker(throttle)
	defer broker.Close()

	// Build API router. The token is only handed over when the auth mode
	// actually enables it; a stray token in disabled mode must not lock
	// the API.
	authToken := ""
	if cfg.Auth.AuthEnabled() {
		authToken = cfg.Auth.Token
	}
	apiRouter := api.NewRouter(svc, broker, authToken)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := backend.(interface {
			Ping(context.Context) (int, error)
		}); ok {
			if _, err := p.Ping(req.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api. The SSE endpoint lives inside the API
	// router at /api/events, behind the same auth middleware.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the database file for desktop-app writes and fan the change out
	// over SSE. Only meaningful for the database backend.
	if cfg.Backend == BackendDatabase && cfg.Database.WatchEvents {
		g.Go(func() error {
			if err := localdb.Watch(gCtx, cfg.Database.Path, logger, broker.PublishLibraryUpdated); err != nil {
				logger.Warn("database watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// MCP stdio transport.
	if app.mcpStdio {
		g.Go(func() error {
			logger.Info("Starting MCP server on stdio")
			mcpSrv := mcpserver.New(svc, broker)
			if err := mcpSrv.ServeStdio(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP server error: %w", err)
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func buildBackend(cfg *Config, logger *slog.Logger) (library.Backend, error) {
	switch cfg.Backend {
	case BackendDatabase:
		var attachments storage.Provider
		if cfg.Database.StorageDir != "" {
			fsp, err := storage.NewFS(cfg.Database.StorageDir)
			if err != nil {
				return nil, fmt.Errorf("init attachment storage: %w", err)
			}
			attachments = fsp
		} else {
			logger.Warn("no storage directory configured, PDF content disabled")
		}

		store, err := localdb.New(cfg.Database.Path, attachments)
		if err != nil {
			return nil, fmt.Errorf("init database backend: %w", err)
		}
		logger.Info("Using local database backend",
			slog.String("path", cfg.Database.Path))
		return store, nil

	case BackendAPI:
		client := webapi.New(cfg.Zotero.BaseURL, cfg.Zotero.UserID, cfg.Zotero.APIKey)
		logger.Info("Using Zotero Web API backend",
			slog.String("user_id", cfg.Zotero.UserID))
		return client, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
