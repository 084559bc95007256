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

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/kenaz-canvas/internal/api"
	"github.com/starford/kenaz-canvas/internal/apperr"
	"github.com/starford/kenaz-canvas/internal/attachments"
	"github.com/starford/kenaz-canvas/internal/controller"
	"github.com/starford/kenaz-canvas/internal/index"
	"github.com/starford/kenaz-canvas/internal/mcpserver"
	"github.com/starford/kenaz-canvas/internal/noteservice"
	"github.com/starford/kenaz-canvas/internal/persist"
	"github.com/starford/kenaz-canvas/internal/sse"
	"github.com/starford/kenaz-canvas/internal/storage"
)

// components is everything Run and RunMCP share.
type components struct {
	logger *slog.Logger
	store  *storage.FS
	db     *index.DB
	broker *sse.Broker
	svc    *noteservice.Service
	sched  *persist.Scheduler
	ctl    *controller.Controller
}

// close drops unsaved canvas edits; callers save first.
func (c *components) close() {
	c.ctl.Close()
	c.sched.Close()
	c.broker.Close()
	if err := c.db.Close(); err != nil {
		c.logger.Error("close index", slog.String("error", err.Error()))
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func bootstrap(cfg *Config, logOutput io.Writer) (*components, error) {
	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Duration("save_debounce", cfg.Persistence.Debounce),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	// Run initial sync.
	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	broker := sse.NewBroker(2 * time.Second)

	svc := noteservice.NewService(store, db,
		noteservice.WithLimits(cfg.Canvas.Limits()),
		noteservice.WithActivationHook(broker.PublishActivated),
	)

	sched := persist.New(svc, persist.Options{
		Debounce:     cfg.Persistence.Debounce,
		WriteTimeout: cfg.Persistence.WriteTimeout,
		Active:       svc.ActiveNote,
		OnSaved:      broker.PublishCanvasSaved,
		OnFailure:    broker.PublishSaveFailed,
		Logger:       logger.With(slog.String("component", "persist")),
	})

	ctl := controller.New(svc, sched, controller.Config{
		Interaction: cfg.Canvas.Interaction(),
		Limits:      cfg.Canvas.Limits(),
		Screen:      cfg.Canvas.Screen(),
		Logger:      logger.With(slog.String("component", "controller")),
	})

	return &components{
		logger: logger,
		store:  store,
		db:     db,
		broker: broker,
		svc:    svc,
		sched:  sched,
		ctl:    ctl,
	}, nil
}

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	c, err := bootstrap(cfg, app.logOutput)
	if err != nil {
		return err
	}
	defer c.close()
	logger := c.logger

	apiRouter := api.NewRouter(c.svc, c.ctl, api.RouterConfig{
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
		Events:      c.broker,
		Store:       c.store,
		VaultRoot:   c.store.Root(),
		Logger:      logger,
	})
	r := api.NewRootRouter(apiRouter,
		api.NewAttachmentHandler(c.store, c.store.Root(), logger),
		c.svc.Ping,
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		w := index.NewWatcher(c.db, c.store, c.store.Root(), logger,
			index.WithCallback(c.broker.PublishNoteEvent),
			index.WithIgnoredDirs(attachments.Dir),
		)
		if err := w.Run(gCtx); err != nil {
			logger.Error("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

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
		defer signal.Stop(quit)

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

		// Write the open canvas before the scheduler stops.
		if id := c.ctl.ActiveNoteID(); id != "" {
			if err := c.ctl.SaveNow(shutdownCtx); err != nil && !errors.Is(err, apperr.ErrNotCanvas) {
				logger.Error("final canvas save failed", slog.String("note", id), slog.String("error", err.Error()))
			}
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

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
// Logs go to the configured log output, which must not be stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	c, err := bootstrap(app.config, app.logOutput)
	if err != nil {
		return err
	}
	defer c.close()

	c.logger.Info("MCP server starting")
	if err := mcpserver.New(c.svc, c.ctl, c.store).ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	if id := c.ctl.ActiveNoteID(); id != "" {
		if err := c.ctl.SaveNow(ctx); err != nil && !errors.Is(err, apperr.ErrNotCanvas) {
			c.logger.Error("final canvas save failed", slog.String("note", id), slog.String("error", err.Error()))
		}
	}
	return nil
}
