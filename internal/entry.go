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
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mitchellh/go-homedir"
	"golang.org/x/sync/errgroup"

	"github.com/starford/feathernotes/internal/api"
	"github.com/starford/feathernotes/internal/apperr"
	"github.com/starford/feathernotes/internal/index"
	"github.com/starford/feathernotes/internal/mcpserver"
	"github.com/starford/feathernotes/internal/prompt"
	"github.com/starford/feathernotes/internal/session"
	"github.com/starford/feathernotes/internal/sse"
	"github.com/starford/feathernotes/internal/storage"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{version: "dev"}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// stdout carries the MCP protocol in --mcp mode.
	var logOut io.Writer = os.Stdout
	if app.mcp {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.Bool("http_enabled", cfg.App.HTTP.Enabled),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("notes_dir", cfg.Notes.Dir),
		slog.Bool("index_enabled", cfg.Index.Enabled),
		slog.Int("auto_save_minutes", cfg.Editor.AutoSaveMinutes),
		slog.Bool("minimized", app.start.Minimized || cfg.Tray.StartMinimized),
		slog.Bool("tray", app.start.Tray || cfg.Tray.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	textFont, nodeFont := cfg.Editor.Fonts()
	sessOpts := []session.Option{
		session.WithFonts(textFont, nodeFont),
		session.WithPublisher(broker),
		session.WithLogger(logger),
	}
	if !app.mcp {
		sessOpts = append(sessOpts, session.WithPrompter(prompt.Stdio()))
	}
	sess := session.New(sessOpts...)

	if path, err := app.startFile(); err != nil {
		logger.Warn("cannot resolve start-up file", slog.String("error", err.Error()))
	} else if path != "" {
		if err := sess.Open(ctx, path); err != nil {
			logger.Warn("cannot open start-up file",
				slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	var (
		lib   index.LibraryIndex
		db    *index.DB
		store *storage.FS
	)
	if cfg.Index.Enabled {
		var err error
		db, store, err = openLibrary(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		lib = db
	}

	g, gCtx := errgroup.WithContext(ctx)

	if db != nil {
		notesDir := store.Root()
		g.Go(func() error {
			return index.Watch(gCtx, db, store, notesDir, logger, broker.PublishLibraryEvent)
		})
	}

	g.Go(func() error {
		sess.RunAutoSave(gCtx, cfg.Editor.AutoSaveInterval())
		return nil
	})

	g.Go(func() error {
		if err := sess.WatchFile(gCtx); err != nil {
			logger.Warn("file watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	var httpServer *http.Server
	if cfg.App.HTTP.Enabled {
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

		r.Mount("/api", api.NewRouter(sess, lib, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

		httpServer = &http.Server{
			Addr:              cfg.App.HTTP.Address(),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	if app.mcp {
		srv := mcpserver.New(sess, lib, app.version)
		g.Go(func() error {
			defer cancel()
			logger.Info("Serving MCP on stdio")
			return srv.ServeStdio()
		})
	}

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
		cancel()

		if httpServer != nil {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelShutdown()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
		}

		// Last chance to save unsaved changes.
		if err := sess.Close(context.Background()); err != nil && !errors.Is(err, apperr.ErrCancelled) {
			logger.Error("closing document failed", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Stopped")
	return nil
}

// startFile resolves the document to open: the command-line file first,
// then notes.default_file relative to notes.dir.
func (a *application) startFile() (string, error) {
	if a.file != "" {
		p, err := homedir.Expand(a.file)
		if err != nil {
			return "", err
		}
		return filepath.Abs(p)
	}
	if a.config.Notes.DefaultFile == "" {
		return "", nil
	}
	p, err := homedir.Expand(a.config.Notes.DefaultFile)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) && a.config.Notes.Dir != "" {
		dir, err := homedir.Expand(a.config.Notes.Dir)
		if err != nil {
			return "", err
		}
		p = filepath.Join(dir, p)
	}
	return filepath.Abs(p)
}

// openLibrary opens the index database and brings it up to date with the
// notes directory.
func openLibrary(cfg *Config, logger *slog.Logger) (*index.DB, *storage.FS, error) {
	notesDir, err := homedir.Expand(cfg.Notes.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve notes dir: %w", err)
	}
	if err := os.MkdirAll(notesDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create notes dir: %w", err)
	}
	store, err := storage.NewFS(notesDir)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	dbPath, err := homedir.Expand(cfg.Index.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve index path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create index dir: %w", err)
	}
	db, err := index.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("init index: %w", err)
	}

	if err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	return db, store, nil
}

// ChangePassword opens path, asks for a new password twice and saves the
// document with it. An empty password removes the protection.
func ChangePassword(ctx context.Context, cfg *Config, path string) error {
	p := prompt.Stdio()
	textFont, nodeFont := cfg.Editor.Fonts()
	sess := session.New(
		session.WithFonts(textFont, nodeFont),
		session.WithPrompter(p),
	)
	if err := sess.Open(ctx, path); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	pw, err := p.NewPassword(ctx)
	if err != nil {
		return err
	}
	if err := sess.SetPassword(pw); err != nil {
		return err
	}
	if err := sess.Save(ctx); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
