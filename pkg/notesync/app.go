package notesync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/notesync/notesync/pkg/engine"
	"github.com/notesync/notesync/pkg/logger"
	"github.com/notesync/notesync/pkg/poke"
	"github.com/notesync/notesync/pkg/store"
	"github.com/notesync/notesync/pkg/store/postgres"
	"github.com/notesync/notesync/pkg/store/surrealdb"
)

// Config holds application configuration.
type Config struct {
	// Database is "postgres" or "sqlite".
	Database    string
	PostgresDSN string
	SQLitePath  string

	// CVRStore is "sql" to keep client view records next to the data, or
	// "surrealdb" to keep them in SurrealDB.
	CVRStore      string
	SurrealDBURL  string
	SurrealDBNS   string
	SurrealDBDB   string
	SurrealDBUser string
	SurrealDBPass string

	ReadOnly bool // When true, pushes are rejected

	ServerPort string

	// LogFormat is text, json, zerolog or console.
	LogFormat string
	LogLevel  string
	// LogFile is only used by the zerolog formats.
	LogFile string

	// PushRate is the sustained pushes per second allowed per user. Zero
	// disables limiting.
	PushRate  float64
	PushBurst int

	// JWTSecret enables bearer-token authentication. When empty the user is
	// taken from the X-User-ID header.
	JWTSecret string
}

// App holds the application state.
type App struct {
	store    store.Store
	engine   *engine.Engine
	hub      *poke.Hub
	config   *Config
	logger   logger.Logger
	limiter  *rateLimiter
	readOnly atomic.Bool // Runtime read-only state (can be toggled)

	closers []io.Closer
}

// New creates a new application instance, connecting to the configured
// stores.
func New(ctx context.Context, config *Config) (*App, error) {
	log, logCloser, err := newLogger(config)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	var base store.Store
	switch config.Database {
	case "sqlite":
		base, err = postgres.NewSQLiteStore(config.SQLitePath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite: %w", err)
		}
		log.Info("Opened SQLite", "path", config.SQLitePath)
	default:
		base, err = postgres.NewPostgresStore(config.PostgresDSN, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		log.Info("Connected to PostgreSQL")
	}

	if config.CVRStore == "surrealdb" {
		views, err := surrealdb.NewClientViewStore(ctx,
			config.SurrealDBURL,
			config.SurrealDBNS,
			config.SurrealDBDB,
			config.SurrealDBUser,
			config.SurrealDBPass,
		)
		if err != nil {
			_ = base.Close()
			return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
		}
		log.Info("Keeping client view records in SurrealDB", "url", config.SurrealDBURL)
		base = store.WithClientViews(base, views)
	}

	app := NewWithStore(config, base, log)
	if logCloser != nil {
		app.closers = append(app.closers, logCloser)
	}
	return app, nil
}

// NewWithStore builds an App around an existing store. The App takes
// ownership of s.
func NewWithStore(config *Config, s store.Store, log logger.Logger) *App {
	if log == nil {
		log = logger.Nop()
	}
	app := &App{
		config: config,
		logger: log,
		hub:    poke.NewHub(log),
	}
	app.readOnly.Store(config.ReadOnly)

	// Wrap the store with read-only protection
	app.store = store.NewReadOnlyStore(s, app.IsReadOnly)
	app.engine = engine.New(app.store, engine.Options{
		Notifier: app.hub,
		Logger:   log,
	})
	app.limiter = newRateLimiter(config.PushRate, config.PushBurst)
	return app
}

// Close waits for pending notifications and releases every resource.
func (a *App) Close() error {
	a.engine.Wait()
	a.hub.Close()
	err := a.store.Close()
	for _, c := range a.closers {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Store returns the wrapped store (useful for testing)
func (a *App) Store() store.Store {
	return a.store
}

func (a *App) Engine() *engine.Engine {
	return a.engine
}

func (a *App) Hub() *poke.Hub {
	return a.hub
}

// SetReadOnly toggles maintenance mode. While read-only, pushes fail with a
// retryable storage error and pulls keep working.
func (a *App) SetReadOnly(readOnly bool) {
	a.readOnly.Store(readOnly)
	a.logger.Info("Application read-only mode changed", "read_only", readOnly)
}

// IsReadOnly is checked by the store wrapper on every write.
func (a *App) IsReadOnly() bool {
	return a.readOnly.Load()
}

func newLogger(config *Config) (logger.Logger, io.Closer, error) {
	level, err := logger.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	switch config.LogFormat {
	case "json":
		return logger.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil, nil
	case "zerolog", "console":
		build := logger.Build().FromBuffer(os.Stderr).Level(level)
		if config.LogFile != "" {
			build = build.FromPath(config.LogFile)
		}
		if config.LogFormat == "console" {
			build = build.Console()
		}
		zl, err := build.Make()
		if err != nil {
			return nil, nil, err
		}
		return zl, zl, nil
	default:
		return logger.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil, nil
	}
}

// getEnv returns the environment variable key, or defaultValue when it is
// unset or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
