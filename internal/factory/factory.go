package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mcoot/lazysignup-go/internal/dependencies/clock"
	"github.com/mcoot/lazysignup-go/internal/dependencies/random"
	"github.com/mcoot/lazysignup-go/internal/metrics"
	"github.com/mcoot/lazysignup-go/internal/services/auth"
	"github.com/mcoot/lazysignup-go/internal/services/classifier"
	"github.com/mcoot/lazysignup-go/internal/services/lazy"
	"github.com/mcoot/lazysignup-go/internal/storage"
	"github.com/mcoot/lazysignup-go/internal/storage/database"
	"github.com/mcoot/lazysignup-go/internal/storage/memory"
	redisstorage "github.com/mcoot/lazysignup-go/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypeSQLite   = "sqlite"
	StorageTypePostgres = "postgres"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Observability
	Metrics  *metrics.Metrics
	Registry prometheus.Gatherer

	// Services
	Classifier  *classifier.Classifier
	LazyService *lazy.Service
	AuthService *auth.Service
}

// Close releases the storage backend
func (a *App) Close() error {
	return a.Storage.Close()
}

// Config holds configuration for the application factory
type Config struct {
	// AuthConfig holds configuration for the auth service (optional)
	// If zero value, defaults to auth.DefaultConfig()
	AuthConfig auth.Config
	// BlacklistPatterns replaces the default user agent blacklist when non-empty
	BlacklistPatterns []string
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// DatabaseDSN is the connection string for the sqlite and postgres backends
	DatabaseDSN string
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	cls, err := classifier.New(cfg.BlacklistPatterns)
	if err != nil {
		return nil, err
	}

	store, err := newStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app := newWithDependencies(store, clock.New(), random.New(), cls, metrics.New(registry), cfg.AuthConfig, logger)
	app.Registry = registry

	logger.Info("storage ready", slog.String("type", storageType(cfg)))
	logger.Info("user agent blacklist loaded", slog.Any("patterns", cls.Patterns()))
	return app, nil
}

func storageType(cfg Config) string {
	if cfg.StorageType == "" {
		return StorageTypeMemory
	}
	return cfg.StorageType
}

// newStorage opens the configured backend. Every backend returned here
// implements RunInTx with real atomicity; anything else is refused.
func newStorage(cfg Config, logger *slog.Logger) (storage.Storage, error) {
	switch storageType(cfg) {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		return redisstorage.New(*cfg.RedisConfig)
	case StorageTypeSQLite, StorageTypePostgres:
		if cfg.DatabaseDSN == "" {
			return nil, fmt.Errorf("DatabaseDSN required when StorageType is %s", cfg.StorageType)
		}
		dbCfg := database.DefaultConfig()
		dbCfg.DSN = cfg.DatabaseDSN
		if cfg.StorageType == StorageTypePostgres {
			dbCfg.Driver = database.DriverPostgres
		}
		db, err := database.Open(dbCfg, logger)
		if err != nil {
			return nil, err
		}
		return database.New(db), nil
	default:
		return nil, errors.New("invalid StorageType: must be 'memory', 'redis', 'sqlite' or 'postgres'")
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	clk clock.Clock,
	rnd random.Random,
	cls *classifier.Classifier,
	m *metrics.Metrics,
	authCfg auth.Config,
	logger *slog.Logger,
) *App {
	return &App{
		Storage:     store,
		Clock:       clk,
		Random:      rnd,
		Metrics:     m,
		Classifier:  cls,
		LazyService: lazy.New(store, clk, rnd, m, logger),
		AuthService: auth.New(store, clk, authCfg, logger),
	}
}
