// Package config loads server configuration from a yaml file, a .env file
// and environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"golang.org/x/crypto/bcrypt"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Environment variable names
const (
	EnvConfigFile        = "LAZYSIGNUP_CONFIG"
	EnvAddr              = "LAZYSIGNUP_ADDR"
	EnvLogLevel          = "LOG_LEVEL"
	EnvStorage           = "STORAGE_TYPE"
	EnvRedisURL          = "REDIS_URL"
	EnvDatabaseDSN       = "DATABASE_DSN"
	EnvBlacklistPatterns = "LAZYSIGNUP_BLACKLIST_PATTERNS" // comma separated, see splitPatterns
	EnvSessionDuration   = "LAZYSIGNUP_SESSION_DURATION"
	EnvLazyTTL           = "LAZYSIGNUP_LAZY_TTL"
	EnvAdminToken        = "LAZYSIGNUP_ADMIN_TOKEN"
	EnvBcryptCost        = "LAZYSIGNUP_BCRYPT_COST"
	EnvSecureCookie      = "LAZYSIGNUP_SECURE_COOKIE"
)

// Config is the server configuration
type Config struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`

	Storage     string `yaml:"storage"`
	RedisURL    string `yaml:"redis_url"`
	DatabaseDSN string `yaml:"database_dsn"`

	// BlacklistPatterns replaces the built-in user agent blacklist when non-empty
	BlacklistPatterns []string `yaml:"blacklist_patterns"`

	SessionDuration time.Duration `yaml:"session_duration"`
	// LazyTTL is the age after which lazy users count as stale
	LazyTTL time.Duration `yaml:"lazy_ttl"`

	// AdminToken guards the admin endpoints; empty disables them
	AdminToken string `yaml:"admin_token"`
	BcryptCost int    `yaml:"bcrypt_cost"`

	// SecureCookie marks the session cookie Secure
	SecureCookie bool `yaml:"secure_cookie"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Addr:            ":8080",
		LogLevel:        "info",
		Storage:         StorageMemory,
		SessionDuration: 24 * time.Hour,
		LazyTTL:         14 * 24 * time.Hour,
		BcryptCost:      bcrypt.DefaultCost,
	}
}

// Load builds the configuration. path may be empty, in which case
// LAZYSIGNUP_CONFIG is consulted; a missing .env file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Addr, EnvAddr)
	setString(&c.LogLevel, EnvLogLevel)
	setString(&c.Storage, EnvStorage)
	setString(&c.RedisURL, EnvRedisURL)
	setString(&c.DatabaseDSN, EnvDatabaseDSN)
	setString(&c.AdminToken, EnvAdminToken)

	if v := os.Getenv(EnvBlacklistPatterns); v != "" {
		c.BlacklistPatterns = splitPatterns(v)
	}

	if err := setDuration(&c.SessionDuration, EnvSessionDuration); err != nil {
		return err
	}
	if err := setDuration(&c.LazyTTL, EnvLazyTTL); err != nil {
		return err
	}

	if v := os.Getenv(EnvBcryptCost); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvBcryptCost, err)
		}
		c.BcryptCost = cost
	}

	if v := os.Getenv(EnvSecureCookie); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvSecureCookie, err)
		}
		c.SecureCookie = secure
	}
	return nil
}

// Validate checks the configuration is usable
func (c Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StorageRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis_url required when storage is %q", StorageRedis)
		}
	case StorageSQLite:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database_dsn required when storage is %q", StorageSQLite)
		}
	case StoragePostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database_dsn required when storage is %q", StoragePostgres)
		}
	default:
		return fmt.Errorf("invalid storage %q: must be one of memory, redis, sqlite, postgres", c.Storage)
	}

	if c.SessionDuration <= 0 {
		return errors.New("session_duration must be positive")
	}
	if c.LazyTTL <= 0 {
		return errors.New("lazy_ttl must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return level, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

// splitPatterns splits a comma separated list of regular expressions.
// Only top-level commas separate: bot{1,3} and [a,b] are kept whole and an
// escaped \, is kept as part of its pattern.
func splitPatterns(v string) []string {
	var (
		out   []string
		depth int
		start int
	)
	add := func(part string) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	for i := 0; i < len(v); i++ {
		switch v[i] {
		case '\\':
			i++
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				add(v[start:i])
				start = i + 1
			}
		}
	}
	add(v[start:])
	return out
}
