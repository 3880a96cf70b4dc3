package database

import "time"

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds SQL connection settings
type Config struct {
	// Driver is "sqlite" or "postgres"
	Driver string
	// DSN is the driver-specific data source name
	DSN string

	// SlowThreshold is the query duration above which queries are logged
	SlowThreshold time.Duration
}

// DefaultConfig returns an in-memory SQLite configuration
func DefaultConfig() Config {
	return Config{
		Driver:        DriverSQLite,
		DSN:           ":memory:",
		SlowThreshold: time.Second,
	}
}
