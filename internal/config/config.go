// Package config provides centralized configuration management for the import
// server. It loads configuration from environment variables with sensible
// defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Sink drivers accepted by SINK_DRIVER.
const (
	SinkPostgres = "postgres"
	SinkSQLite   = "sqlite"
	SinkLog      = "log"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Sink     SinkConfig
	Import   ImportConfig
	Upload   UploadConfig
	Session  SessionConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are honored
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// CORSAllowedOrigins enables CORS for the listed origins; empty disables it
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required for the postgres sink.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// SinkConfig selects where committed records go.
type SinkConfig struct {
	// Driver is postgres, sqlite or log (default: sqlite)
	Driver string `env:"SINK_DRIVER" default:"sqlite"`

	// SQLitePath is the database file of the sqlite sink (default: bizimport.db)
	SQLitePath string `env:"SINK_SQLITE_PATH" default:"bizimport.db"`

	// Table receives the committed records (default: import_records)
	Table string `env:"SINK_TABLE" default:"import_records"`

	// CommitTimeout bounds a single commit (default: 2m)
	CommitTimeout time.Duration `env:"SINK_COMMIT_TIMEOUT" default:"2m"`
}

// ImportConfig holds the defaults applied to new import sessions.
type ImportConfig struct {
	// DefaultEntity is used when a session is created without one (default: prospect)
	DefaultEntity string `env:"IMPORT_DEFAULT_ENTITY" default:"prospect"`

	// Delimiter is a literal character or comma, semicolon, tab, pipe (default: ,)
	Delimiter string `env:"IMPORT_DELIMITER" default:","`

	// HasHeaders treats the first line as a header row (default: true)
	HasHeaders bool `env:"IMPORT_HAS_HEADERS" default:"true"`

	// SkipEmptyLines drops whitespace-only lines (default: true)
	SkipEmptyLines bool `env:"IMPORT_SKIP_EMPTY_LINES" default:"true"`

	// TrimValues trims every cell (default: true)
	TrimValues bool `env:"IMPORT_TRIM_VALUES" default:"true"`

	// Encoding is the WHATWG label of uploaded files (default: utf-8)
	Encoding string `env:"IMPORT_ENCODING" default:"utf-8"`

	// MaxFileSize is the maximum accepted file size in bytes (default: 10MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"10485760"`
}

// UploadConfig holds concurrency settings for file reads and commits.
type UploadConfig struct {
	// MaxConcurrent is the maximum number of parallel reads and commits (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
}

// SessionConfig controls the in-memory session store.
type SessionConfig struct {
	// MaxSessions caps the number of live sessions (default: 1000)
	MaxSessions int `env:"SESSION_MAX" default:"1000"`

	// IdleTTL evicts sessions untouched for this long (default: 1h)
	IdleTTL time.Duration `env:"SESSION_IDLE_TTL" default:"1h"`

	// SweepInterval is how often idle sessions are evicted (default: 5m)
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" default:"5m"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
