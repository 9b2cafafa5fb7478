// Package config provides centralized configuration management for the application.
// Values come from environment variables, an optional YAML file named by
// CONFIG_FILE, and struct-tag defaults, in that order of precedence. All
// settings are validated on startup to fail fast on misconfiguration.
package config

import (
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Storage  StorageConfig   `yaml:"storage"`
	Upload   UploadConfig    `yaml:"upload"`
	Cache    CacheConfig     `yaml:"cache"`
	Rate     RateLimitConfig `yaml:"rate"`
	Security SecurityConfig  `yaml:"security"`
	Logging  LoggingConfig   `yaml:"logging"`
	Audit    AuditConfig     `yaml:"audit"`
	Database DatabaseConfig  `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 127.0.0.1)
	Host string `env:"SERVER_HOST" yaml:"host" default:"127.0.0.1"`

	// Port is the port to listen on (default: 5000)
	Port int `env:"SERVER_PORT" envAlt:"PORT" yaml:"port" default:"5000"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" yaml:"read_timeout" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, exports can be slow)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" yaml:"write_timeout" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" yaml:"idle_timeout" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 120s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" yaml:"request_timeout" default:"120s"`
}

// StorageConfig locates the on-disk project store.
type StorageConfig struct {
	// DataDir holds config.json and the Projects directory (default: Data)
	DataDir string `env:"DATA_DIR" yaml:"data_dir" default:"Data"`
}

// ProjectsDir returns the directory holding one subdirectory per project.
func (s *StorageConfig) ProjectsDir() string {
	return filepath.Join(s.DataDir, "Projects")
}

// StateFile returns the path of the project registry.
func (s *StorageConfig) StateFile() string {
	return filepath.Join(s.DataDir, "config.json")
}

// UploadConfig holds upload processing settings.
type UploadConfig struct {
	// MaxFileSize is the maximum request body size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" yaml:"max_file_size" default:"52428800"`

	// MaxConcurrent is the maximum number of parallel uploads (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" yaml:"max_concurrent" default:"5"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" yaml:"max_wait_time" default:"30s"`

	// Timeout is the maximum duration for a single upload batch (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" yaml:"timeout" default:"10m"`

	// ChunkThreshold is the CSV size above which rows are decoded in chunks (default: 50MB)
	ChunkThreshold int64 `env:"UPLOAD_CHUNK_THRESHOLD" yaml:"chunk_threshold" default:"52428800"`

	// ChunkRows is the number of CSV records per chunk (default: 10000)
	ChunkRows int `env:"UPLOAD_CHUNK_ROWS" yaml:"chunk_rows" default:"10000"`

	// AllowedExtensions lists accepted upload extensions
	AllowedExtensions []string `env:"UPLOAD_ALLOWED_EXTENSIONS" yaml:"allowed_extensions" default:"xlsx,xls,csv"`

	// Reader selects the spreadsheet reader: fast or dom (default: fast)
	Reader string `env:"XLSX_READER" yaml:"reader" default:"fast"`
}

// CacheConfig holds in-memory table cache settings.
type CacheConfig struct {
	// TTL is how long a loaded table is served from memory (default: 5m)
	TTL time.Duration `env:"CACHE_TTL" yaml:"ttl" default:"300s"`

	// SweepInterval is how often the maintenance job runs (default: 1m)
	SweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" yaml:"sweep_interval" default:"1m"`

	// PrewarmExport regenerates the export package in the background after uploads
	PrewarmExport bool `env:"CACHE_PREWARM_EXPORT" yaml:"prewarm_export" default:"false"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" yaml:"enabled" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" yaml:"requests_per_minute" default:"300"`

	// UploadLimit is requests per minute for upload endpoints (default: 20)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" yaml:"upload_limit" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES" yaml:"trusted_proxies"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" yaml:"enable_csp" default:"true"`

	// RequireAPIKey protects /api routes with the X-API-Key header
	RequireAPIKey bool `env:"REQUIRE_API_KEY" yaml:"require_api_key" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS" yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" yaml:"level" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" yaml:"format" default:"text"`

	// File, when set, receives a copy of every log line
	File string `env:"LOG_FILE" yaml:"file"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	// MaxEntries is how many entries each project's audit file keeps (default: 500)
	MaxEntries int `env:"AUDIT_MAX_ENTRIES" yaml:"max_entries" default:"500"`

	// RetentionDays is how long the database mirror keeps entries (default: 90)
	RetentionDays int `env:"AUDIT_RETENTION_DAYS" yaml:"retention_days" default:"90"`

	// RiskDBPath is the SQLite file holding risk scans (default: <data dir>/risk.db)
	RiskDBPath string `env:"RISK_DB_PATH" yaml:"risk_db_path"`
}

// DatabaseConfig holds the optional Postgres audit mirror connection.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Empty disables the mirror.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" yaml:"url"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" yaml:"max_conns" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" yaml:"min_conns" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" yaml:"max_conn_lifetime" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" yaml:"max_conn_idle_time" default:"30m"`
}

// Enabled reports whether a database URL is configured.
func (d *DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
