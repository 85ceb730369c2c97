package config

import (
	"strings"
	"time"

	"radar/internal/ingest"
)

// Config is the root of radar's configuration.
type Config struct {
	App       AppConfig       `toml:"app"`
	Store     StoreConfig     `toml:"store"`
	ReportLog ReportLogConfig `toml:"report_log"`
	Ingest    IngestConfig    `toml:"ingest"`
	Diff      DiffConfig      `toml:"diff"`
	Reports   ReportsConfig   `toml:"reports"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogPath   string `toml:"log_path"`
	// AuditPath receives per-upload coercion dumps; empty disables them.
	AuditPath string `toml:"audit_path"`
	HTTPAddr  string `toml:"http_addr"`
}

// StoreConfig selects and tunes the observation history backend.
type StoreConfig struct {
	Driver          string          `toml:"driver"` // sqlite | postgres | postgrest
	SQLitePath      string          `toml:"sqlite_path"`
	PostgresDSN     string          `toml:"postgres_dsn"`
	ChunkSize       int             `toml:"chunk_size"`
	PageSize        int             `toml:"page_size"`
	DuplicatePolicy string          `toml:"duplicate_policy"`
	CacheTTLSeconds int             `toml:"cache_ttl_seconds"`
	RetentionDays   int             `toml:"retention_days"`
	PostgREST       PostgRESTConfig `toml:"postgrest"`
	Retry           RetryConfig     `toml:"retry"`
	Ledger          LedgerConfig    `toml:"ledger"`
}

func (s StoreConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

type PostgRESTConfig struct {
	URL                    string `toml:"url"`
	APIKey                 string `toml:"api_key"`
	Table                  string `toml:"table"`
	TimeoutSeconds         int    `toml:"timeout_seconds"`
	BreakerThreshold       int    `toml:"breaker_threshold"`
	BreakerCooldownSeconds int    `toml:"breaker_cooldown_seconds"`
}

func (p PostgRESTConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (p PostgRESTConfig) BreakerCooldown() time.Duration {
	return time.Duration(p.BreakerCooldownSeconds) * time.Second
}

// RetryConfig bounds retries of network drivers.
type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts"`
	BaseDelayMS int `toml:"base_delay_ms"`
	MaxDelayMS  int `toml:"max_delay_ms"`
}

func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// LedgerConfig locates the upload ledger. With the sqlite driver the ledger
// shares the store database unless Path is set.
type LedgerConfig struct {
	Path string `toml:"path"`
}

type ReportLogConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type IngestConfig struct {
	Columns          ingest.Columns `toml:"columns"`
	FilenamePrefixes []string       `toml:"filename_prefixes"`
	TitleMax         int            `toml:"title_max"`
}

type DiffConfig struct {
	Threshold float64 `toml:"threshold"`
	TopN      int     `toml:"top_n"`
}

// ReportsConfig tunes the rollups.
type ReportsConfig struct {
	Undercut          float64 `toml:"undercut"`
	ReorderWindowDays int     `toml:"reorder_window_days"`
	SMAWindow         int     `toml:"sma_window"`
	PolicyPath        string  `toml:"policy_path"`
	WatchPolicy       bool    `toml:"watch_policy"`
}

// NormalizedDriver lowercases the driver name.
func (s StoreConfig) NormalizedDriver() string {
	return strings.ToLower(strings.TrimSpace(s.Driver))
}
