package config

import (
	"fmt"
	"strings"

	"radar/internal/store"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if c.ReportLog.Enabled && strings.TrimSpace(c.ReportLog.Path) == "" {
		return fmt.Errorf("report_log.path is required when report_log.enabled")
	}
	if c.Ingest.TitleMax < 0 {
		return fmt.Errorf("ingest.title_max must be >= 0")
	}
	if strings.TrimSpace(c.Ingest.Columns.ProductID) == "" {
		return fmt.Errorf("ingest.columns.product_id cannot be empty")
	}
	if c.Diff.Threshold < 0 {
		return fmt.Errorf("diff.threshold must be >= 0")
	}
	if c.Diff.TopN < 0 {
		return fmt.Errorf("diff.top_n must be >= 0")
	}
	return c.Reports.validate()
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level %q is invalid (debug|info|warn|error)", a.LogLevel)
	}
	switch strings.ToLower(strings.TrimSpace(a.LogFormat)) {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format %q is invalid (text|json)", a.LogFormat)
	}
	return nil
}

func (s *StoreConfig) validate() error {
	switch s.NormalizedDriver() {
	case DriverSQLite:
		if strings.TrimSpace(s.SQLitePath) == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(s.PostgresDSN) == "" {
			return fmt.Errorf("store.postgres_dsn is required for the postgres driver")
		}
	case DriverPostgREST:
		if strings.TrimSpace(s.PostgREST.URL) == "" {
			return fmt.Errorf("store.postgrest.url is required for the postgrest driver")
		}
	default:
		return fmt.Errorf("store.driver %q is invalid (sqlite|postgres|postgrest)", s.Driver)
	}
	if s.NormalizedDriver() != DriverSQLite && strings.TrimSpace(s.Ledger.Path) == "" {
		return fmt.Errorf("store.ledger.path is required for the %s driver", s.NormalizedDriver())
	}
	if _, err := store.ParseDuplicatePolicy(s.DuplicatePolicy); err != nil {
		return fmt.Errorf("store.duplicate_policy: %w", err)
	}
	if s.CacheTTLSeconds < 0 {
		return fmt.Errorf("store.cache_ttl_seconds must be >= 0")
	}
	if s.RetentionDays < 0 {
		return fmt.Errorf("store.retention_days must be >= 0")
	}
	if s.Retry.MaxDelayMS > 0 && s.Retry.MaxDelayMS < s.Retry.BaseDelayMS {
		return fmt.Errorf("store.retry.max_delay_ms must be >= base_delay_ms")
	}
	return nil
}

func (r *ReportsConfig) validate() error {
	if r.Undercut < 0 {
		return fmt.Errorf("reports.undercut must be >= 0")
	}
	if r.ReorderWindowDays <= 0 {
		return fmt.Errorf("reports.reorder_window_days must be > 0")
	}
	if r.SMAWindow <= 0 {
		return fmt.Errorf("reports.sma_window must be > 0")
	}
	return nil
}
