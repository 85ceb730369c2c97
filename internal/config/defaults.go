package config

import (
	"strings"

	"radar/internal/diff"
	"radar/internal/ingest"
	"radar/internal/observation"
	"radar/internal/report"
	"radar/internal/store"
)

const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppLogFormat     = "text"
	defaultAppHTTPAddr      = ":8080"
	defaultStoreDriver      = DriverSQLite
	defaultSQLitePath       = "data/radar.db"
	defaultDuplicatePolicy  = string(store.DuplicateReplace)
	defaultPostgRESTTable   = store.TableName
	defaultPostgRESTTimeout = 30
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30
	defaultRetryAttempts    = 3
	defaultRetryBaseDelayMS = 200
	defaultRetryMaxDelayMS  = 5000
	defaultReportLogPath    = "data/reports.db"
	defaultPolicyPath       = "configs/reorder_policy.yaml"
)

// Store drivers.
const (
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverPostgREST = "postgrest"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.ReportLog.applyDefaults(keys)
	c.Ingest.applyDefaults(keys)
	c.Diff.applyDefaults(keys)
	c.Reports.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.driver", &s.Driver, defaultStoreDriver),
		stringFieldDefault("store.sqlite_path", &s.SQLitePath, defaultSQLitePath),
		stringFieldDefault("store.duplicate_policy", &s.DuplicatePolicy, defaultDuplicatePolicy),
		intFieldDefault("store.chunk_size", &s.ChunkSize, store.DefaultChunkSize),
		intFieldDefault("store.page_size", &s.PageSize, store.DefaultPageSize),
		stringFieldDefault("store.postgrest.table", &s.PostgREST.Table, defaultPostgRESTTable),
		intFieldDefault("store.postgrest.timeout_seconds", &s.PostgREST.TimeoutSeconds, defaultPostgRESTTimeout),
		intFieldDefault("store.postgrest.breaker_threshold", &s.PostgREST.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("store.postgrest.breaker_cooldown_seconds", &s.PostgREST.BreakerCooldownSeconds, defaultBreakerCooldown),
		intFieldDefault("store.retry.max_attempts", &s.Retry.MaxAttempts, defaultRetryAttempts),
		intFieldDefault("store.retry.base_delay_ms", &s.Retry.BaseDelayMS, defaultRetryBaseDelayMS),
		intFieldDefault("store.retry.max_delay_ms", &s.Retry.MaxDelayMS, defaultRetryMaxDelayMS),
	)
}

func (r *ReportLogConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("report_log.path", &r.Path, defaultReportLogPath),
	)
}

func (i *IngestConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	def := ingest.DefaultColumns()
	applyFieldDefaults(keys,
		stringFieldDefault("ingest.columns.price", &i.Columns.Price, def.Price),
		stringFieldDefault("ingest.columns.stock", &i.Columns.Stock, def.Stock),
		stringFieldDefault("ingest.columns.units_sold", &i.Columns.UnitsSold, def.UnitsSold),
		stringFieldDefault("ingest.columns.title", &i.Columns.Title, def.Title),
		stringFieldDefault("ingest.columns.product_id", &i.Columns.ProductID, def.ProductID),
		stringFieldDefault("ingest.columns.brand", &i.Columns.Brand, def.Brand),
		stringFieldDefault("ingest.columns.sku", &i.Columns.SKU, def.SKU),
		intFieldDefault("ingest.title_max", &i.TitleMax, observation.DefaultTitleMax),
		fieldDefault{
			key:   "ingest.filename_prefixes",
			need:  func() bool { return i.FilenamePrefixes == nil },
			apply: func() { i.FilenamePrefixes = append([]string(nil), ingest.DefaultFilenamePrefixes...) },
		},
	)
}

func (d *DiffConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "diff.threshold",
			need:  func() bool { return d.Threshold <= 0 },
			apply: func() { d.Threshold = diff.DefaultThreshold.InexactFloat64() },
		},
		intFieldDefault("diff.top_n", &d.TopN, diff.DefaultTopN),
	)
}

func (r *ReportsConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "reports.undercut",
			need:  func() bool { return r.Undercut <= 0 },
			apply: func() { r.Undercut = report.DefaultUndercut.InexactFloat64() },
		},
		intFieldDefault("reports.reorder_window_days", &r.ReorderWindowDays, report.DefaultReorderWindowDays),
		intFieldDefault("reports.sma_window", &r.SMAWindow, report.DefaultSMAWindow),
		stringFieldDefault("reports.policy_path", &r.PolicyPath, defaultPolicyPath),
	)
}

type keySet map[string]struct{}

func (k keySet) mark(key string) {
	if k == nil {
		return
	}
	k[strings.ToLower(strings.TrimSpace(key))] = struct{}{}
}

func (k keySet) has(key string) bool {
	if k == nil {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// fieldDefault applies def only when key was absent from every config file
// and need reports the field is unset.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.has(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}
