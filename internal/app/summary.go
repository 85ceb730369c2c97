package app

import (
	"fmt"
	"strings"

	"radar/internal/config"
	"radar/internal/logger"
)

// StartupSummary is printed once when the server starts.
type StartupSummary struct {
	Env         string
	HTTPAddr    string
	Driver      string
	Location    string
	Policy      string
	CacheTTL    string
	Archive     string
	PolicyFile  string
	WatchPolicy bool
	Columns     []string
}

func newStartupSummary(cfg *config.Config) *StartupSummary {
	s := &StartupSummary{
		Env:         cfg.App.Env,
		HTTPAddr:    cfg.App.HTTPAddr,
		Driver:      cfg.Store.NormalizedDriver(),
		Policy:      cfg.Store.DuplicatePolicy,
		CacheTTL:    cfg.Store.CacheTTL().String(),
		Archive:     "disabled",
		PolicyFile:  cfg.Reports.PolicyPath,
		WatchPolicy: cfg.Reports.WatchPolicy,
	}
	switch s.Driver {
	case config.DriverSQLite:
		s.Location = cfg.Store.SQLitePath
	case config.DriverPostgres:
		s.Location = redactDSN(cfg.Store.PostgresDSN)
	case config.DriverPostgREST:
		s.Location = cfg.Store.PostgREST.URL + " (table " + cfg.Store.PostgREST.Table + ")"
	}
	if cfg.ReportLog.Enabled {
		s.Archive = cfg.ReportLog.Path
	}
	cols := cfg.Ingest.Columns
	s.Columns = []string{cols.ProductID, cols.Title, cols.Brand, cols.Price, cols.Stock, cols.UnitsSold, cols.SKU}
	return s
}

// redactDSN hides the password of a postgres URL.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		creds = creds[:i] + ":***"
	}
	return dsn[:scheme+3] + creds + dsn[at:]
}

func (s *StartupSummary) String() string {
	var b strings.Builder
	line := strings.Repeat("=", 60)
	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "radar startup summary")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "  env:          %s\n", s.Env)
	fmt.Fprintf(&b, "  http:         %s\n", s.HTTPAddr)
	fmt.Fprintf(&b, "  store:        %s %s\n", s.Driver, s.Location)
	fmt.Fprintf(&b, "  duplicates:   %s\n", s.Policy)
	fmt.Fprintf(&b, "  cache ttl:    %s\n", s.CacheTTL)
	fmt.Fprintf(&b, "  archive:      %s\n", s.Archive)
	fmt.Fprintf(&b, "  policy file:  %s (watch=%t)\n", s.PolicyFile, s.WatchPolicy)
	fmt.Fprintf(&b, "  columns:      %s\n", strings.Join(s.Columns, ", "))
	fmt.Fprintln(&b, line)
	return b.String()
}

// Print writes the summary through the logger, one line per record.
func (s *StartupSummary) Print() {
	logger.InfoBlock(s.String())
}
