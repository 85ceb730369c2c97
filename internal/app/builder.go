package app

import (
	"context"
	"errors"
	"fmt"

	"radar/internal/analysis"
	"radar/internal/config"
	"radar/internal/diff"
	"radar/internal/ingest"
	"radar/internal/logger"
	"radar/internal/policy"
	"radar/internal/report"
	"radar/internal/snapshot"
	"radar/internal/store"
	"radar/internal/store/ledger"
	"radar/internal/store/reportlog"
	dashboardhttp "radar/internal/transport/http/dashboard"

	"github.com/shopspring/decimal"
)

// Components holds every long-lived dependency. Close releases the stores.
type Components struct {
	Config   *config.Config
	Store    store.Store
	Ledger   *ledger.Ledger
	Archive  *reportlog.Store
	Policy   *policy.Registry
	Index    *snapshot.Index
	Diff     *diff.Engine
	Reports  *report.Engine
	Analysis *analysis.Service
	Ingest   *ingest.Service

	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

type AppBuilder struct {
	cfg *config.Config

	storesFn  func(context.Context, config.StoreConfig) (*Stores, error)
	archiveFn func(config.ReportLogConfig) (*reportlog.Store, error)
	policyFn  func(config.ReportsConfig) (*policy.Registry, error)
	httpFn    func(config.AppConfig, *Components) (*dashboardhttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

// WithStores replaces the store factory, mainly for tests.
func WithStores(fn func(context.Context, config.StoreConfig) (*Stores, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.storesFn = fn }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:       cfg,
		storesFn:  OpenStores,
		archiveFn: openArchive,
		policyFn:  openPolicy,
		httpFn:    buildHTTPServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// BuildComponents opens the stores and wires the engines.
func (b *AppBuilder) BuildComponents(ctx context.Context) (comps *Components, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	comps = &Components{Config: cfg}
	defer func() {
		if err != nil {
			_ = comps.Close()
		}
	}()

	stores, err := b.storesFn(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	comps.closers = append(comps.closers, stores.Close)
	comps.Store = stores.Observations
	comps.Ledger = stores.Ledger
	logger.Infof("✓ store ready (driver=%s, policy=%s, cache_ttl=%s)", cfg.Store.NormalizedDriver(), cfg.Store.DuplicatePolicy, cfg.Store.CacheTTL())

	archive, err := b.archiveFn(cfg.ReportLog)
	if err != nil {
		return nil, err
	}
	var archiver analysis.Archiver
	if archive != nil {
		comps.Archive = archive
		comps.closers = append(comps.closers, archive.Close)
		archiver = archive
		logger.Infof("✓ report archive at %s", cfg.ReportLog.Path)
	}

	reg, err := b.policyFn(cfg.Reports)
	if err != nil {
		return nil, err
	}
	comps.Policy = reg
	reg.OnChange(func(s policy.Snapshot) {
		logger.Infof("reorder policy v%d loaded from %s", s.Version, s.Source)
	})

	policyMode, err := store.ParseDuplicatePolicy(cfg.Store.DuplicatePolicy)
	if err != nil {
		return nil, err
	}
	comps.Index = snapshot.NewIndex(comps.Store)
	comps.Diff = diff.NewEngine(comps.Store, diff.Options{
		Threshold: decimal.NewFromFloat(cfg.Diff.Threshold),
		TopN:      cfg.Diff.TopN,
	})
	comps.Reports = report.NewEngine(comps.Store, reg, report.Options{
		Undercut:          decimal.NewFromFloat(cfg.Reports.Undercut),
		ReorderWindowDays: cfg.Reports.ReorderWindowDays,
		SMAWindow:         cfg.Reports.SMAWindow,
	})
	comps.Analysis = analysis.NewService(comps.Index, comps.Diff, comps.Reports, archiver)

	var recorder ingest.Recorder
	if comps.Ledger != nil {
		recorder = comps.Ledger
	}
	comps.Ingest = ingest.NewService(comps.Store, recorder, ingest.Options{
		Columns:          cfg.Ingest.Columns,
		FilenamePrefixes: cfg.Ingest.FilenamePrefixes,
		TitleMax:         cfg.Ingest.TitleMax,
		Policy:           policyMode,
	})
	return comps, nil
}

// Build wires the components and the HTTP server.
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	comps, err := b.BuildComponents(ctx)
	if err != nil {
		return nil, err
	}
	srv, err := b.httpFn(b.cfg.App, comps)
	if err != nil {
		_ = comps.Close()
		return nil, err
	}
	return &App{
		cfg:     b.cfg,
		comps:   comps,
		http:    srv,
		Summary: newStartupSummary(b.cfg),
	}, nil
}

func openArchive(cfg config.ReportLogConfig) (*reportlog.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return reportlog.Open(cfg.Path)
}

func openPolicy(cfg config.ReportsConfig) (*policy.Registry, error) {
	return policy.NewRegistry(cfg.PolicyPath, policy.Policy{Reorder: policy.DefaultThresholds()})
}

func buildHTTPServer(cfg config.AppConfig, comps *Components) (*dashboardhttp.Server, error) {
	sc := dashboardhttp.ServerConfig{
		Addr:     cfg.HTTPAddr,
		Index:    comps.Index,
		Analysis: comps.Analysis,
		Ingest:   comps.Ingest,
	}
	if comps.Ledger != nil {
		sc.Uploads = comps.Ledger
	}
	if comps.Archive != nil {
		sc.Archive = comps.Archive
	}
	return dashboardhttp.NewServer(sc)
}
