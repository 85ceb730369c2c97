package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"radar/internal/config"
	"radar/internal/pkg/circuit"
	"radar/internal/pkg/retry"
	"radar/internal/store"
	"radar/internal/store/cache"
	"radar/internal/store/gormstore"
	"radar/internal/store/ledger"
	"radar/internal/store/pgstore"
	"radar/internal/store/postgrest"

	"gorm.io/gorm"
)

// Stores is the opened observation history plus the upload ledger.
type Stores struct {
	Observations store.Store
	Ledger       *ledger.Ledger
	closers      []func() error
}

func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// OpenStores opens the configured driver, wraps it in the read cache and
// opens the ledger. The sqlite driver shares its file with the ledger unless
// store.ledger.path is set.
func OpenStores(ctx context.Context, cfg config.StoreConfig) (_ *Stores, err error) {
	mode, err := store.ParseDuplicatePolicy(cfg.DuplicatePolicy)
	if err != nil {
		return nil, err
	}
	rp := retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay(),
		MaxDelay:    cfg.Retry.MaxDelay(),
		Retryable:   store.IsRetryable,
	}
	opened := &Stores{}
	defer func() {
		if err != nil {
			_ = opened.Close()
		}
	}()

	var (
		backend  store.Store
		ledgerDB *gorm.DB
	)
	switch driver := cfg.NormalizedDriver(); driver {
	case config.DriverSQLite:
		gs, err := gormstore.Open(cfg.SQLitePath, gormstore.Options{
			ChunkSize: cfg.ChunkSize,
			PageSize:  cfg.PageSize,
			Policy:    mode,
		})
		if err != nil {
			return nil, err
		}
		backend = gs
		if strings.TrimSpace(cfg.Ledger.Path) == "" {
			ledgerDB = gs.GormDB()
		}
	case config.DriverPostgres:
		ps, err := pgstore.Open(ctx, cfg.PostgresDSN, pgstore.Options{
			ChunkSize: cfg.ChunkSize,
			PageSize:  cfg.PageSize,
			Policy:    mode,
			Retry:     rp,
		})
		if err != nil {
			return nil, err
		}
		backend = ps
	case config.DriverPostgREST:
		rs, err := postgrest.New(postgrest.Config{
			URL:     cfg.PostgREST.URL,
			APIKey:  cfg.PostgREST.APIKey,
			Table:   cfg.PostgREST.Table,
			Timeout: cfg.PostgREST.Timeout(),
		}, postgrest.Options{
			ChunkSize: cfg.ChunkSize,
			PageSize:  cfg.PageSize,
			Policy:    mode,
			Retry:     rp,
			Breaker:   circuit.New("postgrest", cfg.PostgREST.BreakerThreshold, cfg.PostgREST.BreakerCooldown()),
		})
		if err != nil {
			return nil, err
		}
		backend = rs
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	opened.closers = append(opened.closers, backend.Close)
	opened.Observations = cache.Wrap(backend, cfg.CacheTTL())

	if ledgerDB == nil {
		db, err := openLedgerDB(cfg.Ledger.Path)
		if err != nil {
			return nil, err
		}
		opened.closers = append(opened.closers, func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		ledgerDB = db
	}
	l, err := ledger.New(ledgerDB)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	opened.Ledger = l
	return opened, nil
}

func openLedgerDB(path string) (*gorm.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return gormstore.OpenDB(path)
}
