package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"radar/internal/analysis"
	"radar/internal/config"
	"radar/internal/ingest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		App: config.AppConfig{Env: "test", LogLevel: "info", HTTPAddr: "127.0.0.1:0"},
		Store: config.StoreConfig{
			Driver:          config.DriverSQLite,
			SQLitePath:      filepath.Join(dir, "radar.db"),
			DuplicatePolicy: "replace",
			CacheTTLSeconds: 30,
		},
		ReportLog: config.ReportLogConfig{Enabled: true, Path: filepath.Join(dir, "reports.db")},
		Ingest:    config.IngestConfig{Columns: ingest.DefaultColumns()},
		Diff:      config.DiffConfig{Threshold: 0.01, TopN: 50},
		Reports: config.ReportsConfig{
			Undercut:          1,
			ReorderWindowDays: 30,
			SMAWindow:         3,
			PolicyPath:        filepath.Join(dir, "reorder_policy.yaml"),
		},
	}
	return cfg
}

func TestBuildComponentsSQLite(t *testing.T) {
	comps, err := NewComponents(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = comps.Close() })

	assert.NotNil(t, comps.Store)
	assert.NotNil(t, comps.Ledger)
	assert.NotNil(t, comps.Archive)
	assert.NotNil(t, comps.Analysis)
	assert.Equal(t, int64(1), comps.Policy.Snapshot().Version)

	rep, err := comps.Ingest.Ingest(context.Background(), ingest.Upload{
		Filename: "PERFUMES_Loja Y - x.csv",
		Reader:   strings.NewReader("GTIN,Preço Médio,Estoque,Vendas em Unid.\n1,10,2,3\n"),
		Date:     time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Written)

	recs, err := comps.Ledger.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	out, err := comps.Analysis.Run(context.Background(), analysis.KindBuyBox, analysis.Params{})
	require.NoError(t, err)
	assert.NotEmpty(t, out.ArchiveID)
}

func TestArchiveDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReportLog.Enabled = false
	comps, err := NewComponents(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = comps.Close() })
	assert.Nil(t, comps.Archive)
}

func TestOpenStoresPostgRESTUsesSeparateLedger(t *testing.T) {
	dir := t.TempDir()
	stores, err := OpenStores(context.Background(), config.StoreConfig{
		Driver:          config.DriverPostgREST,
		DuplicatePolicy: "skip",
		PostgREST:       config.PostgRESTConfig{URL: "http://127.0.0.1:1", Table: "observation_history", BreakerThreshold: 3},
		Ledger:          config.LedgerConfig{Path: filepath.Join(dir, "nested", "ledger.db")},
	})
	require.NoError(t, err)
	assert.NotNil(t, stores.Ledger)
	assert.NoError(t, stores.Close())
}

func TestOpenStoresRejectsUnknownDriver(t *testing.T) {
	var err error
	require.NotPanics(t, func() {
		_, err = OpenStores(context.Background(), config.StoreConfig{Driver: "mongo"})
	})
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestOpenStoresLedgerFailureClosesBackend(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	var (
		stores *Stores
		err    error
	)
	require.NotPanics(t, func() {
		stores, err = OpenStores(context.Background(), config.StoreConfig{
			Driver:     config.DriverSQLite,
			SQLitePath: filepath.Join(dir, "obs.db"),
			Ledger:     config.LedgerConfig{Path: filepath.Join(blocker, "ledger.db")},
		})
	})
	require.Error(t, err)
	assert.Nil(t, stores)

	// The observation file was released and opens again.
	again, err := OpenStores(context.Background(), config.StoreConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(dir, "obs.db"),
	})
	require.NoError(t, err)
	assert.NoError(t, again.Close())
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := NewApp(testConfig(t))
	require.NoError(t, err)
	a.Summary = nil
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "postgres://radar:***@db:5432/radar", redactDSN("postgres://radar:secret@db:5432/radar"))
	assert.Equal(t, "host=db user=radar", redactDSN("host=db user=radar"))
}

func TestStartupSummary(t *testing.T) {
	s := newStartupSummary(testConfig(t)).String()
	assert.Contains(t, s, "sqlite")
	assert.Contains(t, s, "GTIN")
}
