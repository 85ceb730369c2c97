package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exportCSV = "GTIN;Título;Marca;Preço Médio;Estoque;Vendas em Unid.\n" +
	"111;Perfume A;Dior;100,00;5;2\n" +
	"222;Perfume B;Avon;50,00;3;1\n"

const exportCSVNext = "GTIN;Título;Marca;Preço Médio;Estoque;Vendas em Unid.\n" +
	"111;Perfume A;Dior;120,00;0;4\n" +
	"222;Perfume B;Avon;45,00;3;1\n"

// execute runs rootCmd with args and returns everything written to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	resetFlags(t)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// resetFlags restores flag defaults; cobra keeps values between Execute calls.
func resetFlags(t *testing.T) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	rootCmd.Flags().VisitAll(reset)
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(reset)
	}
	_ = rootCmd.PersistentFlags().Set("env-file", filepath.Join(t.TempDir(), "missing.env"))
}

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`app:
  log_level: error
store:
  driver: sqlite
  sqlite_path: %[1]s/radar.db
  cache_ttl_seconds: 0
report_log:
  enabled: true
  path: %[1]s/reports.db
ingest:
  filename_prefixes: ["PERFUMES_"]
reports:
  policy_path: %[1]s/reorder_policy.yaml
`, dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path, dir
}

func writeExport(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRootHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "competitor catalog exports")
	for _, sub := range []string{"serve", "ingest", "snapshots", "diff", "report", "prune", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestGlobalFlags(t *testing.T) {
	for _, name := range []string{"config", "env-file", "verbose", "no-color"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "global flag --%s", name)
	}
	c := rootCmd.PersistentFlags().ShorthandLookup("c")
	require.NotNil(t, c)
	assert.Equal(t, "config", c.Name)
	v := rootCmd.PersistentFlags().ShorthandLookup("v")
	require.NotNil(t, v)
	assert.Equal(t, "verbose", v.Name)
}

func TestVersionSkipsConfig(t *testing.T) {
	out, err := execute(t, "version", "--config", "/does/not/exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, "radar dev\n", out)
}

func TestMissingConfigFails(t *testing.T) {
	_, err := execute(t, "snapshots", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	var ece *exitCodeError
	require.ErrorAs(t, err, &ece)
	assert.Equal(t, ExitFailure, ece.code)
}

func TestReportRejectsUnknownKind(t *testing.T) {
	cfg, _ := writeConfig(t)
	_, err := execute(t, "report", "margins", "--config", cfg)
	var ece *exitCodeError
	require.ErrorAs(t, err, &ece)
	assert.Equal(t, ExitInvalidArgs, ece.code)
	assert.Contains(t, ece.msg, "margins")
}

func TestPriceHistoryNeedsProduct(t *testing.T) {
	cfg, _ := writeConfig(t)
	_, err := execute(t, "report", "price_history", "--config", cfg)
	var ece *exitCodeError
	require.ErrorAs(t, err, &ece)
	assert.Contains(t, ece.msg, "--product")
}

func TestEmptyStore(t *testing.T) {
	cfg, _ := writeConfig(t)
	out, err := execute(t, "snapshots", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "no snapshots uploaded yet")

	out, err = execute(t, "diff", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "no snapshots uploaded yet")
}

func TestIngestDiffReport(t *testing.T) {
	cfg, dir := writeConfig(t)
	first := writeExport(t, dir, "PERFUMES_Loja X.csv", exportCSV)
	next := writeExport(t, dir, "next.csv", exportCSVNext)

	out, err := execute(t, "ingest", first, "--date", "2026-03-13", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "LOJA X 2026-03-13")
	assert.Contains(t, out, "2 written")

	out, err = execute(t, "ingest", next, "--date", "2026-03-14", "--competitor", "loja x", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "2 written")

	out, err = execute(t, "snapshots", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "2026-03-14")
	assert.Contains(t, out, "LOJA X")
	assert.Contains(t, out, "default comparison")

	out, err = execute(t, "diff", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "2 joined")
	assert.Contains(t, out, "archived as")

	out, err = execute(t, "diff", "--view", "price_changes", "--format", "csv", "--config", cfg)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "price_delta")

	out, err = execute(t, "report", "revenue_brands", "--date", "2026-03-14", "--format", "json", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, `"kind": "revenue_brands"`)
	assert.Contains(t, out, "Dior")

	_, err = execute(t, "diff", "--view", "bogus", "--config", cfg)
	var ece *exitCodeError
	require.ErrorAs(t, err, &ece)
	assert.Equal(t, ExitInvalidArgs, ece.code)
}

func TestIngestRejectsBadUpload(t *testing.T) {
	cfg, dir := writeConfig(t)
	bad := writeExport(t, dir, "bad.csv", "Título;Preço Médio\nA;10\n")
	out, err := execute(t, "ingest", bad, "--date", "2026-03-14", "--competitor", "A", "--config", cfg)
	var ece *exitCodeError
	require.ErrorAs(t, err, &ece)
	assert.Equal(t, ExitInvalidArgs, ece.code)
	assert.Contains(t, out, "✗")

	_, err = execute(t, "ingest", bad, "--date", "2026-13-45", "--config", cfg)
	require.ErrorAs(t, err, &ece)
	assert.Equal(t, ExitInvalidArgs, ece.code)
}

func TestPrune(t *testing.T) {
	cfg, dir := writeConfig(t)
	first := writeExport(t, dir, "PERFUMES_A.csv", exportCSV)
	_, err := execute(t, "ingest", first, "--date", "2026-03-13", "--config", cfg)
	require.NoError(t, err)
	_, err = execute(t, "ingest", first, "--date", "2026-03-14", "--config", cfg)
	require.NoError(t, err)

	out, err := execute(t, "prune", "--before", "2026-03-14", "--dry-run", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "2 observations dated before 2026-03-14 would be deleted")

	out, err = execute(t, "prune", "--before", "2026-03-14", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 2 observations")

	out, err = execute(t, "snapshots", "--config", cfg)
	require.NoError(t, err)
	assert.NotContains(t, out, "2026-03-13")
}

func TestPruneCutoff(t *testing.T) {
	now := time.Date(2026, 3, 20, 15, 4, 5, 0, time.UTC)

	got, err := pruneCutoff(now, "2026-03-01", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", got.Format("2006-01-02"))

	got, err = pruneCutoff(now, "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", got.Format("2006-01-02"))

	got, err = pruneCutoff(now, "", 0, 30)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-18", got.Format("2006-01-02"))

	_, err = pruneCutoff(now, "", 0, 0)
	assert.Error(t, err)
	_, err = pruneCutoff(now, "", -1, 0)
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := parseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, formatCSV, f)
	_, err = parseFormat("xml")
	assert.Error(t, err)
}
