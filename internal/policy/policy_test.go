package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	cases := map[string]Class{
		"3":     ClassUrgent,
		"6.99":  ClassUrgent,
		"7":     ClassSoon,
		"14.5":  ClassSoon,
		"15":    ClassStable,
		"60":    ClassStable,
		"60.01": ClassExcess,
		"999":   ClassExcess,
	}
	for in, want := range cases {
		assert.Equal(t, want, th.Classify(decimal.RequireFromString(in)), in)
	}
}

func TestThresholdValidation(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{UrgentDays: 20, SoonDays: 15, ExcessDays: 60}.Validate())
	assert.Error(t, Thresholds{UrgentDays: 1, SoonDays: 90, ExcessDays: 60}.Validate())
	assert.Error(t, Thresholds{UrgentDays: -1, SoonDays: 1, ExcessDays: 2}.Validate())
}

func TestBrandOverrides(t *testing.T) {
	p := Policy{
		Reorder: DefaultThresholds(),
		Brands:  map[string]Thresholds{" dior ": {UrgentDays: 10}},
	}
	r := Static(p)
	assert.Equal(t, 10.0, r.Thresholds("Dior").UrgentDays)
	assert.Equal(t, 15.0, r.Thresholds("DIOR").SoonDays)
	assert.Equal(t, 7.0, r.Thresholds("other").UrgentDays)
}

func TestRegistryWritesDefaultsAndLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy", "reorder.yaml")
	r, err := NewRegistry(path, Policy{Reorder: DefaultThresholds()})
	require.NoError(t, err)
	assert.FileExists(t, path)
	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	assert.Equal(t, DefaultThresholds(), snap.Policy.Reorder)
}

func TestRegistryRejectsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("reorder:\n  urgent_days: 7\n  typo_days: 3\n"), 0o644))
	_, err := NewRegistry(unknown, Policy{})
	assert.Error(t, err)

	inverted := filepath.Join(dir, "inverted.yaml")
	require.NoError(t, os.WriteFile(inverted, []byte("reorder:\n  urgent_days: 30\n  soon_days: 15\n  excess_days: 60\n"), 0o644))
	_, err = NewRegistry(inverted, Policy{})
	assert.Error(t, err)
}

func TestRegistryHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reorder.yaml")
	require.NoError(t, WriteDefault(path, Policy{Reorder: DefaultThresholds()}))
	r, err := NewRegistry(path, Policy{})
	require.NoError(t, err)

	changed := make(chan Snapshot, 4)
	r.OnChange(func(s Snapshot) { changed <- s })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, WriteDefault(path, Policy{Reorder: Thresholds{UrgentDays: 3, SoonDays: 10, ExcessDays: 90}}))
	require.Eventually(t, func() bool {
		return r.Thresholds("").UrgentDays == 3
	}, 5*time.Second, 20*time.Millisecond)
	select {
	case snap := <-changed:
		assert.GreaterOrEqual(t, snap.Version, int64(2))
	case <-time.After(5 * time.Second):
		t.Fatal("listener not notified")
	}
}

func TestStaticWatchReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, Static(Policy{Reorder: DefaultThresholds()}).Watch(ctx))
}
