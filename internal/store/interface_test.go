package store

import (
	"errors"
	"testing"
	"time"

	"radar/internal/observation"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	d1 = time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	d2 = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
)

func TestFilterMatch(t *testing.T) {
	obs := observation.Observation{Date: d2, Competitor: "LOJA A", ProductID: "1"}

	assert.True(t, Filter{}.Match(obs))
	assert.True(t, ForDates(d1, d2).Match(obs))
	assert.False(t, ForDates(d1).Match(obs))
	assert.True(t, ForDates(d2).WithCompetitors("loja a (1)").Match(obs))
	assert.False(t, Filter{Competitors: []string{"LOJA B"}}.Match(obs))
	assert.False(t, Filter{ProductIDs: []string{"2"}}.Match(obs))
	assert.True(t, Filter{From: d1, To: d2}.Match(obs))
	assert.False(t, Filter{To: d1}.Match(obs))
}

func TestFilterCacheKeyStable(t *testing.T) {
	a := Filter{Dates: []time.Time{d2, d1}, Competitors: []string{"b", "A"}}
	b := Filter{Dates: []time.Time{d1, d2, d2}, Competitors: []string{"a", "B"}}
	assert.Equal(t, a.CacheKey(), b.CacheKey())
	assert.NotEqual(t, a.CacheKey(), ForDates(d1).CacheKey())
}

func TestParseDuplicatePolicy(t *testing.T) {
	p, err := ParseDuplicatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DuplicateReplace, p)
	p, err = ParseDuplicatePolicy(" Reject ")
	require.NoError(t, err)
	assert.Equal(t, DuplicateReject, p)
	_, err = ParseDuplicatePolicy("merge")
	assert.Error(t, err)
}

func TestChunks(t *testing.T) {
	obs := make([]observation.Observation, 2500)
	chunks := Chunks(obs, 1000)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[2], 500)
	assert.Empty(t, Chunks(nil, 10))
}

func TestPartialWriteErrorUnwrap(t *testing.T) {
	err := error(&PartialWriteError{Written: 1000, Total: 2500, Err: Unavailable("append", errors.New("timeout"))})
	assert.True(t, IsRetryable(err))
	var pw *PartialWriteError
	require.ErrorAs(t, err, &pw)
	assert.Equal(t, 1000, pw.Written)
	assert.Contains(t, err.Error(), "1000/2500")
}

func TestSortDatesDesc(t *testing.T) {
	got := SortDatesDesc([]time.Time{d1, d2.Add(3 * time.Hour), d1})
	assert.Equal(t, []time.Time{d2, d1}, got)
}

func TestValidateAll(t *testing.T) {
	ok := observation.Observation{Date: d1, Competitor: "A", ProductID: "1", Price: decimal.NewFromInt(1)}
	assert.NoError(t, ValidateAll([]observation.Observation{ok}))
	bad := ok
	bad.ProductID = ""
	assert.Error(t, ValidateAll([]observation.Observation{ok, bad}))
}
