package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"radar/internal/observation"
	"radar/internal/pkg/circuit"
	"radar/internal/pkg/retry"
	"radar/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeREST is a tiny in-memory PostgREST covering the operators the store uses.
type fakeREST struct {
	mu      sync.Mutex
	rows    []map[string]any
	nextID  int
	prefers []string
}

func (f *fakeREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Header.Get("apikey") != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"no api key"}`))
		return
	}
	prefer := r.Header.Get("Prefer")
	f.prefers = append(f.prefers, prefer)
	switch r.Method {
	case http.MethodPost:
		var in []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, row := range in {
			idx := f.find(row)
			switch {
			case idx >= 0 && strings.Contains(prefer, "merge-duplicates"):
				row["id"] = f.rows[idx]["id"]
				f.rows[idx] = row
			case idx >= 0 && strings.Contains(prefer, "ignore-duplicates"):
			case idx >= 0:
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"message":"duplicate key value violates unique constraint"}`))
				return
			default:
				f.nextID++
				row["id"] = f.nextID
				f.rows = append(f.rows, row)
			}
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		matched := f.filter(r)
		if strings.Contains(prefer, "count=exact") {
			w.Header().Set("Content-Range", fmt.Sprintf("0-0/%d", len(matched)))
		}
		q := r.URL.Query()
		offset, _ := strconv.Atoi(q.Get("offset"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		if offset > len(matched) {
			offset = len(matched)
		}
		end := len(matched)
		if limit > 0 && offset+limit < end {
			end = offset + limit
		}
		_ = json.NewEncoder(w).Encode(matched[offset:end])
	case http.MethodDelete:
		cutoff := strings.TrimPrefix(r.URL.Query().Get("observation_date"), "lt.")
		kept := f.rows[:0]
		removed := 0
		for _, row := range f.rows {
			if row["observation_date"].(string) < cutoff {
				removed++
				continue
			}
			kept = append(kept, row)
		}
		f.rows = kept
		w.Header().Set("Content-Range", fmt.Sprintf("*/%d", removed))
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeREST) find(row map[string]any) int {
	for i, r := range f.rows {
		if r["product_id"] == row["product_id"] && r["competitor"] == row["competitor"] && r["observation_date"] == row["observation_date"] {
			return i
		}
	}
	return -1
}

func (f *fakeREST) filter(r *http.Request) []map[string]any {
	q := r.URL.Query()
	out := []map[string]any{}
	for _, row := range f.rows {
		if matchAll(q["observation_date"], row["observation_date"].(string)) &&
			matchAll(q["competitor"], row["competitor"].(string)) {
			out = append(out, row)
		}
	}
	return out
}

func matchAll(exprs []string, value string) bool {
	for _, expr := range exprs {
		op, arg, _ := strings.Cut(expr, ".")
		switch op {
		case "in":
			list := strings.Split(strings.Trim(arg, "()"), ",")
			found := false
			for _, item := range list {
				if strings.Trim(item, `"`) == value {
					found = true
				}
			}
			if !found {
				return false
			}
		case "gte":
			if value < arg {
				return false
			}
		case "lte":
			if value > arg {
				return false
			}
		}
	}
	return true
}

func day(s string) time.Time {
	d, _ := observation.ParseDay(s)
	return d
}

func obs(date, competitor, product, price string) observation.Observation {
	return observation.Observation{
		Date: day(date), Competitor: competitor, ProductID: product,
		Title: "Perfume " + product, Price: decimal.RequireFromString(price), Stock: 3, UnitsSold: 2,
	}
}

func newTestStore(t *testing.T, srv http.Handler, opts Options) *Store {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	s, err := New(Config{URL: ts.URL, APIKey: "secret"}, opts)
	require.NoError(t, err)
	return s
}

func TestAppendScanRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := &fakeREST{}
	s := newTestStore(t, fake, Options{ChunkSize: 2, PageSize: 2})

	rows := []observation.Observation{
		obs("2026-03-13", "LOJA A", "789", "100.00"),
		obs("2026-03-14", "LOJA A", "789", "129.90"),
		obs("2026-03-14", "LOJA B", "789", "119.90"),
	}
	n, err := s.Append(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Contains(t, fake.prefers[0], "resolution=merge-duplicates")

	got, err := store.Collect(s.Scan(ctx, store.ForDates(day("2026-03-14"))))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Price.Equal(decimal.RequireFromString("129.90")))
	assert.Equal(t, day("2026-03-14"), got[0].Date)

	all, err := store.Collect(s.Scan(ctx, store.Filter{}))
	require.NoError(t, err)
	assert.Len(t, all, 3)

	dates, err := s.Dates(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day("2026-03-14"), day("2026-03-13")}, dates)

	names, err := s.Competitors(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"LOJA A", "LOJA B"}, names)

	count, err := s.Count(ctx, store.Filter{}.WithCompetitors("loja b"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	pruned, err := s.Prune(ctx, day("2026-03-14"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}

func TestAppendReplaceAndReject(t *testing.T) {
	ctx := context.Background()
	fake := &fakeREST{}
	s := newTestStore(t, fake, Options{})
	_, err := s.Append(ctx, []observation.Observation{obs("2026-03-14", "LOJA A", "789", "100")})
	require.NoError(t, err)
	_, err = s.Append(ctx, []observation.Observation{obs("2026-03-14", "LOJA A", "789", "90")})
	require.NoError(t, err)
	got, err := store.Collect(s.Scan(ctx, store.Filter{}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Price.Equal(decimal.NewFromInt(90)))

	reject := newTestStore(t, fake, Options{Policy: store.DuplicateReject})
	_, err = reject.Append(ctx, []observation.Observation{obs("2026-03-14", "LOJA A", "789", "80")})
	assert.ErrorIs(t, err, store.ErrSnapshotExists)
}

func TestPartialWriteOnLaterChunk(t *testing.T) {
	ctx := context.Background()
	fake := &fakeREST{}
	var posts atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && posts.Add(1) == 2 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"bad row","details":"price"}`))
			return
		}
		fake.ServeHTTP(w, r)
	})
	s := newTestStore(t, handler, Options{ChunkSize: 1})
	n, err := s.Append(ctx, []observation.Observation{
		obs("2026-03-14", "LOJA A", "1", "10"),
		obs("2026-03-14", "LOJA A", "2", "10"),
	})
	assert.Equal(t, 1, n)
	var partial *store.PartialWriteError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 2, partial.Total)
	assert.Contains(t, err.Error(), "bad row (price)")
}

func TestUnavailableRetriesThenOpensBreaker(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	breaker := circuit.New("postgrest", 2, time.Hour)
	s := newTestStore(t, handler, Options{
		Retry:   retry.Policy{MaxAttempts: 3},
		Breaker: breaker,
	})
	_, err := s.Count(ctx, store.Filter{})
	require.Error(t, err)
	assert.True(t, store.IsRetryable(err))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, circuit.StateOpen, breaker.State())

	_, err = s.Dates(ctx, store.Filter{})
	assert.ErrorIs(t, err, circuit.ErrOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFilterQueryAndContentRange(t *testing.T) {
	q := filterQuery(store.Filter{
		Dates:       []time.Time{day("2026-03-14")},
		Competitors: []string{`loja "x"`},
		From:        day("2026-03-01"),
	})
	assert.Equal(t, []string{"in.(2026-03-14)", "gte.2026-03-01"}, q["observation_date"])
	assert.Equal(t, `in.("LOJA \"X\"")`, q.Get("competitor"))

	n, err := totalFromRange("0-24/3573")
	require.NoError(t, err)
	assert.Equal(t, int64(3573), n)
	_, err = totalFromRange("0-24/*")
	assert.Error(t, err)
}

func TestPruneReportsMissingCount(t *testing.T) {
	var deletes atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deletes.Add(1)
		}
		w.Header().Set("Content-Range", "*/*")
		w.WriteHeader(http.StatusNoContent)
	})
	s := newTestStore(t, handler, Options{})

	n, err := s.Prune(context.Background(), day("2026-03-14"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prune count")
	assert.Zero(t, n)
	assert.Equal(t, int32(1), deletes.Load())
}
