// Package store defines the snapshot store contract shared by every backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"radar/internal/observation"
)

// TableName is the logical table every backend persists observations to.
const TableName = "observation_history"

const (
	DefaultChunkSize = 1000
	DefaultPageSize  = 1000
)

var (
	// ErrUnavailable wraps connectivity failures; callers may retry.
	ErrUnavailable = errors.New("store unavailable")
	// ErrSnapshotExists is returned under DuplicateReject when the
	// (date, competitor) snapshot already holds rows.
	ErrSnapshotExists = errors.New("snapshot already exists")
)

// IsRetryable reports whether err is a connectivity failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Unavailable wraps err as a retryable connectivity failure.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// PartialWriteError reports an Append that persisted some chunks before failing.
// Rows already written stay written.
type PartialWriteError struct {
	Written int
	Total   int
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write: %d/%d rows persisted: %v", e.Written, e.Total, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// DuplicatePolicy decides what happens when (product_id, competitor, date)
// is already stored.
type DuplicatePolicy string

const (
	DuplicateReplace DuplicatePolicy = "replace"
	DuplicateSkip    DuplicatePolicy = "skip"
	DuplicateReject  DuplicatePolicy = "reject"
)

// ParseDuplicatePolicy maps config text to a policy; empty means replace.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DuplicateReplace, nil
	case DuplicateReplace, DuplicateSkip, DuplicateReject:
		return p, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q (want replace|skip|reject)", s)
	}
}

// Filter restricts queries. Zero-valued fields do not filter.
type Filter struct {
	Dates       []time.Time
	Competitors []string
	ProductIDs  []string
	// From and To bound observation_date inclusively.
	From time.Time
	To   time.Time
}

// ForDates is shorthand for a filter on the given snapshot dates.
func ForDates(dates ...time.Time) Filter {
	return Filter{Dates: dates}
}

// WithCompetitors returns a copy restricted to competitors.
func (f Filter) WithCompetitors(competitors ...string) Filter {
	f.Competitors = competitors
	return f
}

// DateStrings renders Dates in observation.DateLayout, deduplicated and sorted.
func (f Filter) DateStrings() []string {
	out := make([]string, 0, len(f.Dates))
	for _, d := range f.Dates {
		if d.IsZero() {
			continue
		}
		out = append(out, observation.FormatDay(d))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// CompetitorNames returns the normalized, deduplicated competitor filter.
func (f Filter) CompetitorNames() []string {
	out := make([]string, 0, len(f.Competitors))
	for _, c := range f.Competitors {
		if n := observation.NormalizeCompetitor(c); n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Match reports whether obs passes the filter. Backends that cannot push a
// predicate down use it to filter client-side.
func (f Filter) Match(obs observation.Observation) bool {
	if dates := f.DateStrings(); len(dates) > 0 {
		if _, ok := slices.BinarySearch(dates, observation.FormatDay(obs.Date)); !ok {
			return false
		}
	}
	if names := f.CompetitorNames(); len(names) > 0 {
		if _, ok := slices.BinarySearch(names, obs.Competitor); !ok {
			return false
		}
	}
	if len(f.ProductIDs) > 0 && !slices.Contains(f.ProductIDs, obs.ProductID) {
		return false
	}
	day := observation.Day(obs.Date)
	if !f.From.IsZero() && day.Before(observation.Day(f.From)) {
		return false
	}
	if !f.To.IsZero() && day.After(observation.Day(f.To)) {
		return false
	}
	return true
}

// CacheKey renders the filter as a stable string.
func (f Filter) CacheKey() string {
	var b strings.Builder
	b.WriteString("d=" + strings.Join(f.DateStrings(), ","))
	b.WriteString("|c=" + strings.Join(f.CompetitorNames(), ","))
	ids := slices.Clone(f.ProductIDs)
	slices.Sort(ids)
	b.WriteString("|p=" + strings.Join(ids, ","))
	if !f.From.IsZero() {
		b.WriteString("|from=" + observation.FormatDay(f.From))
	}
	if !f.To.IsZero() {
		b.WriteString("|to=" + observation.FormatDay(f.To))
	}
	return b.String()
}

// Store is the append-only observation history.
type Store interface {
	// Append persists observations in chunks. On failure after at least one
	// chunk it returns a *PartialWriteError.
	Append(ctx context.Context, obs []observation.Observation) (int, error)
	// Scan yields matching observations lazily, page by page. The sequence is
	// finite and single-use; an error ends it.
	Scan(ctx context.Context, f Filter) iter.Seq2[observation.Observation, error]
	// Dates lists distinct observation dates matching f, newest first.
	Dates(ctx context.Context, f Filter) ([]time.Time, error)
	// Competitors lists distinct competitors matching f, sorted.
	Competitors(ctx context.Context, f Filter) ([]string, error)
	Count(ctx context.Context, f Filter) (int64, error)
	// Prune deletes observations dated strictly before cutoff.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// Collect drains a scan into a slice.
func Collect(seq iter.Seq2[observation.Observation, error]) ([]observation.Observation, error) {
	var out []observation.Observation
	for obs, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, obs)
	}
	return out, nil
}

// Chunks splits obs into slices of at most size elements.
func Chunks(obs []observation.Observation, size int) [][]observation.Observation {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var out [][]observation.Observation
	for start := 0; start < len(obs); start += size {
		end := min(start+size, len(obs))
		out = append(out, obs[start:end])
	}
	return out
}

// SortDatesDesc sorts and deduplicates dates, newest first.
func SortDatesDesc(dates []time.Time) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		out = append(out, observation.Day(d))
	}
	slices.SortFunc(out, func(a, b time.Time) int { return b.Compare(a) })
	return slices.CompactFunc(out, func(a, b time.Time) bool { return a.Equal(b) })
}

// ValidateAll checks every observation before a write.
func ValidateAll(obs []observation.Observation) error {
	for i, o := range obs {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("observation %d (%s): %w", i, o.Key(), err)
		}
	}
	return nil
}
