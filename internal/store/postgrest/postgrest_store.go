package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"radar/internal/logger"
	"radar/internal/observation"
	"radar/internal/pkg/circuit"
	"radar/internal/pkg/retry"
	"radar/internal/store"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const conflictColumns = "product_id,competitor,observation_date"

// Options tunes batching, duplicate handling and resilience.
type Options struct {
	ChunkSize int
	PageSize  int
	Policy    store.DuplicatePolicy
	Retry     retry.Policy
	Breaker   *circuit.Breaker
}

// Store implements store.Store over PostgREST.
type Store struct {
	c    *client
	opts Options
}

var _ store.Store = (*Store)(nil)

func New(cfg Config, opts Options) (*Store, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = store.DefaultChunkSize
	}
	if opts.PageSize <= 0 {
		opts.PageSize = store.DefaultPageSize
	}
	if opts.Policy == "" {
		opts.Policy = store.DuplicateReplace
	}
	c, err := newClient(cfg, opts.Retry, opts.Breaker)
	if err != nil {
		return nil, err
	}
	return &Store{c: c, opts: opts}, nil
}

func (s *Store) Close() error {
	s.c.http.CloseIdleConnections()
	return nil
}

// row is the JSON shape of one table row.
type row struct {
	ProductID  string          `json:"product_id"`
	Competitor string          `json:"competitor"`
	Date       string          `json:"observation_date"`
	Title      string          `json:"title"`
	Brand      string          `json:"brand"`
	Price      decimal.Decimal `json:"price"`
	Stock      int64           `json:"stock_quantity"`
	UnitsSold  int64           `json:"units_sold"`
	SKU        string          `json:"competitor_sku"`
}

func toRow(o observation.Observation) row {
	return row{
		ProductID:  o.ProductID,
		Competitor: o.Competitor,
		Date:       observation.FormatDay(o.Date),
		Title:      o.Title,
		Brand:      o.Brand,
		Price:      o.Price,
		Stock:      o.Stock,
		UnitsSold:  o.UnitsSold,
		SKU:        o.SKU,
	}
}

func (s *Store) Append(ctx context.Context, obs []observation.Observation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	if err := store.ValidateAll(obs); err != nil {
		return 0, err
	}
	query := url.Values{}
	prefer := []string{"return=minimal"}
	switch s.opts.Policy {
	case store.DuplicateSkip:
		query.Set("on_conflict", conflictColumns)
		prefer = append(prefer, "resolution=ignore-duplicates")
	case store.DuplicateReject:
	default:
		query.Set("on_conflict", conflictColumns)
		prefer = append(prefer, "resolution=merge-duplicates")
	}
	written := 0
	for i, chunk := range store.Chunks(obs, s.opts.ChunkSize) {
		rows := make([]row, 0, len(chunk))
		for _, o := range chunk {
			rows = append(rows, toRow(o))
		}
		body, err := json.Marshal(rows)
		if err != nil {
			return written, err
		}
		if _, err := s.c.do(ctx, "insert", http.MethodPost, query, body, prefer...); err != nil {
			logger.Warnf("postgrest: chunk %d failed after %d/%d rows: %v", i+1, written, len(obs), err)
			if written > 0 {
				return written, &store.PartialWriteError{Written: written, Total: len(obs), Err: err}
			}
			return 0, err
		}
		written += len(chunk)
	}
	return written, nil
}

func (s *Store) Scan(ctx context.Context, f store.Filter) iter.Seq2[observation.Observation, error] {
	return func(yield func(observation.Observation, error) bool) {
		for offset := 0; ; offset += s.opts.PageSize {
			q := filterQuery(f)
			q.Set("select", "*")
			q.Set("order", "id.asc")
			q.Set("limit", strconv.Itoa(s.opts.PageSize))
			q.Set("offset", strconv.Itoa(offset))
			resp, err := s.c.do(ctx, "select", http.MethodGet, q, nil)
			if err != nil {
				yield(observation.Observation{}, fmt.Errorf("postgrest: scan at offset %d: %w", offset, err))
				return
			}
			page := gjson.ParseBytes(resp.body).Array()
			for _, r := range page {
				obs, err := parseRow(r)
				if !yield(obs, err) || err != nil {
					return
				}
			}
			if len(page) < s.opts.PageSize {
				return
			}
		}
	}
}

// Dates pages through the observation_date column only.
func (s *Store) Dates(ctx context.Context, f store.Filter) ([]time.Time, error) {
	var dates []time.Time
	err := s.project(ctx, f, "observation_date", func(v gjson.Result) error {
		d, err := observation.ParseDay(v.String())
		if err != nil {
			return err
		}
		dates = append(dates, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return store.SortDatesDesc(dates), nil
}

func (s *Store) Competitors(ctx context.Context, f store.Filter) ([]string, error) {
	seen := map[string]struct{}{}
	err := s.project(ctx, f, "competitor", func(v gjson.Result) error {
		seen[v.String()] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (s *Store) project(ctx context.Context, f store.Filter, column string, fn func(gjson.Result) error) error {
	for offset := 0; ; offset += s.opts.PageSize {
		q := filterQuery(f)
		q.Set("select", column)
		q.Set("order", column+".desc,id.asc")
		q.Set("limit", strconv.Itoa(s.opts.PageSize))
		q.Set("offset", strconv.Itoa(offset))
		resp, err := s.c.do(ctx, "select "+column, http.MethodGet, q, nil)
		if err != nil {
			return err
		}
		page := gjson.ParseBytes(resp.body).Array()
		for _, r := range page {
			if err := fn(r.Get(column)); err != nil {
				return err
			}
		}
		if len(page) < s.opts.PageSize {
			return nil
		}
	}
}

func (s *Store) Count(ctx context.Context, f store.Filter) (int64, error) {
	q := filterQuery(f)
	q.Set("select", "id")
	q.Set("limit", "1")
	resp, err := s.c.do(ctx, "count", http.MethodGet, q, nil, "count=exact")
	if err != nil {
		return 0, err
	}
	return totalFromRange(resp.contentRange)
}

func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	if before.IsZero() {
		return 0, fmt.Errorf("prune requires a cutoff date")
	}
	q := url.Values{}
	q.Set("observation_date", "lt."+observation.FormatDay(before))
	resp, err := s.c.do(ctx, "delete", http.MethodDelete, q, nil, "return=minimal", "count=exact")
	if err != nil {
		return 0, err
	}
	n, err := totalFromRange(resp.contentRange)
	if err != nil {
		return 0, fmt.Errorf("postgrest: prune count: %w", err)
	}
	return n, nil
}

// filterQuery renders f with PostgREST operators. Repeated keys are ANDed.
func filterQuery(f store.Filter) url.Values {
	q := url.Values{}
	if dates := f.DateStrings(); len(dates) > 0 {
		q.Add("observation_date", "in.("+strings.Join(dates, ",")+")")
	}
	if names := f.CompetitorNames(); len(names) > 0 {
		q.Add("competitor", "in.("+quoteList(names)+")")
	}
	if len(f.ProductIDs) > 0 {
		q.Add("product_id", "in.("+quoteList(f.ProductIDs)+")")
	}
	if !f.From.IsZero() {
		q.Add("observation_date", "gte."+observation.FormatDay(f.From))
	}
	if !f.To.IsZero() {
		q.Add("observation_date", "lte."+observation.FormatDay(f.To))
	}
	return q
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		v = strings.ReplaceAll(v, `\`, `\\`)
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return strings.Join(quoted, ",")
}

func parseRow(r gjson.Result) (observation.Observation, error) {
	day, err := observation.ParseDay(r.Get("observation_date").String())
	if err != nil {
		return observation.Observation{}, err
	}
	price, err := decimalField(r.Get("price"))
	if err != nil {
		return observation.Observation{}, fmt.Errorf("row %s: price: %w", r.Get("id").Raw, err)
	}
	return observation.Observation{
		Date:       day,
		Competitor: r.Get("competitor").String(),
		ProductID:  r.Get("product_id").String(),
		Title:      r.Get("title").String(),
		Brand:      r.Get("brand").String(),
		Price:      price,
		Stock:      r.Get("stock_quantity").Int(),
		UnitsSold:  r.Get("units_sold").Int(),
		SKU:        r.Get("competitor_sku").String(),
	}, nil
}

// decimalField keeps the exact textual value of numeric columns.
func decimalField(v gjson.Result) (decimal.Decimal, error) {
	switch v.Type {
	case gjson.Null:
		return decimal.Zero, nil
	case gjson.Number:
		return decimal.NewFromString(v.Raw)
	default:
		return decimal.NewFromString(v.String())
	}
}
