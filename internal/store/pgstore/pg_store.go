// Package pgstore persists observations to PostgreSQL through database/sql and lib/pq.
package pgstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"strings"
	"time"

	"radar/internal/observation"
	"radar/internal/pkg/retry"
	"radar/internal/store"

	"github.com/lib/pq"
)

// Options tunes batching, duplicate handling and connection retries.
type Options struct {
	ChunkSize int
	PageSize  int
	Policy    store.DuplicatePolicy
	Retry     retry.Policy
}

// PGStore implements store.Store on PostgreSQL.
type PGStore struct {
	db   *sql.DB
	opts Options
}

var _ store.Store = (*PGStore)(nil)

// Open connects to dsn, waiting for the server with opts.Retry, and bootstraps
// the observation table.
func Open(ctx context.Context, dsn string, opts Options) (*PGStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: dsn cannot be empty")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	s := New(db, opts)
	err = s.opts.Retry.Do(ctx, "postgres ping", func(ctx context.Context) error {
		return classify("ping", db.PingContext(ctx))
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}

// New wraps an open handle without touching the schema.
func New(db *sql.DB, opts Options) *PGStore {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = store.DefaultChunkSize
	}
	if opts.PageSize <= 0 {
		opts.PageSize = store.DefaultPageSize
	}
	if opts.Policy == "" {
		opts.Policy = store.DuplicateReplace
	}
	if opts.Retry.Retryable == nil {
		opts.Retry.Retryable = store.IsRetryable
	}
	return &PGStore{db: db, opts: opts}
}

func (s *PGStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+store.TableName+` (
			id               BIGSERIAL PRIMARY KEY,
			product_id       VARCHAR(64)   NOT NULL,
			competitor       VARCHAR(128)  NOT NULL,
			observation_date DATE          NOT NULL,
			title            VARCHAR(200)  NOT NULL DEFAULT '',
			brand            TEXT          NOT NULL DEFAULT '',
			price            NUMERIC(14,2) NOT NULL DEFAULT 0,
			stock_quantity   BIGINT        NOT NULL DEFAULT 0,
			units_sold       BIGINT        NOT NULL DEFAULT 0,
			competitor_sku   TEXT          NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			UNIQUE (product_id, competitor, observation_date)
		);

		CREATE INDEX IF NOT EXISTS idx_observation_date       ON `+store.TableName+`(observation_date);
		CREATE INDEX IF NOT EXISTS idx_observation_competitor ON `+store.TableName+`(competitor);
	`)
	return err
}

func (s *PGStore) Close() error {
	return s.db.Close()
}

const insertColumns = 9

func (s *PGStore) Append(ctx context.Context, obs []observation.Observation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}
	if err := store.ValidateAll(obs); err != nil {
		return 0, err
	}
	written := 0
	for _, chunk := range store.Chunks(obs, s.opts.ChunkSize) {
		var n int
		err := s.opts.Retry.Do(ctx, "postgres insert", func(ctx context.Context) error {
			var err error
			n, err = s.insertChunk(ctx, chunk)
			return err
		})
		if err != nil {
			if written > 0 {
				return written, &store.PartialWriteError{Written: written, Total: len(obs), Err: err}
			}
			return 0, err
		}
		written += n
	}
	return written, nil
}

func (s *PGStore) insertChunk(ctx context.Context, chunk []observation.Observation) (int, error) {
	valueStrings := make([]string, 0, len(chunk))
	valueArgs := make([]any, 0, len(chunk)*insertColumns)
	for idx, o := range chunk {
		base := idx * insertColumns
		ph := make([]string, insertColumns)
		for i := range ph {
			ph[i] = fmt.Sprintf("$%d", base+i+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs,
			o.ProductID, o.Competitor, observation.FormatDay(o.Date), o.Title, o.Brand,
			o.Price, o.Stock, o.UnitsSold, o.SKU)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (product_id, competitor, observation_date, title, brand, price, stock_quantity, units_sold, competitor_sku)
		VALUES %s
		%s
	`, store.TableName, strings.Join(valueStrings, ","), s.conflictSQL())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("begin", err)
	}
	res, err := tx.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		_ = tx.Rollback()
		return 0, classify("insert", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, classify("commit", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return len(chunk), nil
	}
	return int(n), nil
}

func (s *PGStore) conflictSQL() string {
	switch s.opts.Policy {
	case store.DuplicateSkip:
		return "ON CONFLICT (product_id, competitor, observation_date) DO NOTHING"
	case store.DuplicateReject:
		return ""
	default:
		return `ON CONFLICT (product_id, competitor, observation_date) DO UPDATE SET
			title = EXCLUDED.title, brand = EXCLUDED.brand, price = EXCLUDED.price,
			stock_quantity = EXCLUDED.stock_quantity, units_sold = EXCLUDED.units_sold,
			competitor_sku = EXCLUDED.competitor_sku, created_at = NOW()`
	}
}

func (s *PGStore) Scan(ctx context.Context, f store.Filter) iter.Seq2[observation.Observation, error] {
	return func(yield func(observation.Observation, error) bool) {
		var lastID int64
		for {
			w := whereClause(f)
			w.add("id > $%d", lastID)
			args := append(w.args, s.opts.PageSize)
			query := fmt.Sprintf(`
				SELECT id, product_id, competitor, observation_date, title, brand, price, stock_quantity, units_sold, competitor_sku
				FROM %s%s
				ORDER BY id
				LIMIT $%d`, store.TableName, w.sql(), len(args))
			var page []observation.Observation
			var pageLast int64
			err := s.opts.Retry.Do(ctx, "postgres scan", func(ctx context.Context) error {
				var err error
				page, pageLast, err = s.fetchPage(ctx, query, args)
				return err
			})
			if err != nil {
				yield(observation.Observation{}, fmt.Errorf("postgres: scan after id %d: %w", lastID, err))
				return
			}
			for _, o := range page {
				if !yield(o, nil) {
					return
				}
			}
			if len(page) < s.opts.PageSize {
				return
			}
			lastID = pageLast
		}
	}
}

func (s *PGStore) fetchPage(ctx context.Context, query string, args []any) ([]observation.Observation, int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, classify("query", err)
	}
	defer rows.Close()
	var (
		out    []observation.Observation
		lastID int64
	)
	for rows.Next() {
		var o observation.Observation
		if err := rows.Scan(&lastID, &o.ProductID, &o.Competitor, &o.Date, &o.Title, &o.Brand,
			&o.Price, &o.Stock, &o.UnitsSold, &o.SKU); err != nil {
			return nil, 0, fmt.Errorf("scan row: %w", err)
		}
		o.Date = observation.Day(o.Date)
		out = append(out, o)
	}
	return out, lastID, classify("rows", rows.Err())
}

func (s *PGStore) Dates(ctx context.Context, f store.Filter) ([]time.Time, error) {
	w := whereClause(f)
	query := fmt.Sprintf(`SELECT DISTINCT observation_date FROM %s%s ORDER BY observation_date DESC`, store.TableName, w.sql())
	var dates []time.Time
	err := s.opts.Retry.Do(ctx, "postgres dates", func(ctx context.Context) error {
		dates = dates[:0]
		rows, err := s.db.QueryContext(ctx, query, w.args...)
		if err != nil {
			return classify("dates", err)
		}
		defer rows.Close()
		for rows.Next() {
			var d time.Time
			if err := rows.Scan(&d); err != nil {
				return err
			}
			dates = append(dates, d)
		}
		return classify("dates", rows.Err())
	})
	if err != nil {
		return nil, err
	}
	return store.SortDatesDesc(dates), nil
}

func (s *PGStore) Competitors(ctx context.Context, f store.Filter) ([]string, error) {
	w := whereClause(f)
	query := fmt.Sprintf(`SELECT DISTINCT competitor FROM %s%s ORDER BY competitor`, store.TableName, w.sql())
	var names []string
	err := s.opts.Retry.Do(ctx, "postgres competitors", func(ctx context.Context) error {
		names = names[:0]
		rows, err := s.db.QueryContext(ctx, query, w.args...)
		if err != nil {
			return classify("competitors", err)
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			names = append(names, name)
		}
		return classify("competitors", rows.Err())
	})
	return names, err
}

func (s *PGStore) Count(ctx context.Context, f store.Filter) (int64, error) {
	w := whereClause(f)
	var n int64
	err := s.opts.Retry.Do(ctx, "postgres count", func(ctx context.Context) error {
		return classify("count", s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, store.TableName, w.sql()), w.args...).Scan(&n))
	})
	return n, err
}

func (s *PGStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	if before.IsZero() {
		return 0, fmt.Errorf("prune requires a cutoff date")
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE observation_date < $1`, store.TableName), observation.FormatDay(before))
	if err != nil {
		return 0, classify("prune", err)
	}
	return res.RowsAffected()
}

type where struct {
	clauses []string
	args    []any
}

// add appends a predicate; format takes the placeholder index as its only verb.
func (w *where) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(format, len(w.args)))
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func whereClause(f store.Filter) *where {
	w := &where{}
	if dates := f.DateStrings(); len(dates) > 0 {
		w.add("observation_date::text = ANY($%d)", pq.Array(dates))
	}
	if names := f.CompetitorNames(); len(names) > 0 {
		w.add("competitor = ANY($%d)", pq.Array(names))
	}
	if len(f.ProductIDs) > 0 {
		w.add("product_id = ANY($%d)", pq.Array(f.ProductIDs))
	}
	if !f.From.IsZero() {
		w.add("observation_date >= $%d", observation.FormatDay(f.From))
	}
	if !f.To.IsZero() {
		w.add("observation_date <= $%d", observation.FormatDay(f.To))
	}
	return w
}

// classify maps driver errors onto the store sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return fmt.Errorf("%s: %w: %v", op, store.ErrSnapshotExists, err)
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "57":
			return store.Unavailable(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return store.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
