package gormstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"radar/internal/observation"
	"radar/internal/store"
	storemodel "radar/internal/store/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type observationModel = storemodel.ObservationModel

// Options tunes batching and duplicate handling.
type Options struct {
	ChunkSize int
	PageSize  int
	Policy    store.DuplicatePolicy
}

func (o Options) normalized() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = store.DefaultChunkSize
	}
	if o.PageSize <= 0 {
		o.PageSize = store.DefaultPageSize
	}
	if o.Policy == "" {
		o.Policy = store.DuplicateReplace
	}
	return o
}

// GormStore implements store.Store on SQLite through gorm.
type GormStore struct {
	db   *gorm.DB
	opts Options
	now  func() time.Time
}

var _ store.Store = (*GormStore)(nil)

// Open creates (or reuses) the SQLite database at path.
func Open(path string, opts Options) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := OpenDB(path)
	if err != nil {
		return nil, store.Unavailable("gorm store open", err)
	}
	return NewFromDB(db, opts)
}

// OpenDB opens a gorm handle with the pragmas every radar SQLite file uses.
func OpenDB(path string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a couple of connections for concurrent HTTP reads.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return db, nil
}

// NewFromDB wraps an existing handle and migrates the observation table.
func NewFromDB(db *gorm.DB, opts Options) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm store: nil db")
	}
	if err := db.AutoMigrate(&observationModel{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, opts: opts.normalized(), now: time.Now}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GormDB exposes the handle so the upload ledger can share the file.
func (s *GormStore) GormDB() *gorm.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func (s *GormStore) Append(ctx context.Context, obs []observation.Observation) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("gorm store not initialized")
	}
	if len(obs) == 0 {
		return 0, nil
	}
	if err := store.ValidateAll(obs); err != nil {
		return 0, err
	}
	now := s.now()
	written := 0
	for _, chunk := range store.Chunks(obs, s.opts.ChunkSize) {
		models := make([]observationModel, 0, len(chunk))
		for _, o := range chunk {
			models = append(models, storemodel.NewObservationModel(o, now))
		}
		var affected int64
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := s.conflictClause(tx).Create(&models)
			affected = res.RowsAffected
			return res.Error
		})
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				err = fmt.Errorf("%w: %v", store.ErrSnapshotExists, err)
			}
			if written > 0 {
				return written, &store.PartialWriteError{Written: written, Total: len(obs), Err: err}
			}
			return 0, err
		}
		written += int(affected)
	}
	return written, nil
}

func (s *GormStore) conflictClause(tx *gorm.DB) *gorm.DB {
	identity := []clause.Column{{Name: "product_id"}, {Name: "competitor"}, {Name: "observation_date"}}
	switch s.opts.Policy {
	case store.DuplicateSkip:
		return tx.Clauses(clause.OnConflict{Columns: identity, DoNothing: true})
	case store.DuplicateReject:
		return tx
	default:
		return tx.Clauses(clause.OnConflict{
			Columns: identity,
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "brand", "price", "stock_quantity", "units_sold", "competitor_sku", "created_at",
			}),
		})
	}
}

func (s *GormStore) Scan(ctx context.Context, f store.Filter) iter.Seq2[observation.Observation, error] {
	return func(yield func(observation.Observation, error) bool) {
		if s == nil || s.db == nil {
			yield(observation.Observation{}, fmt.Errorf("gorm store not initialized"))
			return
		}
		var lastID int64
		for {
			var page []observationModel
			err := applyFilter(s.db.WithContext(ctx).Model(&observationModel{}), f).
				Where("id > ?", lastID).
				Order("id ASC").
				Limit(s.opts.PageSize).
				Find(&page).Error
			if err != nil {
				yield(observation.Observation{}, fmt.Errorf("scan after id %d: %w", lastID, err))
				return
			}
			for _, m := range page {
				obs, err := m.Observation()
				if !yield(obs, err) || err != nil {
					return
				}
			}
			if len(page) < s.opts.PageSize {
				return
			}
			lastID = page[len(page)-1].ID
		}
	}
}

func (s *GormStore) Dates(ctx context.Context, f store.Filter) ([]time.Time, error) {
	var raw []string
	err := applyFilter(s.db.WithContext(ctx).Model(&observationModel{}), f).
		Distinct("observation_date").
		Order("observation_date DESC").
		Pluck("observation_date", &raw).Error
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0, len(raw))
	for _, r := range raw {
		d, err := observation.ParseDay(r)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return store.SortDatesDesc(dates), nil
}

func (s *GormStore) Competitors(ctx context.Context, f store.Filter) ([]string, error) {
	var names []string
	err := applyFilter(s.db.WithContext(ctx).Model(&observationModel{}), f).
		Distinct("competitor").
		Order("competitor ASC").
		Pluck("competitor", &names).Error
	return names, err
}

func (s *GormStore) Count(ctx context.Context, f store.Filter) (int64, error) {
	var n int64
	err := applyFilter(s.db.WithContext(ctx).Model(&observationModel{}), f).Count(&n).Error
	return n, err
}

func (s *GormStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	if before.IsZero() {
		return 0, fmt.Errorf("prune requires a cutoff date")
	}
	res := s.db.WithContext(ctx).
		Where("observation_date < ?", observation.FormatDay(before)).
		Delete(&observationModel{})
	return res.RowsAffected, res.Error
}

func applyFilter(q *gorm.DB, f store.Filter) *gorm.DB {
	if dates := f.DateStrings(); len(dates) > 0 {
		q = q.Where("observation_date IN ?", dates)
	}
	if names := f.CompetitorNames(); len(names) > 0 {
		q = q.Where("competitor IN ?", names)
	}
	if len(f.ProductIDs) > 0 {
		q = q.Where("product_id IN ?", f.ProductIDs)
	}
	if !f.From.IsZero() {
		q = q.Where("observation_date >= ?", observation.FormatDay(f.From))
	}
	if !f.To.IsZero() {
		q = q.Where("observation_date <= ?", observation.FormatDay(f.To))
	}
	return q
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
