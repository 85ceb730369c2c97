// Package ledger records every ingestion attempt with its coercion warnings.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"radar/internal/observation"
	storemodel "radar/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type uploadBatchModel = storemodel.UploadBatchModel

// Status mirrors the stored upload outcome.
type Status = storemodel.UploadStatus

const (
	StatusOK      = storemodel.UploadStatusOK
	StatusPartial = storemodel.UploadStatusPartial
	StatusFailed  = storemodel.UploadStatusFailed
)

// Record is one ingestion attempt.
type Record struct {
	BatchID    string                `json:"batch_id"`
	Filename   string                `json:"filename"`
	Competitor string                `json:"competitor"`
	Date       time.Time             `json:"observation_date"`
	Rows       int                   `json:"rows"`
	Written    int                   `json:"written"`
	Skipped    int                   `json:"skipped"`
	Warnings   []observation.Warning `json:"warnings,omitempty"`
	Status     Status                `json:"status"`
	Error      string                `json:"error,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

// Ledger persists Records through gorm.
type Ledger struct {
	db *gorm.DB
}

// New migrates the upload_batches table on db.
func New(db *gorm.DB) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("ledger: nil db")
	}
	if err := db.AutoMigrate(&uploadBatchModel{}); err != nil {
		return nil, err
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Record(ctx context.Context, rec Record) error {
	if l == nil || l.db == nil {
		return nil
	}
	if strings.TrimSpace(rec.BatchID) == "" {
		return fmt.Errorf("ledger: batch_id required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	warnings, err := json.Marshal(rec.Warnings)
	if err != nil {
		return err
	}
	m := uploadBatchModel{
		BatchID:         rec.BatchID,
		Filename:        strings.TrimSpace(rec.Filename),
		Competitor:      rec.Competitor,
		ObservationDate: observation.FormatDay(rec.Date),
		Rows:            rec.Rows,
		Written:         rec.Written,
		Skipped:         rec.Skipped,
		WarningCount:    len(rec.Warnings),
		Warnings:        datatypes.JSON(warnings),
		Status:          rec.Status,
		Error:           rec.Error,
		CreatedAtUnix:   rec.CreatedAt.Unix(),
	}
	return l.db.WithContext(ctx).Create(&m).Error
}

// Recent lists the newest uploads first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Record, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("ledger not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var models []uploadBatchModel
	if err := l.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(models))
	for _, m := range models {
		rec, err := toRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get fetches one upload by batch id.
func (l *Ledger) Get(ctx context.Context, batchID string) (Record, error) {
	var m uploadBatchModel
	err := l.db.WithContext(ctx).Where("batch_id = ?", strings.TrimSpace(batchID)).First(&m).Error
	if err != nil {
		return Record{}, err
	}
	return toRecord(m)
}

func toRecord(m uploadBatchModel) (Record, error) {
	rec := Record{
		BatchID:    m.BatchID,
		Filename:   m.Filename,
		Competitor: m.Competitor,
		Rows:       m.Rows,
		Written:    m.Written,
		Skipped:    m.Skipped,
		Status:     m.Status,
		Error:      m.Error,
		CreatedAt:  time.Unix(m.CreatedAtUnix, 0),
	}
	if m.ObservationDate != "" {
		day, err := observation.ParseDay(m.ObservationDate)
		if err != nil {
			return Record{}, err
		}
		rec.Date = day
	}
	if len(m.Warnings) > 0 {
		if err := json.Unmarshal(m.Warnings, &rec.Warnings); err != nil {
			return Record{}, fmt.Errorf("decode warnings of %s: %w", m.BatchID, err)
		}
	}
	return rec, nil
}
