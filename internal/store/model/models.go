package model

import (
	"fmt"
	"time"

	"radar/internal/observation"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ObservationModel is the gorm mapping of one observation_history row.
// The unique index enforces the (product_id, competitor, date) identity.
type ObservationModel struct {
	ID              int64           `gorm:"column:id;primaryKey"`
	ProductID       string          `gorm:"column:product_id;size:64;uniqueIndex:idx_observation_identity,priority:1"`
	Competitor      string          `gorm:"column:competitor;size:128;uniqueIndex:idx_observation_identity,priority:2;index:idx_observation_competitor"`
	ObservationDate string          `gorm:"column:observation_date;size:10;uniqueIndex:idx_observation_identity,priority:3;index:idx_observation_date"`
	Title           string          `gorm:"column:title;size:200"`
	Brand           string          `gorm:"column:brand"`
	Price           decimal.Decimal `gorm:"column:price;type:NUMERIC"`
	StockQuantity   int64           `gorm:"column:stock_quantity"`
	UnitsSold       int64           `gorm:"column:units_sold"`
	CompetitorSKU   string          `gorm:"column:competitor_sku"`
	CreatedAtUnix   int64           `gorm:"column:created_at"`
}

func (ObservationModel) TableName() string { return "observation_history" }

// NewObservationModel maps an observation for insertion.
func NewObservationModel(obs observation.Observation, now time.Time) ObservationModel {
	return ObservationModel{
		ProductID:       obs.ProductID,
		Competitor:      obs.Competitor,
		ObservationDate: observation.FormatDay(obs.Date),
		Title:           obs.Title,
		Brand:           obs.Brand,
		Price:           obs.Price,
		StockQuantity:   obs.Stock,
		UnitsSold:       obs.UnitsSold,
		CompetitorSKU:   obs.SKU,
		CreatedAtUnix:   now.Unix(),
	}
}

// Observation converts the row back to the domain type.
func (m ObservationModel) Observation() (observation.Observation, error) {
	day, err := observation.ParseDay(m.ObservationDate)
	if err != nil {
		return observation.Observation{}, fmt.Errorf("row %d: %w", m.ID, err)
	}
	return observation.Observation{
		Date:       day,
		Competitor: m.Competitor,
		ProductID:  m.ProductID,
		Title:      m.Title,
		Brand:      m.Brand,
		Price:      m.Price,
		Stock:      m.StockQuantity,
		UnitsSold:  m.UnitsSold,
		SKU:        m.CompetitorSKU,
	}, nil
}

// UploadStatus is the outcome of one ingestion attempt.
type UploadStatus string

const (
	UploadStatusOK      UploadStatus = "ok"
	UploadStatusPartial UploadStatus = "partial"
	UploadStatusFailed  UploadStatus = "failed"
)

// UploadBatchModel is one row of the upload ledger.
type UploadBatchModel struct {
	ID              int64          `gorm:"column:id;primaryKey"`
	BatchID         string         `gorm:"column:batch_id;size:36;uniqueIndex"`
	Filename        string         `gorm:"column:filename"`
	Competitor      string         `gorm:"column:competitor;index"`
	ObservationDate string         `gorm:"column:observation_date;size:10;index"`
	Rows            int            `gorm:"column:rows"`
	Written         int            `gorm:"column:written"`
	Skipped         int            `gorm:"column:skipped"`
	WarningCount    int            `gorm:"column:warning_count"`
	Warnings        datatypes.JSON `gorm:"column:warnings;type:TEXT"`
	Status          UploadStatus   `gorm:"column:status;size:16"`
	Error           string         `gorm:"column:error"`
	CreatedAtUnix   int64          `gorm:"column:created_at;index"`
}

func (UploadBatchModel) TableName() string { return "upload_batches" }
