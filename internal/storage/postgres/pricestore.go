package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// PriceStore implements interfaces.PriceStore on PostgreSQL.
type PriceStore struct {
	db     *gorm.DB
	logger *common.Logger
}

// NewPriceStore creates a new PriceStore.
func NewPriceStore(db *gorm.DB, logger *common.Logger) *PriceStore {
	return &PriceStore{db: db, logger: logger}
}

// SavePriceSamples upserts samples; a repeated (symbol, t) overwrites the close.
func (s *PriceStore) SavePriceSamples(ctx context.Context, symbol string, samples []models.PriceSample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	rows := make([]PriceModel, 0, len(samples))
	for _, p := range samples {
		rows = append(rows, PriceModel{Symbol: symbol, T: p.T, C: p.C})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "t"}},
		DoUpdates: clause.AssignmentColumns([]string{"c"}),
	}).CreateInBatches(&rows, 500).Error
	if err != nil {
		return 0, fmt.Errorf("failed to save price samples: %w", err)
	}
	return len(rows), nil
}

func (s *PriceStore) LoadPriceSamples(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceSample, error) {
	var rows []PriceModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND t >= ? AND t <= ?", symbol, start, end).
		Order("t").
		Find(&rows).Error
	if err != nil {
		return nil, wrapReadErr("failed to load price samples", err)
	}
	out := make([]models.PriceSample, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.PriceSample{T: r.T.UTC(), C: r.C})
	}
	return out, nil
}

func (s *PriceStore) LatestPriceSample(ctx context.Context, symbol string) (*models.PriceSample, error) {
	var rows []PriceModel
	if err := s.db.WithContext(ctx).Where("symbol = ?", symbol).Order("t DESC").Limit(1).Find(&rows).Error; err != nil {
		return nil, wrapReadErr("failed to load latest price", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &models.PriceSample{T: rows[0].T.UTC(), C: rows[0].C}, nil
}

// Compile-time check
var _ interfaces.PriceStore = (*PriceStore)(nil)
