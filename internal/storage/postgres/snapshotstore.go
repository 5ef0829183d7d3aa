package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// SnapshotStore implements interfaces.SnapshotStore on PostgreSQL.
type SnapshotStore struct {
	db     *gorm.DB
	logger *common.Logger
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(db *gorm.DB, logger *common.Logger) *SnapshotStore {
	return &SnapshotStore{db: db, logger: logger}
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap *models.PortfolioSnapshot) error {
	if snap.ID == "" {
		snap.ID = common.NewID(common.SnapshotIDPrefix)
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	row, err := snapshotFromModel(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot details: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) LoadSnapshots(ctx context.Context, userID string, start, end time.Time) ([]models.PortfolioSnapshot, error) {
	var rows []SnapshotModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND timestamp >= ? AND timestamp <= ?", userID, start, end).
		Order("timestamp").
		Find(&rows).Error
	if err != nil {
		return nil, wrapReadErr("failed to load snapshots", err)
	}
	out := make([]models.PortfolioSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, snapshotToModel(r))
	}
	return out, nil
}

func (s *SnapshotStore) EarliestSnapshot(ctx context.Context, userID string) (*time.Time, error) {
	var rows []SnapshotModel
	err := s.db.WithContext(ctx).Select("timestamp").
		Where("user_id = ?", userID).Order("timestamp").Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, wrapReadErr("failed to load earliest snapshot", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ts := rows[0].Timestamp.UTC()
	return &ts, nil
}

func (s *SnapshotStore) LatestSnapshot(ctx context.Context, userID string) (*models.PortfolioSnapshot, error) {
	var rows []SnapshotModel
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("timestamp DESC").Limit(1).Find(&rows).Error
	if err != nil {
		return nil, wrapReadErr("failed to load latest snapshot", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	snap := snapshotToModel(rows[0])
	return &snap, nil
}

// Compile-time check
var _ interfaces.SnapshotStore = (*SnapshotStore)(nil)
