package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/timeseries"
)

// Service reads snapshot series and records new snapshots.
type Service struct {
	store     interfaces.SnapshotStore
	recorder  *Recorder
	threshold int
	logger    *common.Logger
	now       func() time.Time
}

// NewService creates a snapshot service over store.
func NewService(store interfaces.SnapshotStore, cfg common.PortfolioConfig, logger *common.Logger) *Service {
	return &Service{
		store:     store,
		recorder:  NewRecorder(store, cfg, logger),
		threshold: cfg.DownsampleThreshold,
		logger:    logger,
		now:       time.Now,
	}
}

// GetSeries returns the snapshots of rangeKey mapped onto its planned
// sections. Storage failures degrade to an empty series over the range's
// window rather than an error.
func (s *Service) GetSeries(ctx context.Context, userID, rangeKey string) (*models.SnapshotSeries, error) {
	r := timeseries.ParseRange(rangeKey)
	now := s.now()

	var earliest *time.Time
	if r == timeseries.RangeAll {
		e, err := s.store.EarliestSnapshot(ctx, userID)
		if err != nil {
			return s.fallback(userID, r, now, err), nil
		}
		earliest = e
	}

	start, end := timeseries.WindowFor(r, now, earliest)
	sections := timeseries.PlanSections(r, start, end)

	snaps, err := s.store.LoadSnapshots(ctx, userID, start, end)
	if err != nil {
		return s.fallback(userID, r, now, err), nil
	}

	points := MapToSections(Downsample(snaps, r, s.threshold), sections)
	return &models.SnapshotSeries{
		Range:     string(r),
		Points:    points,
		Sections:  models.UnixMilli(sections),
		StartTime: start.UnixMilli(),
		EndTime:   end.UnixMilli(),
	}, nil
}

func (s *Service) fallback(userID string, r timeseries.Range, now time.Time, err error) *models.SnapshotSeries {
	if errors.Is(err, interfaces.ErrTableMissing) {
		s.logger.Debug().Str("user_id", userID).Msg("Snapshot table missing, returning empty series")
	} else {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to load snapshots, returning empty series")
	}
	start, end := timeseries.WindowFor(r, now, nil)
	return &models.SnapshotSeries{
		Range:     string(r),
		Points:    []models.PortfolioSnapshot{},
		Sections:  models.UnixMilli(timeseries.PlanSections(r, start, end)),
		StartTime: start.UnixMilli(),
		EndTime:   end.UnixMilli(),
	}
}

// Latest returns the most recent snapshot, or nil when none exist.
func (s *Service) Latest(ctx context.Context, userID string) (*models.PortfolioSnapshot, error) {
	snap, err := s.store.LatestSnapshot(ctx, userID)
	if errors.Is(err, interfaces.ErrTableMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	return snap, nil
}

// Offer hands mtm to the throttled recorder.
func (s *Service) Offer(userID string, mtm *models.MarkToMarket, force bool) bool {
	return s.recorder.Offer(userID, mtm, force)
}

// Wait drains in-flight snapshot writes.
func (s *Service) Wait() {
	s.recorder.Wait()
}

var _ interfaces.SnapshotService = (*Service)(nil)
