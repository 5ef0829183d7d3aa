package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// SnapshotStore implements interfaces.SnapshotStore using SurrealDB.
type SnapshotStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(db *surrealdb.DB, logger *common.Logger) *SnapshotStore {
	return &SnapshotStore{db: db, logger: logger}
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, snap *models.PortfolioSnapshot) error {
	if snap.ID == "" {
		snap.ID = common.NewID(common.SnapshotIDPrefix)
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	rec, err := snapshotFromModel(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot details: %w", err)
	}

	sql := "CREATE $rid CONTENT $snap"
	vars := map[string]any{
		"rid":  surrealmodels.NewRecordID("portfolio_snapshot", snap.ID),
		"snap": rec,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStore) LoadSnapshots(ctx context.Context, userID string, start, end time.Time) ([]models.PortfolioSnapshot, error) {
	sql := "SELECT " + snapshotSelectFields + ` FROM portfolio_snapshot
		WHERE user_id = $user_id AND timestamp >= $start AND timestamp <= $end
		ORDER BY timestamp ASC`
	vars := map[string]any{"user_id": userID, "start": start, "end": end}

	results, err := surrealdb.Query[[]snapshotRecord](ctx, s.db, sql, vars)
	if err != nil {
		return nil, wrapReadErr("failed to load snapshots", err)
	}
	out := make([]models.PortfolioSnapshot, 0)
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			out = append(out, r.toModel())
		}
	}
	return out, nil
}

func (s *SnapshotStore) EarliestSnapshot(ctx context.Context, userID string) (*time.Time, error) {
	type tsResult struct {
		Timestamp time.Time `json:"timestamp"`
	}
	sql := "SELECT timestamp FROM portfolio_snapshot WHERE user_id = $user_id ORDER BY timestamp ASC LIMIT 1"
	results, err := surrealdb.Query[[]tsResult](ctx, s.db, sql, map[string]any{"user_id": userID})
	if err != nil {
		return nil, wrapReadErr("failed to load earliest snapshot", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	ts := (*results)[0].Result[0].Timestamp
	return &ts, nil
}

func (s *SnapshotStore) LatestSnapshot(ctx context.Context, userID string) (*models.PortfolioSnapshot, error) {
	sql := "SELECT " + snapshotSelectFields + " FROM portfolio_snapshot WHERE user_id = $user_id ORDER BY timestamp DESC LIMIT 1"
	results, err := surrealdb.Query[[]snapshotRecord](ctx, s.db, sql, map[string]any{"user_id": userID})
	if err != nil {
		return nil, wrapReadErr("failed to load latest snapshot", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	snap := (*results)[0].Result[0].toModel()
	return &snap, nil
}

// Compile-time check
var _ interfaces.SnapshotStore = (*SnapshotStore)(nil)
