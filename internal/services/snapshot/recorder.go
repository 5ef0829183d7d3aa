package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// SkipZeroWithCost is logged when a valuation reads zero while cost is held,
// which indicates missing prices rather than a worthless portfolio.
const SkipZeroWithCost = "tpv_zero_with_cost_basis"

// Recorder persists throttled valuations in the background.
type Recorder struct {
	store     interfaces.SnapshotStore
	throttles *ThrottleSet
	timeout   time.Duration
	logger    *common.Logger
	now       func() time.Time

	wg sync.WaitGroup
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store interfaces.SnapshotStore, cfg common.PortfolioConfig, logger *common.Logger) *Recorder {
	return &Recorder{
		store:     store,
		throttles: NewThrottleSet(cfg.GetSnapshotMinInterval(), cfg.GetSnapshotMaxInterval(), cfg.SnapshotDeltaThreshold),
		timeout:   cfg.GetSnapshotWriteTimeout(),
		logger:    logger,
		now:       time.Now,
	}
}

// Offer schedules a write of mtm when the throttle allows it or force is set.
// It never blocks on storage and reports whether a write was scheduled.
func (r *Recorder) Offer(userID string, mtm *models.MarkToMarket, force bool) bool {
	if mtm == nil {
		return false
	}
	if mtm.TPV.IsZero() && mtm.CostBasis.IsPositive() {
		r.logger.Debug().Str("user_id", userID).Str("reason", SkipZeroWithCost).Msg("Snapshot skipped")
		return false
	}

	tpv := mtm.TPV.InexactFloat64()
	if force {
		r.throttles.Mark(userID, tpv)
	} else if !r.throttles.ShouldPersist(userID, tpv) {
		return false
	}

	at := mtm.ComputedAt
	if at.IsZero() {
		at = r.now()
	}
	snap := models.SnapshotFromValuation(userID, mtm, at)
	snap.ID = common.NewID(common.SnapshotIDPrefix)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.store.SaveSnapshot(ctx, snap); err != nil {
			r.logger.Warn().Err(err).Str("user_id", userID).Msg("Snapshot write failed, dropped")
			return
		}
		r.logger.Debug().Str("user_id", userID).Str("tpv", snap.TPV.String()).Msg("Snapshot recorded")
	}()
	return true
}

// Wait blocks until in-flight writes finish.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
