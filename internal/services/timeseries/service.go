package timeseries

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

const (
	SourceReplay    = "replay"
	SourceSnapshots = "snapshots"
)

// minHistoryLookback is how far before the window start history is fetched
// so the first sections can forward-fill.
const minHistoryLookback = 7 * day

// maxHistoryFetches bounds concurrent history lookups per request.
const maxHistoryFetches = 8

// Service builds chart series by replaying the ledger.
type Service struct {
	ledger        interfaces.LedgerStore
	prices        interfaces.PriceSource
	snapshots     interfaces.SnapshotService
	includeWallet bool
	logger        *common.Logger
	now           func() time.Time
}

// NewService creates a timeseries service. snapshots may be nil, which
// disables the snapshot fallback.
func NewService(ledger interfaces.LedgerStore, prices interfaces.PriceSource, snapshots interfaces.SnapshotService, includeWallet bool, logger *common.Logger) *Service {
	return &Service{
		ledger:        ledger,
		prices:        prices,
		snapshots:     snapshots,
		includeWallet: includeWallet,
		logger:        logger,
		now:           time.Now,
	}
}

// GetTimeseries returns the chart series of userID over rangeKey. gran is
// echoed back unchanged.
func (s *Service) GetTimeseries(ctx context.Context, userID, rangeKey, gran string) (*models.TimeseriesResponse, error) {
	started := time.Now()
	r := ParseRange(rangeKey)
	now := s.now()

	trades, walletTx := s.loadLedger(ctx, userID)

	start, end := WindowFor(r, now, earliestEvent(trades, walletTx))
	sections := PlanSections(r, start, end)

	history := s.fetchHistory(ctx, r, trades, start, end)
	points, skipped := replay(trades, walletTx, sections, history)
	if skipped > 0 {
		s.logger.Warn().Str("user_id", userID).Int("skipped", skipped).Msg("Replay skipped invalid trades")
	}

	source := SourceReplay
	if len(points) == 0 && s.snapshots != nil {
		if fallback := s.snapshotPoints(ctx, userID, string(r)); len(fallback) > 0 {
			points = fallback
			source = SourceSnapshots
		}
	}

	series := BuildSeries(points, s.includeWallet)
	resp := &models.TimeseriesResponse{
		Range:    string(r),
		Gran:     gran,
		Source:   source,
		Series:   series,
		Sections: models.UnixMilli(sections),
		Window:   models.SeriesWindow{StartTime: start.UnixMilli(), EndTime: end.UnixMilli()},
	}
	if n := len(series); n > 0 {
		last := series[n-1]
		resp.Totals = models.SeriesTotals{
			TPV:            last.PortfolioAbs,
			CostBasis:      last.CostBasisAbs,
			TotalReturn:    last.OverallReturn,
			TotalReturnPct: last.OverallReturnPct,
		}
	}

	s.logger.Debug().
		Str("user_id", userID).
		Str("range", string(r)).
		Str("source", source).
		Int("points", len(series)).
		Dur("elapsed", time.Since(started)).
		Msg("Timeseries built")
	return resp, nil
}

// loadLedger reads the user's trades and wallet transactions. Any read
// failure yields an empty ledger so the chart still gets its sections and
// window; a missing table is the normal state before the first write.
func (s *Service) loadLedger(ctx context.Context, userID string) ([]models.Trade, []models.WalletTransaction) {
	trades, err := s.ledger.LoadTrades(ctx, userID)
	if err != nil {
		s.logLoadError(userID, "trades", err)
		return nil, nil
	}
	walletTx, err := s.ledger.LoadWalletTransactions(ctx, userID)
	if err != nil {
		s.logLoadError(userID, "wallet transactions", err)
		return nil, nil
	}
	return trades, walletTx
}

func (s *Service) logLoadError(userID, what string, err error) {
	if errors.Is(err, interfaces.ErrTableMissing) {
		s.logger.Debug().Str("user_id", userID).Str("records", what).Msg("Ledger table missing, charting an empty ledger")
		return
	}
	s.logger.Warn().Err(err).Str("user_id", userID).Str("records", what).Msg("Ledger read failed, charting an empty ledger")
}

// BuildSeries derives chart points from replayed state. Deltas are relative
// to the first point.
func BuildSeries(points []models.ReplayPoint, includeWallet bool) []models.SeriesPoint {
	series := make([]models.SeriesPoint, 0, len(points))
	var base float64
	for i, p := range points {
		pv := p.PortfolioValue
		if includeWallet {
			pv += p.Cash
		}
		if i == 0 {
			base = pv
		}
		ret := pv - p.CostBasis
		series = append(series, models.SeriesPoint{
			T:                 p.T.UnixMilli(),
			PortfolioAbs:      pv,
			CostBasisAbs:      p.CostBasis,
			NetInvestedAbs:    p.NetDeposits,
			DeltaFromStart:    pv - base,
			DeltaFromStartPct: ratioPct(pv-base, base),
			OverallReturn:     ret,
			OverallReturnPct:  ratioPct(ret, p.CostBasis),
		})
	}
	return series
}

func ratioPct(part, base float64) float64 {
	if base <= 0 {
		return 0
	}
	return part / base * 100
}

func earliestEvent(trades []models.Trade, walletTx []models.WalletTransaction) *time.Time {
	var earliest *time.Time
	consider := func(t time.Time) {
		if t.IsZero() {
			return
		}
		if earliest == nil || t.Before(*earliest) {
			tt := t
			earliest = &tt
		}
	}
	for _, tr := range trades {
		consider(tr.Timestamp)
	}
	for _, tx := range walletTx {
		consider(tx.Timestamp)
	}
	return earliest
}

// fetchHistory loads price history for every traded symbol concurrently.
// A failed symbol is logged and left empty so it values at cost.
func (s *Service) fetchHistory(ctx context.Context, r Range, trades []models.Trade, start, end time.Time) map[string][]models.PriceSample {
	first := make(map[string]time.Time)
	for _, tr := range trades {
		if t, ok := first[tr.Symbol]; !ok || tr.Timestamp.Before(t) {
			first[tr.Symbol] = tr.Timestamp
		}
	}
	symbols := make([]string, 0, len(first))
	for sym := range first {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	lookback := r.Duration()
	if lookback < minHistoryLookback {
		lookback = minHistoryLookback
	}
	hint := RangeHint(r)

	var mu sync.Mutex
	history := make(map[string][]models.PriceSample, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxHistoryFetches)
	for _, sym := range symbols {
		from := start.Add(-lookback)
		if f := first[sym]; f.After(from) && f.Before(start) {
			from = f
		}
		g.Go(func() error {
			samples, err := s.prices.GetHistoricalPrices(gctx, sym, hint, from, end)
			if err != nil {
				s.logger.Warn().Err(err).Str("symbol", sym).Msg("Price history unavailable, valuing at cost")
				return nil
			}
			mu.Lock()
			history[sym] = samples
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return history
}

// snapshotPoints converts the snapshot series into replay points.
func (s *Service) snapshotPoints(ctx context.Context, userID, rangeKey string) []models.ReplayPoint {
	series, err := s.snapshots.GetSeries(ctx, userID, rangeKey)
	if err != nil || series == nil {
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("Snapshot fallback failed")
		}
		return nil
	}
	out := make([]models.ReplayPoint, 0, len(series.Points))
	for _, snap := range series.Points {
		// recorded TPV already reflects the wallet setting at record time,
		// so cash stays zero to avoid counting it twice
		out = append(out, models.ReplayPoint{
			T:              snap.Timestamp,
			PortfolioValue: snap.TPV.InexactFloat64(),
			CostBasis:      snap.CostBasis.InexactFloat64(),
		})
	}
	return out
}

var _ interfaces.TimeseriesService = (*Service)(nil)
