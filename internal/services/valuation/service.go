package valuation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// maxQuoteFetches bounds concurrent quote lookups per valuation.
const maxQuoteFetches = 8

// state is the last full or delta result for one user.
type state struct {
	key    string
	wallet decimal.Decimal
	mtm    models.MarkToMarket
	prices map[string]*decimal.Decimal
}

// Service values portfolios and feeds the snapshot recorder.
type Service struct {
	ledger        interfaces.LedgerStore
	prices        interfaces.PriceSource
	snapshots     interfaces.SnapshotService
	cache         *HoldingsCache
	last          *lru.Cache[string, *state]
	includeWallet bool
	asyncTimeout  time.Duration
	logger        *common.Logger
	now           func() time.Time

	wg sync.WaitGroup
}

// NewService creates a valuation service. snapshots may be nil, in which
// case Revalue never records.
func NewService(ledger interfaces.LedgerStore, prices interfaces.PriceSource, snapshots interfaces.SnapshotService, cfg common.PortfolioConfig, logger *common.Logger) (*Service, error) {
	cache, err := NewHoldingsCache(cfg.HoldingsCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create holdings cache: %w", err)
	}
	last, err := lru.New[string, *state](1024)
	if err != nil {
		return nil, fmt.Errorf("failed to create valuation state cache: %w", err)
	}
	return &Service{
		ledger:        ledger,
		prices:        prices,
		snapshots:     snapshots,
		cache:         cache,
		last:          last,
		includeWallet: cfg.IncludeWalletInTPV,
		asyncTimeout:  cfg.GetSnapshotWriteTimeout(),
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Current values the portfolio at live prices.
func (s *Service) Current(ctx context.Context, userID string) (*models.MarkToMarket, error) {
	holdings, key, wallet, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	prices := s.fetchPrices(ctx, holdings)
	mtm := ComputeMarkToMarket(holdings, prices, wallet, s.includeWallet)
	mtm.ComputedAt = s.now()

	s.last.Add(userID, &state{key: key, wallet: wallet, mtm: mtm, prices: prices})
	return &mtm, nil
}

// Revalue refreshes prices and recomputes incrementally when the holdings
// and wallet are unchanged since the previous run. The result is offered to
// the snapshot recorder.
func (s *Service) Revalue(ctx context.Context, userID string) (*models.MarkToMarket, error) {
	holdings, key, wallet, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	fresh := s.fetchPrices(ctx, holdings)

	var mtm models.MarkToMarket
	var prices map[string]*decimal.Decimal
	prev, ok := s.last.Get(userID)
	if updates, usable := deltaUpdates(prev, ok, key, wallet, fresh); usable {
		var changed []string
		mtm, prices, changed = ComputeMarkToMarketDelta(prev.mtm, holdings, prev.prices, updates)
		s.logger.Debug().Str("user_id", userID).Int("changed", len(changed)).Msg("Delta revaluation")
	} else {
		mtm = ComputeMarkToMarket(holdings, fresh, wallet, s.includeWallet)
		prices = fresh
	}
	mtm.ComputedAt = s.now()

	s.last.Add(userID, &state{key: key, wallet: wallet, mtm: mtm, prices: prices})

	if s.snapshots != nil {
		s.snapshots.Offer(userID, &mtm, false)
	}
	return &mtm, nil
}

// deltaUpdates returns the price updates to apply incrementally, or false
// when a full recompute is required.
func deltaUpdates(prev *state, ok bool, key string, wallet decimal.Decimal, fresh map[string]*decimal.Decimal) ([]models.PriceUpdate, bool) {
	if !ok || prev == nil || prev.key != key || !prev.wallet.Equal(wallet) {
		return nil, false
	}

	symbols := make([]string, 0, len(fresh))
	for sym := range fresh {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var updates []models.PriceUpdate
	for _, sym := range symbols {
		p := fresh[sym]
		if p == nil {
			// a price that disappeared changes the holding's status
			if prev.prices[sym] != nil {
				return nil, false
			}
			continue
		}
		updates = append(updates, models.PriceUpdate{Symbol: sym, NewPrice: *p})
	}
	return updates, true
}

// LedgerChanged revalues the user in the background after a ledger write.
func (s *Service) LedgerChanged(ctx context.Context, userID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.asyncTimeout)
		defer cancel()
		if _, err := s.Revalue(rctx, userID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("Revaluation after ledger change failed")
		}
	}()
}

// Wait blocks until background revaluations finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) load(ctx context.Context, userID string) (map[string]models.Holding, string, decimal.Decimal, error) {
	positions, err := s.ledger.LoadPositions(ctx, userID)
	if err != nil {
		return nil, "", decimal.Zero, fmt.Errorf("failed to load positions: %w", err)
	}
	wallet, err := s.ledger.GetWallet(ctx, userID)
	if err != nil {
		return nil, "", decimal.Zero, fmt.Errorf("failed to load wallet: %w", err)
	}

	holdings, key := s.cache.Holdings(positions)
	balance := decimal.Zero
	if wallet != nil {
		balance = wallet.Balance
	}
	return holdings, key, balance, nil
}

// fetchPrices looks up a quote per holding concurrently. A failed or empty
// lookup leaves the symbol nil so the holding values at cost.
func (s *Service) fetchPrices(ctx context.Context, holdings map[string]models.Holding) map[string]*decimal.Decimal {
	symbols := make([]string, 0, len(holdings))
	for sym := range holdings {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	results := make([]*decimal.Decimal, len(symbols))
	var g errgroup.Group
	g.SetLimit(maxQuoteFetches)
	for i, sym := range symbols {
		g.Go(func() error {
			q, err := s.prices.GetQuote(ctx, sym)
			if err != nil {
				s.logger.Warn().Err(err).Str("symbol", sym).Msg("Quote lookup failed, valuing at cost")
				return nil
			}
			if q == nil || q.Price <= 0 {
				return nil
			}
			p := decimal.NewFromFloat(q.Price)
			results[i] = &p
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*decimal.Decimal, len(symbols))
	for i, sym := range symbols {
		out[sym] = results[i]
	}
	return out
}

var (
	_ interfaces.ValuationService = (*Service)(nil)
	_ interfaces.LedgerListener   = (*Service)(nil)
)
