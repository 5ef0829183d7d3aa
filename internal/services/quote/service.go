// Package quote serves live and historical prices from ingested samples,
// with bounded lookups and a stale-quote fallback.
package quote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/ledger"
)

// DefaultRateLimit is the number of store lookups allowed per second.
const DefaultRateLimit = 20

// ErrInvalidSample marks an ingest request rejected before anything is stored.
var ErrInvalidSample = errors.New("invalid price sample")

type cachedQuote struct {
	quote   models.Quote
	fetched time.Time
}

// Service implements PriceSource over the price store.
type Service struct {
	store   interfaces.PriceStore
	limiter *rate.Limiter
	timeout time.Duration
	ttl     time.Duration
	logger  *common.Logger
	now     func() time.Time // injectable clock for testing

	mu    sync.Mutex
	cache map[string]cachedQuote
}

// NewService creates a price service reading from store.
func NewService(store interfaces.PriceStore, cfg common.PricesConfig, logger *common.Logger) *Service {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	return &Service{
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(limit), limit),
		timeout: cfg.GetTimeout(),
		ttl:     cfg.GetQuoteTTL(),
		logger:  logger,
		now:     time.Now,
		cache:   make(map[string]cachedQuote),
	}
}

// GetQuote returns the latest known price for symbol, or nil when none has
// been ingested. When the lookup fails and an earlier quote is cached, that
// stale quote is returned instead of the error.
func (s *Service) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = ledger.NormalizeSymbol(symbol)

	s.mu.Lock()
	cached, ok := s.cache[symbol]
	s.mu.Unlock()
	if ok && s.now().Sub(cached.fetched) < s.ttl {
		q := cached.quote
		return &q, nil
	}

	sample, err := s.latest(ctx, symbol)
	if err != nil {
		if ok {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Quote lookup failed, serving stale quote")
			q := cached.quote
			return &q, nil
		}
		return nil, err
	}
	if sample == nil {
		return nil, nil
	}

	q := models.Quote{Symbol: symbol, Price: sample.C, Timestamp: sample.T}
	s.mu.Lock()
	s.cache[symbol] = cachedQuote{quote: q, fetched: s.now()}
	s.mu.Unlock()
	return &q, nil
}

func (s *Service) latest(ctx context.Context, symbol string) (*models.PriceSample, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	sample, err := s.store.LatestPriceSample(ctx, symbol)
	if errors.Is(err, interfaces.ErrTableMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest price for %s: %w", symbol, err)
	}
	if sample != nil && sample.C <= 0 {
		return nil, nil
	}
	return sample, nil
}

// GetHistoricalPrices returns ascending positive samples in [start, end].
// rangeHint is accepted for interface compatibility; the store already
// holds every ingested sample.
func (s *Service) GetHistoricalPrices(ctx context.Context, symbol, rangeHint string, start, end time.Time) ([]models.PriceSample, error) {
	symbol = ledger.NormalizeSymbol(symbol)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	samples, err := s.store.LoadPriceSamples(ctx, symbol, start, end)
	if errors.Is(err, interfaces.ErrTableMissing) {
		return []models.PriceSample{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load price history for %s: %w", symbol, err)
	}

	out := make([]models.PriceSample, 0, len(samples))
	for _, p := range samples {
		if p.C > 0 && !p.T.Before(start) && !p.T.After(end) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].T.Before(out[j].T) })

	s.logger.Debug().
		Str("symbol", symbol).
		Str("range_hint", rangeHint).
		Int("samples", len(out)).
		Msg("Price history loaded")
	return out, nil
}

// Ingest validates and stores samples for symbol and drops its cached quote.
func (s *Service) Ingest(ctx context.Context, symbol string, samples []models.PriceSample) (int, error) {
	symbol = ledger.NormalizeSymbol(symbol)
	if symbol == "" {
		return 0, fmt.Errorf("%w: symbol is required", ErrInvalidSample)
	}
	valid := make([]models.PriceSample, 0, len(samples))
	for i, p := range samples {
		if p.T.IsZero() {
			return 0, fmt.Errorf("%w: sample %d: timestamp is required", ErrInvalidSample, i)
		}
		if p.C <= 0 {
			return 0, fmt.Errorf("%w: sample %d: price must be positive", ErrInvalidSample, i)
		}
		valid = append(valid, models.PriceSample{T: p.T.UTC(), C: p.C})
	}
	if len(valid) == 0 {
		return 0, nil
	}

	n, err := s.store.SavePriceSamples(ctx, symbol, valid)
	if err != nil {
		return 0, fmt.Errorf("failed to save price samples: %w", err)
	}

	s.mu.Lock()
	delete(s.cache, symbol)
	s.mu.Unlock()

	s.logger.Info().Str("symbol", symbol).Int("samples", n).Msg("Prices ingested")
	return n, nil
}

// Ensure Service implements QuoteService
var _ interfaces.QuoteService = (*Service)(nil)
