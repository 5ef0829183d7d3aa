package surrealdb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

const priceSelectFields = "t, c"

// PriceStore implements interfaces.PriceStore using SurrealDB. Samples are
// keyed by symbol and timestamp so re-ingesting a sample overwrites it.
type PriceStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewPriceStore creates a new PriceStore.
func NewPriceStore(db *surrealdb.DB, logger *common.Logger) *PriceStore {
	return &PriceStore{db: db, logger: logger}
}

func priceKey(symbol string, t time.Time) string {
	return symbol + "|" + strconv.FormatInt(t.UnixMilli(), 10)
}

func (s *PriceStore) SavePriceSamples(ctx context.Context, symbol string, samples []models.PriceSample) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	rows := make([]priceRecord, 0, len(samples))
	for _, p := range samples {
		rows = append(rows, priceRecord{Key: priceKey(symbol, p.T), Symbol: symbol, T: p.T, C: p.C})
	}

	sql := `FOR $row IN $rows {
	UPSERT type::record('price_sample', $row.key) CONTENT { symbol: $row.symbol, t: $row.t, c: $row.c };
};`
	if _, err := surrealdb.Query[any](ctx, s.db, sql, map[string]any{"rows": rows}); err != nil {
		return 0, fmt.Errorf("failed to save price samples: %w", err)
	}
	return len(rows), nil
}

func (s *PriceStore) LoadPriceSamples(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceSample, error) {
	sql := "SELECT " + priceSelectFields + ` FROM price_sample
		WHERE symbol = $symbol AND t >= $start AND t <= $end
		ORDER BY t ASC`
	vars := map[string]any{"symbol": symbol, "start": start, "end": end}

	results, err := surrealdb.Query[[]models.PriceSample](ctx, s.db, sql, vars)
	if err != nil {
		return nil, wrapReadErr("failed to load price samples", err)
	}
	out := make([]models.PriceSample, 0)
	if results != nil && len(*results) > 0 {
		out = append(out, (*results)[0].Result...)
	}
	return out, nil
}

func (s *PriceStore) LatestPriceSample(ctx context.Context, symbol string) (*models.PriceSample, error) {
	sql := "SELECT " + priceSelectFields + " FROM price_sample WHERE symbol = $symbol ORDER BY t DESC LIMIT 1"
	results, err := surrealdb.Query[[]models.PriceSample](ctx, s.db, sql, map[string]any{"symbol": symbol})
	if err != nil {
		return nil, wrapReadErr("failed to load latest price", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	p := (*results)[0].Result[0]
	return &p, nil
}

// Compile-time check
var _ interfaces.PriceStore = (*PriceStore)(nil)
