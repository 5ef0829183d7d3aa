package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

// PriceSource is the price lookup collaborator consumed by valuation and replay.
type PriceSource interface {
	// GetHistoricalPrices returns ascending samples within [start, end] with
	// C > 0. An empty slice means no data.
	GetHistoricalPrices(ctx context.Context, symbol, rangeHint string, start, end time.Time) ([]models.PriceSample, error)

	// GetQuote returns the latest price or nil when none is known.
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}
