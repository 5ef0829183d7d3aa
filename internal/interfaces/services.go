package interfaces

import (
	"context"

	"github.com/bobmcallan/folio/internal/models"
)

// LedgerService executes trades and wallet movements.
type LedgerService interface {
	ExecuteTrade(ctx context.Context, userID string, input models.TradeInput) (*models.TradeOutcome, error)
	Deposit(ctx context.Context, userID string, input models.WalletInput) (*models.WalletTransaction, error)
	Withdraw(ctx context.Context, userID string, input models.WalletInput) (*models.WalletTransaction, error)

	GetPositions(ctx context.Context, userID string) ([]models.Position, error)
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
	ListTrades(ctx context.Context, userID string) ([]models.Trade, error)
	ListWalletTransactions(ctx context.Context, userID string) ([]models.WalletTransaction, error)

	// ResyncPositions rebuilds stored positions from the trade history.
	ResyncPositions(ctx context.Context, userID string) ([]models.Position, error)
}

// LedgerListener is notified after a ledger write commits.
type LedgerListener interface {
	LedgerChanged(ctx context.Context, userID string)
}

// ValuationService computes mark-to-market valuations.
type ValuationService interface {
	// Current values the portfolio at live prices without recording a snapshot.
	Current(ctx context.Context, userID string) (*models.MarkToMarket, error)

	// Revalue refreshes prices, recomputes incrementally where possible and
	// offers the result to the snapshot recorder.
	Revalue(ctx context.Context, userID string) (*models.MarkToMarket, error)
}

// SnapshotService reads and records portfolio snapshots.
type SnapshotService interface {
	GetSeries(ctx context.Context, userID, rangeKey string) (*models.SnapshotSeries, error)
	Latest(ctx context.Context, userID string) (*models.PortfolioSnapshot, error)

	// Offer records mtm when the throttle allows it (or force is set).
	// The write happens asynchronously; the return value reports whether a
	// write was scheduled.
	Offer(userID string, mtm *models.MarkToMarket, force bool) bool
}

// TimeseriesService builds chart series by replaying the ledger.
type TimeseriesService interface {
	GetTimeseries(ctx context.Context, userID, rangeKey, gran string) (*models.TimeseriesResponse, error)
	RenderChart(ctx context.Context, userID, rangeKey string) ([]byte, error)
}

// QuoteService is the store-backed price source plus its ingestion path.
type QuoteService interface {
	PriceSource

	// Ingest stores daily closes for symbol and returns how many were written.
	Ingest(ctx context.Context, symbol string, samples []models.PriceSample) (int, error)
}
