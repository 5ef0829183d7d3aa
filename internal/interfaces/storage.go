// Package interfaces defines service contracts for folio
package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

// ErrTableMissing is returned (wrapped) when a backing table has not been
// created yet. Readers treat it as "no data".
var ErrTableMissing = errors.New("table does not exist")

// StorageManager coordinates the storage backend.
type StorageManager interface {
	LedgerStore() LedgerStore
	SnapshotStore() SnapshotStore
	PriceStore() PriceStore

	// Backend names the storage implementation ("surrealdb" or "postgres").
	Backend() string

	Close() error
}

// TradeFunc validates and applies a trade against the locked ledger state.
// It mutates state in place and returns the trade to append. Returning an
// error rolls the whole transaction back.
type TradeFunc func(state *models.LedgerState) (*models.Trade, error)

// WalletFunc applies a wallet movement to the locked wallet and returns the
// transaction to append. Returning an error rolls back.
type WalletFunc func(wallet *models.Wallet) (*models.WalletTransaction, error)

// LedgerStore persists trades, wallet movements and derived positions.
type LedgerStore interface {
	LoadPositions(ctx context.Context, userID string) ([]models.Position, error)
	LoadTrades(ctx context.Context, userID string) ([]models.Trade, error)
	LoadWalletTransactions(ctx context.Context, userID string) ([]models.WalletTransaction, error)
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)

	// ExecuteTradeAtomic locks the wallet and the (userID, symbol) position,
	// runs fn, then writes position, balance and the appended trade in one
	// transaction. Nothing is written when fn fails.
	ExecuteTradeAtomic(ctx context.Context, userID, symbol string, fn TradeFunc) (*models.TradeOutcome, error)

	// ApplyWalletTransaction is the wallet-only counterpart of ExecuteTradeAtomic.
	ApplyWalletTransaction(ctx context.Context, userID string, fn WalletFunc) (*models.WalletTransaction, error)

	// ReplacePositions swaps all positions of a user for the given set.
	// Closed positions (zero shares) are kept so realized P/L survives.
	ReplacePositions(ctx context.Context, userID string, positions []models.Position) error

	// ListUserIDs returns every user that owns a wallet.
	ListUserIDs(ctx context.Context) ([]string, error)
}

// SnapshotStore persists periodic valuation snapshots.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap *models.PortfolioSnapshot) error
	// LoadSnapshots returns snapshots with start <= timestamp <= end, ascending.
	LoadSnapshots(ctx context.Context, userID string, start, end time.Time) ([]models.PortfolioSnapshot, error)
	// EarliestSnapshot returns nil when the user has no snapshots.
	EarliestSnapshot(ctx context.Context, userID string) (*time.Time, error)
	LatestSnapshot(ctx context.Context, userID string) (*models.PortfolioSnapshot, error)
}

// PriceStore holds ingested price samples per symbol.
type PriceStore interface {
	SavePriceSamples(ctx context.Context, symbol string, samples []models.PriceSample) (int, error)
	// LoadPriceSamples returns samples with start <= t <= end, ascending.
	LoadPriceSamples(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceSample, error)
	// LatestPriceSample returns nil when the symbol has no samples.
	LatestPriceSample(ctx context.Context, symbol string) (*models.PriceSample, error)
}
