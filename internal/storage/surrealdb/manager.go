package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
)

// tables are defined up front; SurrealDB v3 errors on querying a table that
// does not exist.
var tables = []string{"wallet", "position", "trade", "wallet_tx", "portfolio_snapshot", "price_sample"}

var indexes = []string{
	"DEFINE INDEX IF NOT EXISTS idx_position_user ON position FIELDS user_id",
	"DEFINE INDEX IF NOT EXISTS idx_trade_user ON trade FIELDS user_id, timestamp",
	"DEFINE INDEX IF NOT EXISTS idx_wallet_tx_user ON wallet_tx FIELDS user_id, timestamp",
	"DEFINE INDEX IF NOT EXISTS idx_snapshot_user_ts ON portfolio_snapshot FIELDS user_id, timestamp",
	"DEFINE INDEX IF NOT EXISTS idx_price_symbol_t ON price_sample FIELDS symbol, t",
}

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	ledgerStore   *LedgerStore
	snapshotStore *SnapshotStore
	priceStore    *PriceStore
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	if err := DefineSchema(ctx, db); err != nil {
		return nil, err
	}

	m := newManager(db, logger)

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

func newManager(db *surrealdb.DB, logger *common.Logger) *Manager {
	return &Manager{
		db:            db,
		logger:        logger,
		ledgerStore:   NewLedgerStore(db, logger),
		snapshotStore: NewSnapshotStore(db, logger),
		priceStore:    NewPriceStore(db, logger),
	}
}

// DefineSchema creates the folio tables and indexes when missing.
func DefineSchema(ctx context.Context, db *surrealdb.DB) error {
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}
	for _, sql := range indexes {
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return fmt.Errorf("failed to define index: %w", err)
		}
	}
	return nil
}

func (m *Manager) LedgerStore() interfaces.LedgerStore {
	return m.ledgerStore
}

func (m *Manager) SnapshotStore() interfaces.SnapshotStore {
	return m.snapshotStore
}

func (m *Manager) PriceStore() interfaces.PriceStore {
	return m.priceStore
}

func (m *Manager) Backend() string {
	return "surrealdb"
}

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
