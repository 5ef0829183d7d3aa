package postgres

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
)

// Manager implements interfaces.StorageManager on PostgreSQL.
type Manager struct {
	db     *gorm.DB
	logger *common.Logger

	ledgerStore   *LedgerStore
	snapshotStore *SnapshotStore
	priceStore    *PriceStore
}

// NewManager opens the configured DSN and migrates the schema.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	if config.Storage.DSN == "" {
		return nil, errors.New("postgres storage requires storage.dsn")
	}

	db, err := gorm.Open(postgres.Open(config.Storage.DSN), &gorm.Config{
		Logger: newGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logger.Info().Str("backend", "postgres").Msg("Postgres storage manager initialized")
	return newManager(db, logger), nil
}

func newManager(db *gorm.DB, logger *common.Logger) *Manager {
	return &Manager{
		db:            db,
		logger:        logger,
		ledgerStore:   NewLedgerStore(db, logger),
		snapshotStore: NewSnapshotStore(db, logger),
		priceStore:    NewPriceStore(db, logger),
	}
}

// Migrate creates or updates the folio tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
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
	return "postgres"
}

func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
