package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// LedgerStore implements interfaces.LedgerStore on PostgreSQL. Every write
// takes a row lock on the user's wallet, which serialises ledger writes for
// that user across processes.
type LedgerStore struct {
	db     *gorm.DB
	logger *common.Logger
	now    func() time.Time
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(db *gorm.DB, logger *common.Logger) *LedgerStore {
	return &LedgerStore{db: db, logger: logger, now: time.Now}
}

func (s *LedgerStore) LoadPositions(ctx context.Context, userID string) ([]models.Position, error) {
	var rows []PositionModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("symbol").Find(&rows).Error; err != nil {
		return nil, wrapReadErr("failed to load positions", err)
	}
	out := make([]models.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, positionToModel(r))
	}
	return out, nil
}

func (s *LedgerStore) LoadTrades(ctx context.Context, userID string) ([]models.Trade, error) {
	var rows []TradeModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("timestamp, seq").Find(&rows).Error; err != nil {
		return nil, wrapReadErr("failed to load trades", err)
	}
	out := make([]models.Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, tradeToModel(r))
	}
	return out, nil
}

func (s *LedgerStore) LoadWalletTransactions(ctx context.Context, userID string) ([]models.WalletTransaction, error) {
	var rows []WalletTxModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("timestamp, seq").Find(&rows).Error; err != nil {
		return nil, wrapReadErr("failed to load wallet transactions", err)
	}
	out := make([]models.WalletTransaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, walletTxToModel(r))
	}
	return out, nil
}

// GetWallet returns the user's wallet, or an empty one at version 0.
func (s *LedgerStore) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	var row WalletModel
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Wallet{UserID: userID}, nil
	}
	if err != nil {
		return nil, wrapReadErr("failed to get wallet", err)
	}
	w := walletToModel(row)
	return &w, nil
}

// lockWallet creates the wallet row if needed and locks it for the rest of tx.
func lockWallet(tx *gorm.DB, userID string) (WalletModel, error) {
	seed := WalletModel{UserID: userID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return WalletModel{}, fmt.Errorf("failed to create wallet: %w", err)
	}
	var row WalletModel
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&row).Error; err != nil {
		return WalletModel{}, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return row, nil
}

func (s *LedgerStore) ExecuteTradeAtomic(ctx context.Context, userID, symbol string, fn interfaces.TradeFunc) (*models.TradeOutcome, error) {
	var out *models.TradeOutcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		walletRow, err := lockWallet(tx, userID)
		if err != nil {
			return err
		}

		pos := models.Position{UserID: userID, Symbol: symbol}
		var posRow PositionModel
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND symbol = ?", userID, symbol).
			First(&posRow).Error
		switch {
		case err == nil:
			pos = positionToModel(posRow)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to lock position: %w", err)
		}

		state := models.LedgerState{Wallet: walletToModel(walletRow), Position: pos}
		trade, err := fn(&state)
		if err != nil {
			return err
		}

		now := s.now()
		version := walletRow.Version + 1
		state.Position.UserID = userID
		state.Position.Symbol = symbol
		trade.UserID = userID
		trade.Seq = version

		if err := tx.Model(&WalletModel{}).Where("user_id = ?", userID).Updates(map[string]any{
			"balance":    state.Wallet.Balance,
			"version":    version,
			"updated_at": now,
		}).Error; err != nil {
			return fmt.Errorf("failed to update wallet: %w", err)
		}

		posModel := positionFromModel(state.Position)
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&posModel).Error; err != nil {
			return fmt.Errorf("failed to save position: %w", err)
		}

		tradeModel := tradeFromModel(*trade)
		if err := tx.Create(&tradeModel).Error; err != nil {
			return fmt.Errorf("failed to append trade: %w", err)
		}

		out = &models.TradeOutcome{
			Position:      state.Position,
			WalletBalance: state.Wallet.Balance,
			Transaction:   *trade,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LedgerStore) ApplyWalletTransaction(ctx context.Context, userID string, fn interfaces.WalletFunc) (*models.WalletTransaction, error) {
	var out *models.WalletTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		walletRow, err := lockWallet(tx, userID)
		if err != nil {
			return err
		}

		w := walletToModel(walletRow)
		wtx, err := fn(&w)
		if err != nil {
			return err
		}

		version := walletRow.Version + 1
		wtx.UserID = userID
		wtx.Seq = version

		if err := tx.Model(&WalletModel{}).Where("user_id = ?", userID).Updates(map[string]any{
			"balance":    w.Balance,
			"version":    version,
			"updated_at": s.now(),
		}).Error; err != nil {
			return fmt.Errorf("failed to update wallet: %w", err)
		}

		row := walletTxFromModel(*wtx)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to append wallet transaction: %w", err)
		}
		out = wtx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LedgerStore) ReplacePositions(ctx context.Context, userID string, positions []models.Position) error {
	sorted := append([]models.Position(nil), positions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	rows := make([]PositionModel, 0, len(sorted))
	now := s.now()
	for _, p := range sorted {
		p.UserID = userID
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		rows = append(rows, positionFromModel(p))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockWallet(tx, userID); err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&PositionModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear positions: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to write positions: %w", err)
		}
		return nil
	})
}

func (s *LedgerStore) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&WalletModel{}).Order("user_id").Pluck("user_id", &ids).Error; err != nil {
		return nil, wrapReadErr("failed to list users", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Compile-time check
var _ interfaces.LedgerStore = (*LedgerStore)(nil)
