// Package postgres implements folio storage on PostgreSQL via gorm.
package postgres

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/models"
)

// WalletModel is one row per user; Version increments on every ledger write.
type WalletModel struct {
	UserID    string          `gorm:"column:user_id;type:varchar(128);primaryKey"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(32,10);not null;default:0"`
	Version   int64           `gorm:"column:version;not null;default:0"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (WalletModel) TableName() string { return "wallets" }

// PositionModel is the aggregate holding per user and symbol.
type PositionModel struct {
	UserID      string          `gorm:"column:user_id;type:varchar(128);primaryKey"`
	Symbol      string          `gorm:"column:symbol;type:varchar(32);primaryKey"`
	TotalShares decimal.Decimal `gorm:"column:total_shares;type:numeric(32,10);not null;default:0"`
	AvgPrice    decimal.Decimal `gorm:"column:avg_price;type:numeric(32,10);not null;default:0"`
	TotalCost   decimal.Decimal `gorm:"column:total_cost;type:numeric(32,10);not null;default:0"`
	RealizedPnl decimal.Decimal `gorm:"column:realized_pnl;type:numeric(32,10);not null;default:0"`
	UpdatedAt   time.Time       `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

// TradeModel is an append-only executed trade.
type TradeModel struct {
	ID        string          `gorm:"column:id;type:varchar(64);primaryKey"`
	UserID    string          `gorm:"column:user_id;type:varchar(128);index:idx_trades_user_ts,priority:1;not null"`
	Symbol    string          `gorm:"column:symbol;type:varchar(32);not null"`
	Action    string          `gorm:"column:action;type:varchar(8);not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(32,10);not null"`
	Quantity  decimal.Decimal `gorm:"column:quantity;type:numeric(32,10);not null"`
	Timestamp time.Time       `gorm:"column:timestamp;index:idx_trades_user_ts,priority:2;not null"`
	Note      string          `gorm:"column:note;type:text"`
	Seq       int64           `gorm:"column:seq;not null"`
}

func (TradeModel) TableName() string { return "trades" }

// WalletTxModel is an append-only deposit or withdrawal.
type WalletTxModel struct {
	ID               string          `gorm:"column:id;type:varchar(64);primaryKey"`
	UserID           string          `gorm:"column:user_id;type:varchar(128);index:idx_wallet_tx_user_ts,priority:1;not null"`
	Action           string          `gorm:"column:action;type:varchar(16);not null"`
	Amount           decimal.Decimal `gorm:"column:amount;type:numeric(32,10);not null"`
	Method           string          `gorm:"column:method;type:varchar(64)"`
	ResultingBalance decimal.Decimal `gorm:"column:resulting_balance;type:numeric(32,10);not null"`
	Timestamp        time.Time       `gorm:"column:timestamp;index:idx_wallet_tx_user_ts,priority:2;not null"`
	Seq              int64           `gorm:"column:seq;not null"`
}

func (WalletTxModel) TableName() string { return "wallet_transactions" }

// SnapshotModel is a persisted valuation sample; Details holds JSON.
type SnapshotModel struct {
	ID             string          `gorm:"column:id;type:varchar(64);primaryKey"`
	UserID         string          `gorm:"column:user_id;type:varchar(128);index:idx_snapshots_user_ts,priority:1;not null"`
	Timestamp      time.Time       `gorm:"column:timestamp;index:idx_snapshots_user_ts,priority:2;not null"`
	TPV            decimal.Decimal `gorm:"column:tpv;type:numeric(32,10);not null"`
	WalletBalance  decimal.Decimal `gorm:"column:wallet_balance;type:numeric(32,10);not null;default:0"`
	CostBasis      decimal.Decimal `gorm:"column:cost_basis;type:numeric(32,10);not null;default:0"`
	TotalReturn    decimal.Decimal `gorm:"column:total_return;type:numeric(32,10);not null;default:0"`
	TotalReturnPct decimal.Decimal `gorm:"column:total_return_pct;type:numeric(32,10);not null;default:0"`
	HoldingsCount  int             `gorm:"column:holdings_count;not null;default:0"`
	Details        string          `gorm:"column:details;type:jsonb"`
}

func (SnapshotModel) TableName() string { return "portfolio_snapshots" }

// PriceModel is one daily close; (symbol, t) is unique.
type PriceModel struct {
	Symbol string    `gorm:"column:symbol;type:varchar(32);primaryKey"`
	T      time.Time `gorm:"column:t;primaryKey"`
	C      float64   `gorm:"column:c;not null"`
}

func (PriceModel) TableName() string { return "price_samples" }

// allModels lists every table managed by AutoMigrate.
var allModels = []any{
	&WalletModel{}, &PositionModel{}, &TradeModel{}, &WalletTxModel{}, &SnapshotModel{}, &PriceModel{},
}

func walletToModel(m WalletModel) models.Wallet {
	return models.Wallet{UserID: m.UserID, Balance: m.Balance, Version: m.Version, UpdatedAt: m.UpdatedAt.UTC()}
}

func positionToModel(m PositionModel) models.Position {
	return models.Position{
		UserID:      m.UserID,
		Symbol:      m.Symbol,
		TotalShares: m.TotalShares,
		AvgPrice:    m.AvgPrice,
		TotalCost:   m.TotalCost,
		RealizedPnl: m.RealizedPnl,
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func positionFromModel(p models.Position) PositionModel {
	return PositionModel{
		UserID:      p.UserID,
		Symbol:      p.Symbol,
		TotalShares: p.TotalShares,
		AvgPrice:    p.AvgPrice,
		TotalCost:   p.TotalCost,
		RealizedPnl: p.RealizedPnl,
		UpdatedAt:   p.UpdatedAt,
	}
}

func tradeToModel(m TradeModel) models.Trade {
	return models.Trade{
		ID:        m.ID,
		UserID:    m.UserID,
		Symbol:    m.Symbol,
		Action:    models.TradeAction(m.Action),
		Price:     m.Price,
		Quantity:  m.Quantity,
		Timestamp: m.Timestamp.UTC(),
		Note:      m.Note,
		Seq:       m.Seq,
	}
}

func tradeFromModel(t models.Trade) TradeModel {
	return TradeModel{
		ID:        t.ID,
		UserID:    t.UserID,
		Symbol:    t.Symbol,
		Action:    string(t.Action),
		Price:     t.Price,
		Quantity:  t.Quantity,
		Timestamp: t.Timestamp,
		Note:      t.Note,
		Seq:       t.Seq,
	}
}

func walletTxToModel(m WalletTxModel) models.WalletTransaction {
	return models.WalletTransaction{
		ID:               m.ID,
		UserID:           m.UserID,
		Action:           models.WalletAction(m.Action),
		Amount:           m.Amount,
		Method:           m.Method,
		ResultingBalance: m.ResultingBalance,
		Timestamp:        m.Timestamp.UTC(),
		Seq:              m.Seq,
	}
}

func walletTxFromModel(w models.WalletTransaction) WalletTxModel {
	return WalletTxModel{
		ID:               w.ID,
		UserID:           w.UserID,
		Action:           string(w.Action),
		Amount:           w.Amount,
		Method:           w.Method,
		ResultingBalance: w.ResultingBalance,
		Timestamp:        w.Timestamp,
		Seq:              w.Seq,
	}
}

func snapshotFromModel(s *models.PortfolioSnapshot) (SnapshotModel, error) {
	details, err := json.Marshal(s.Details)
	if err != nil {
		return SnapshotModel{}, err
	}
	return SnapshotModel{
		ID:             s.ID,
		UserID:         s.UserID,
		Timestamp:      s.Timestamp,
		TPV:            s.TPV,
		WalletBalance:  s.WalletBalance,
		CostBasis:      s.CostBasis,
		TotalReturn:    s.TotalReturn,
		TotalReturnPct: s.TotalReturnPct,
		HoldingsCount:  s.HoldingsCount,
		Details:        string(details),
	}, nil
}

func snapshotToModel(m SnapshotModel) models.PortfolioSnapshot {
	snap := models.PortfolioSnapshot{
		ID:             m.ID,
		UserID:         m.UserID,
		Timestamp:      m.Timestamp.UTC(),
		TPV:            m.TPV,
		WalletBalance:  m.WalletBalance,
		CostBasis:      m.CostBasis,
		TotalReturn:    m.TotalReturn,
		TotalReturnPct: m.TotalReturnPct,
		HoldingsCount:  m.HoldingsCount,
	}
	if m.Details != "" {
		// a malformed payload leaves Details empty; the totals are still usable
		_ = json.Unmarshal([]byte(m.Details), &snap.Details)
	}
	return snap
}
