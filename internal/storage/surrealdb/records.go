package surrealdb

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/models"
)

// Decimals are stored as strings so no precision is lost in transit.

type walletRecord struct {
	UserID    string    `json:"user_id"`
	Balance   string    `json:"balance"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

const walletSelectFields = "user_id, balance, version, updated_at"

type positionRecord struct {
	UserID      string    `json:"user_id"`
	Symbol      string    `json:"symbol"`
	TotalShares string    `json:"total_shares"`
	AvgPrice    string    `json:"avg_price"`
	TotalCost   string    `json:"total_cost"`
	RealizedPnl string    `json:"realized_pnl"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const positionSelectFields = "user_id, symbol, total_shares, avg_price, total_cost, realized_pnl, updated_at"

type tradeRecord struct {
	TradeID   string    `json:"trade_id"`
	UserID    string    `json:"user_id"`
	Symbol    string    `json:"symbol"`
	Action    string    `json:"action"`
	Price     string    `json:"price"`
	Quantity  string    `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
	Seq       int64     `json:"seq"`
}

const tradeSelectFields = "trade_id, user_id, symbol, action, price, quantity, timestamp, note, seq"

type walletTxRecord struct {
	TxID             string    `json:"tx_id"`
	UserID           string    `json:"user_id"`
	Action           string    `json:"action"`
	Amount           string    `json:"amount"`
	Method           string    `json:"method"`
	ResultingBalance string    `json:"resulting_balance"`
	Timestamp        time.Time `json:"timestamp"`
	Seq              int64     `json:"seq"`
}

const walletTxSelectFields = "tx_id, user_id, action, amount, method, resulting_balance, timestamp, seq"

type snapshotRecord struct {
	SnapshotID     string    `json:"snapshot_id"`
	UserID         string    `json:"user_id"`
	Timestamp      time.Time `json:"timestamp"`
	TPV            string    `json:"tpv"`
	WalletBalance  string    `json:"wallet_balance"`
	CostBasis      string    `json:"cost_basis"`
	TotalReturn    string    `json:"total_return"`
	TotalReturnPct string    `json:"total_return_pct"`
	HoldingsCount  int       `json:"holdings_count"`
	Details        string    `json:"details"`
}

const snapshotSelectFields = `snapshot_id, user_id, timestamp, tpv, wallet_balance, cost_basis,
	total_return, total_return_pct, holdings_count, details`

type priceRecord struct {
	Key    string    `json:"key"`
	Symbol string    `json:"symbol"`
	T      time.Time `json:"t"`
	C      float64   `json:"c"`
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (r walletRecord) toModel() models.Wallet {
	return models.Wallet{UserID: r.UserID, Balance: dec(r.Balance), Version: r.Version, UpdatedAt: r.UpdatedAt}
}

func walletFromModel(w models.Wallet) walletRecord {
	return walletRecord{UserID: w.UserID, Balance: w.Balance.String(), Version: w.Version, UpdatedAt: w.UpdatedAt}
}

func (r positionRecord) toModel() models.Position {
	return models.Position{
		UserID:      r.UserID,
		Symbol:      r.Symbol,
		TotalShares: dec(r.TotalShares),
		AvgPrice:    dec(r.AvgPrice),
		TotalCost:   dec(r.TotalCost),
		RealizedPnl: dec(r.RealizedPnl),
		UpdatedAt:   r.UpdatedAt,
	}
}

func positionFromModel(p models.Position) positionRecord {
	return positionRecord{
		UserID:      p.UserID,
		Symbol:      p.Symbol,
		TotalShares: p.TotalShares.String(),
		AvgPrice:    p.AvgPrice.String(),
		TotalCost:   p.TotalCost.String(),
		RealizedPnl: p.RealizedPnl.String(),
		UpdatedAt:   p.UpdatedAt,
	}
}

func (r tradeRecord) toModel() models.Trade {
	return models.Trade{
		ID:        r.TradeID,
		UserID:    r.UserID,
		Symbol:    r.Symbol,
		Action:    models.TradeAction(r.Action),
		Price:     dec(r.Price),
		Quantity:  dec(r.Quantity),
		Timestamp: r.Timestamp,
		Note:      r.Note,
		Seq:       r.Seq,
	}
}

func tradeFromModel(t models.Trade) tradeRecord {
	return tradeRecord{
		TradeID:   t.ID,
		UserID:    t.UserID,
		Symbol:    t.Symbol,
		Action:    string(t.Action),
		Price:     t.Price.String(),
		Quantity:  t.Quantity.String(),
		Timestamp: t.Timestamp,
		Note:      t.Note,
		Seq:       t.Seq,
	}
}

func (r walletTxRecord) toModel() models.WalletTransaction {
	return models.WalletTransaction{
		ID:               r.TxID,
		UserID:           r.UserID,
		Action:           models.WalletAction(r.Action),
		Amount:           dec(r.Amount),
		Method:           r.Method,
		ResultingBalance: dec(r.ResultingBalance),
		Timestamp:        r.Timestamp,
		Seq:              r.Seq,
	}
}

func walletTxFromModel(tx models.WalletTransaction) walletTxRecord {
	return walletTxRecord{
		TxID:             tx.ID,
		UserID:           tx.UserID,
		Action:           string(tx.Action),
		Amount:           tx.Amount.String(),
		Method:           tx.Method,
		ResultingBalance: tx.ResultingBalance.String(),
		Timestamp:        tx.Timestamp,
		Seq:              tx.Seq,
	}
}

func (r snapshotRecord) toModel() models.PortfolioSnapshot {
	snap := models.PortfolioSnapshot{
		ID:             r.SnapshotID,
		UserID:         r.UserID,
		Timestamp:      r.Timestamp,
		TPV:            dec(r.TPV),
		WalletBalance:  dec(r.WalletBalance),
		CostBasis:      dec(r.CostBasis),
		TotalReturn:    dec(r.TotalReturn),
		TotalReturnPct: dec(r.TotalReturnPct),
		HoldingsCount:  r.HoldingsCount,
	}
	if r.Details != "" {
		_ = json.Unmarshal([]byte(r.Details), &snap.Details)
	}
	return snap
}

func snapshotFromModel(s *models.PortfolioSnapshot) (snapshotRecord, error) {
	details, err := json.Marshal(s.Details)
	if err != nil {
		return snapshotRecord{}, err
	}
	return snapshotRecord{
		SnapshotID:     s.ID,
		UserID:         s.UserID,
		Timestamp:      s.Timestamp,
		TPV:            s.TPV.String(),
		WalletBalance:  s.WalletBalance.String(),
		CostBasis:      s.CostBasis.String(),
		TotalReturn:    s.TotalReturn.String(),
		TotalReturnPct: s.TotalReturnPct.String(),
		HoldingsCount:  s.HoldingsCount,
		Details:        string(details),
	}, nil
}
