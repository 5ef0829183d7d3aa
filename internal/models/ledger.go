// Package models defines data structures for folio
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction is the side of a trade.
type TradeAction string

const (
	TradeBuy  TradeAction = "buy"
	TradeSell TradeAction = "sell"
)

// Valid reports whether a is a known trade action.
func (a TradeAction) Valid() bool {
	return a == TradeBuy || a == TradeSell
}

// WalletAction is the direction of a wallet movement.
type WalletAction string

const (
	WalletDeposit  WalletAction = "deposit"
	WalletWithdraw WalletAction = "withdraw"
)

// Valid reports whether a is a known wallet action.
func (a WalletAction) Valid() bool {
	return a == WalletDeposit || a == WalletWithdraw
}

// DefaultWalletMethod is recorded when a wallet movement carries no method.
const DefaultWalletMethod = "Manual"

// Trade is an executed buy or sell. Trades are append-only.
type Trade struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Symbol    string          `json:"symbol"`
	Action    TradeAction     `json:"action"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Timestamp time.Time       `json:"timestamp"`
	Note      string          `json:"note,omitempty"`
	Seq       int64           `json:"seq"`
}

// Amount returns price × quantity.
func (t Trade) Amount() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

// WalletTransaction is a deposit or withdrawal. Append-only.
type WalletTransaction struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	Action           WalletAction    `json:"action"`
	Amount           decimal.Decimal `json:"amount"`
	Timestamp        time.Time       `json:"timestamp"`
	Method           string          `json:"method,omitempty"`
	ResultingBalance decimal.Decimal `json:"resultingBalance"`
	Seq              int64           `json:"seq"`
}

// SignedAmount returns the amount as a cash delta (withdrawals negative).
func (w WalletTransaction) SignedAmount() decimal.Decimal {
	if w.Action == WalletWithdraw {
		return w.Amount.Neg()
	}
	return w.Amount
}

// Position is the aggregate holding for one symbol, derived from trades.
type Position struct {
	UserID      string          `json:"userId,omitempty"`
	Symbol      string          `json:"symbol"`
	TotalShares decimal.Decimal `json:"totalShares"`
	AvgPrice    decimal.Decimal `json:"avgPrice"`
	TotalCost   decimal.Decimal `json:"totalCost"`
	RealizedPnl decimal.Decimal `json:"realizedPnl"`
	UpdatedAt   time.Time       `json:"updatedAt,omitempty"`
}

// IsOpen reports whether the position still holds shares.
func (p Position) IsOpen() bool {
	return p.TotalShares.IsPositive()
}

// Wallet is the cash balance of a portfolio. Version increments on every
// ledger write and doubles as the ordering sequence for appended events.
type Wallet struct {
	UserID    string          `json:"userId"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt,omitempty"`
}

// LedgerState is the locked view handed to a trade or wallet mutation.
type LedgerState struct {
	Wallet   Wallet
	Position Position
}

// TradeOutcome is the committed result of a trade.
type TradeOutcome struct {
	Position      Position        `json:"position"`
	WalletBalance decimal.Decimal `json:"walletBalance"`
	Transaction   Trade           `json:"transaction"`
}

// TradeInput is the request body of a trade.
type TradeInput struct {
	Symbol   string          `json:"symbol"`
	Action   TradeAction     `json:"action"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Note     string          `json:"note,omitempty"`
}

// WalletInput is the request body of a deposit or withdrawal.
type WalletInput struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method,omitempty"`
}
