package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is the minimal per-symbol input to mark-to-market.
type Holding struct {
	Symbol    string          `json:"symbol"`
	Shares    decimal.Decimal `json:"shares"`
	AvgPrice  decimal.Decimal `json:"avgPrice"`
	CostBasis decimal.Decimal `json:"costBasis"`
}

// PriceStatus tells whether an enriched position carries a live price.
type PriceStatus string

const (
	PricePriced      PriceStatus = "priced"
	PriceUnavailable PriceStatus = "price_unavailable"
)

// HoldingValuation is the per-holding breakdown of a mark-to-market run.
type HoldingValuation struct {
	Symbol           string           `json:"symbol"`
	Shares           decimal.Decimal  `json:"shares"`
	AvgPrice         decimal.Decimal  `json:"avgPrice"`
	CurrentPrice     *decimal.Decimal `json:"currentPrice"`
	MarketValue      decimal.Decimal  `json:"marketValue"`
	CostBasis        decimal.Decimal  `json:"costBasis"`
	UnrealizedPnl    decimal.Decimal  `json:"unrealizedPnl"`
	UnrealizedPnlPct decimal.Decimal  `json:"unrealizedPnlPct"`
	PriceStatus      PriceStatus      `json:"priceStatus"`
}

// MarkToMarket is the aggregate valuation of a portfolio at a point in time.
type MarkToMarket struct {
	TPV            decimal.Decimal    `json:"tpv"`
	CostBasis      decimal.Decimal    `json:"costBasis"`
	TotalReturn    decimal.Decimal    `json:"totalReturn"`
	TotalReturnPct decimal.Decimal    `json:"totalReturnPct"`
	WalletBalance  decimal.Decimal    `json:"walletBalance"`
	IncludesWallet bool               `json:"includesWallet"`
	Holdings       []HoldingValuation `json:"holdings"`
	ComputedAt     time.Time          `json:"computedAt"`
}

// PriceUpdate is a single changed price fed to delta recomputation.
type PriceUpdate struct {
	Symbol   string          `json:"symbol"`
	NewPrice decimal.Decimal `json:"newPrice"`
}
