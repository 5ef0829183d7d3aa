package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotHolding is one holding inside a snapshot's details payload.
type SnapshotHolding struct {
	Symbol           string           `json:"symbol"`
	Shares           decimal.Decimal  `json:"shares"`
	AvgPrice         decimal.Decimal  `json:"avgPrice"`
	CurrentPrice     *decimal.Decimal `json:"currentPrice"`
	MarketValue      decimal.Decimal  `json:"marketValue"`
	CostBasis        decimal.Decimal  `json:"costBasis"`
	UnrealizedPnl    decimal.Decimal  `json:"unrealizedPnl"`
	UnrealizedPnlPct decimal.Decimal  `json:"unrealizedPnlPct"`
}

// SnapshotDetails is the JSON details column of a snapshot.
type SnapshotDetails struct {
	Holdings []SnapshotHolding `json:"holdings"`
}

// PortfolioSnapshot is a persisted valuation sample. Never mutated.
type PortfolioSnapshot struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	Timestamp      time.Time       `json:"timestamp"`
	TPV            decimal.Decimal `json:"tpv"`
	WalletBalance  decimal.Decimal `json:"walletBalance"`
	CostBasis      decimal.Decimal `json:"costBasis"`
	TotalReturn    decimal.Decimal `json:"totalReturn"`
	TotalReturnPct decimal.Decimal `json:"totalReturnPct"`
	HoldingsCount  int             `json:"holdingsCount"`
	Details        SnapshotDetails `json:"details"`
}

// SnapshotFromValuation builds an unsaved snapshot from a mark-to-market result.
func SnapshotFromValuation(userID string, mtm *MarkToMarket, at time.Time) *PortfolioSnapshot {
	holdings := make([]SnapshotHolding, 0, len(mtm.Holdings))
	for _, h := range mtm.Holdings {
		holdings = append(holdings, SnapshotHolding{
			Symbol:           h.Symbol,
			Shares:           h.Shares,
			AvgPrice:         h.AvgPrice,
			CurrentPrice:     h.CurrentPrice,
			MarketValue:      h.MarketValue,
			CostBasis:        h.CostBasis,
			UnrealizedPnl:    h.UnrealizedPnl,
			UnrealizedPnlPct: h.UnrealizedPnlPct,
		})
	}
	return &PortfolioSnapshot{
		UserID:         userID,
		Timestamp:      at,
		TPV:            mtm.TPV,
		WalletBalance:  mtm.WalletBalance,
		CostBasis:      mtm.CostBasis,
		TotalReturn:    mtm.TotalReturn,
		TotalReturnPct: mtm.TotalReturnPct,
		HoldingsCount:  len(holdings),
		Details:        SnapshotDetails{Holdings: holdings},
	}
}

// SnapshotSeries is the snapshot-backed chart series for a range.
type SnapshotSeries struct {
	Range     string              `json:"range"`
	Points    []PortfolioSnapshot `json:"snapshots"`
	Sections  []int64             `json:"sections"`
	StartTime int64               `json:"startTime"`
	EndTime   int64               `json:"endTime"`
}
