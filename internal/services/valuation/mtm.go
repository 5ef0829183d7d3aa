// Package valuation computes mark-to-market valuations of portfolios.
package valuation

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Enrich values one raw holding. It is total: a missing price yields the
// price_unavailable variant valued at cost with zero unrealized P/L.
func Enrich(h models.Holding, price *decimal.Decimal) models.HoldingValuation {
	v := models.HoldingValuation{
		Symbol:    h.Symbol,
		Shares:    h.Shares,
		AvgPrice:  h.AvgPrice,
		CostBasis: h.CostBasis,
	}

	if price == nil {
		v.PriceStatus = models.PriceUnavailable
		v.MarketValue = h.CostBasis
		v.UnrealizedPnl = decimal.Zero
		v.UnrealizedPnlPct = decimal.Zero
		return v
	}

	p := *price
	v.PriceStatus = models.PricePriced
	v.CurrentPrice = &p
	v.MarketValue = h.Shares.Mul(p)
	v.UnrealizedPnl = v.MarketValue.Sub(h.CostBasis)
	v.UnrealizedPnlPct = pct(v.UnrealizedPnl, h.CostBasis)
	return v
}

func pct(part, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return part.Div(base).Mul(hundred)
}

// ComputeMarkToMarket values every holding against prices (nil or absent
// means no live price) and aggregates the totals.
func ComputeMarkToMarket(holdings map[string]models.Holding, prices map[string]*decimal.Decimal, wallet decimal.Decimal, includeWallet bool) models.MarkToMarket {
	symbols := make([]string, 0, len(holdings))
	for sym := range holdings {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	mtm := models.MarkToMarket{
		WalletBalance:  wallet,
		IncludesWallet: includeWallet,
		Holdings:       make([]models.HoldingValuation, 0, len(symbols)),
	}

	marketValue := decimal.Zero
	cost := decimal.Zero
	for _, sym := range symbols {
		v := Enrich(holdings[sym], prices[sym])
		mtm.Holdings = append(mtm.Holdings, v)
		marketValue = marketValue.Add(v.MarketValue)
		cost = cost.Add(v.CostBasis)
	}

	finish(&mtm, marketValue, cost)
	return mtm
}

func finish(mtm *models.MarkToMarket, marketValue, cost decimal.Decimal) {
	mtm.CostBasis = cost
	mtm.TPV = marketValue
	if mtm.IncludesWallet {
		mtm.TPV = mtm.TPV.Add(mtm.WalletBalance)
	}
	mtm.TotalReturn = mtm.TPV.Sub(cost)
	mtm.TotalReturnPct = pct(mtm.TotalReturn, cost)
}

// ComputeMarkToMarketDelta applies price updates to a previous valuation
// computed from the same holdings and wallet. Only symbols whose price
// actually changed are revalued: their old market value is subtracted from
// the aggregate and the new one added. Decimal arithmetic keeps the result
// identical to ComputeMarkToMarket over the updated price map.
//
// It returns the new valuation, the updated price map and the symbols that
// changed. Updates for symbols not held are ignored.
func ComputeMarkToMarketDelta(prev models.MarkToMarket, holdings map[string]models.Holding, prevPrices map[string]*decimal.Decimal, updates []models.PriceUpdate) (models.MarkToMarket, map[string]*decimal.Decimal, []string) {
	prices := make(map[string]*decimal.Decimal, len(prevPrices))
	for k, v := range prevPrices {
		prices[k] = v
	}

	next := prev
	next.Holdings = append([]models.HoldingValuation(nil), prev.Holdings...)
	index := make(map[string]int, len(next.Holdings))
	for i, h := range next.Holdings {
		index[h.Symbol] = i
	}

	marketValue := prev.TPV
	if prev.IncludesWallet {
		marketValue = marketValue.Sub(prev.WalletBalance)
	}

	var changed []string
	for _, u := range updates {
		h, held := holdings[u.Symbol]
		i, valued := index[u.Symbol]
		if !held || !valued {
			continue
		}
		if old := prices[u.Symbol]; old != nil && old.Equal(u.NewPrice) {
			continue
		}

		p := u.NewPrice
		nv := Enrich(h, &p)
		marketValue = marketValue.Sub(next.Holdings[i].MarketValue).Add(nv.MarketValue)
		next.Holdings[i] = nv
		prices[u.Symbol] = &p
		changed = append(changed, u.Symbol)
	}

	if len(changed) == 0 {
		return next, prices, nil
	}
	finish(&next, marketValue, prev.CostBasis)
	return next, prices, changed
}
