package valuation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func price(s string) *decimal.Decimal {
	p := d(s)
	return &p
}

func holding(sym, shares, avg string) models.Holding {
	return models.Holding{Symbol: sym, Shares: d(shares), AvgPrice: d(avg), CostBasis: d(shares).Mul(d(avg))}
}

func sampleHoldings() map[string]models.Holding {
	return map[string]models.Holding{
		"AAPL": holding("AAPL", "10", "100"),
		"MSFT": holding("MSFT", "4", "250"),
		"TSLA": holding("TSLA", "3", "200"),
	}
}

func TestComputeMarkToMarket_Totals(t *testing.T) {
	prices := map[string]*decimal.Decimal{
		"AAPL": price("110"),
		"MSFT": price("240"),
		"TSLA": price("250"),
	}
	mtm := ComputeMarkToMarket(sampleHoldings(), prices, d("500"), false)

	// 1100 + 960 + 750
	assert.True(t, mtm.TPV.Equal(d("2810")), "tpv = %s", mtm.TPV)
	assert.True(t, mtm.CostBasis.Equal(d("2600")), "cost = %s", mtm.CostBasis)
	assert.True(t, mtm.TotalReturn.Equal(d("210")), "return = %s", mtm.TotalReturn)
	assert.False(t, mtm.IncludesWallet)

	require.Len(t, mtm.Holdings, 3)
	assert.Equal(t, "AAPL", mtm.Holdings[0].Symbol)
	assert.Equal(t, "TSLA", mtm.Holdings[2].Symbol)
	assert.True(t, mtm.Holdings[1].UnrealizedPnl.Equal(d("-40")))
}

func TestComputeMarkToMarket_IncludesWallet(t *testing.T) {
	prices := map[string]*decimal.Decimal{"AAPL": price("100")}
	holdings := map[string]models.Holding{"AAPL": holding("AAPL", "10", "100")}

	mtm := ComputeMarkToMarket(holdings, prices, d("250"), true)
	assert.True(t, mtm.TPV.Equal(d("1250")))
	assert.True(t, mtm.TotalReturn.Equal(d("250")))
	assert.True(t, mtm.IncludesWallet)
}

func TestComputeMarkToMarket_MissingPrice(t *testing.T) {
	mtm := ComputeMarkToMarket(sampleHoldings(), map[string]*decimal.Decimal{"AAPL": price("110")}, decimal.Zero, false)

	for _, h := range mtm.Holdings {
		if h.Symbol == "AAPL" {
			assert.Equal(t, models.PricePriced, h.PriceStatus)
			continue
		}
		assert.Equal(t, models.PriceUnavailable, h.PriceStatus, h.Symbol)
		assert.Nil(t, h.CurrentPrice)
		assert.True(t, h.MarketValue.Equal(h.CostBasis), "%s market value should equal cost", h.Symbol)
		assert.True(t, h.UnrealizedPnl.IsZero())
	}
}

func TestComputeMarkToMarket_Empty(t *testing.T) {
	mtm := ComputeMarkToMarket(nil, nil, d("100"), false)
	assert.True(t, mtm.TPV.IsZero())
	assert.True(t, mtm.TotalReturnPct.IsZero())
	assert.NotNil(t, mtm.Holdings)
}

func TestEnrich_ZeroCostPct(t *testing.T) {
	v := Enrich(models.Holding{Symbol: "X", Shares: d("1")}, price("5"))
	assert.True(t, v.UnrealizedPnlPct.IsZero())
	assert.True(t, v.MarketValue.Equal(d("5")))
}

func TestComputeMarkToMarketDelta_MatchesFullRecompute(t *testing.T) {
	holdings := sampleHoldings()
	prices := map[string]*decimal.Decimal{
		"AAPL": price("110.37"),
		"MSFT": price("240.11"),
		"TSLA": nil,
	}

	for _, include := range []bool{false, true} {
		prev := ComputeMarkToMarket(holdings, prices, d("321.5"), include)

		updates := []models.PriceUpdate{
			{Symbol: "AAPL", NewPrice: d("111.01")},
			{Symbol: "MSFT", NewPrice: d("240.11")}, // unchanged
			{Symbol: "TSLA", NewPrice: d("199.99")}, // newly priced
			{Symbol: "NVDA", NewPrice: d("900")},    // not held
		}
		got, nextPrices, changed := ComputeMarkToMarketDelta(prev, holdings, prices, updates)

		want := ComputeMarkToMarket(holdings, nextPrices, d("321.5"), include)
		assert.ElementsMatch(t, []string{"AAPL", "TSLA"}, changed)
		assert.True(t, got.TPV.Equal(want.TPV), "tpv %s != %s", got.TPV, want.TPV)
		assert.True(t, got.CostBasis.Equal(want.CostBasis))
		assert.True(t, got.TotalReturn.Equal(want.TotalReturn))
		assert.True(t, got.TotalReturnPct.Equal(want.TotalReturnPct))
		require.Len(t, got.Holdings, len(want.Holdings))
		for i := range want.Holdings {
			assert.True(t, got.Holdings[i].MarketValue.Equal(want.Holdings[i].MarketValue), want.Holdings[i].Symbol)
			assert.Equal(t, want.Holdings[i].PriceStatus, got.Holdings[i].PriceStatus)
		}
	}
}

func TestComputeMarkToMarketDelta_NoChange(t *testing.T) {
	holdings := sampleHoldings()
	prices := map[string]*decimal.Decimal{"AAPL": price("1"), "MSFT": price("2"), "TSLA": price("3")}
	prev := ComputeMarkToMarket(holdings, prices, decimal.Zero, false)

	got, _, changed := ComputeMarkToMarketDelta(prev, holdings, prices, []models.PriceUpdate{{Symbol: "AAPL", NewPrice: d("1.00")}})
	assert.Empty(t, changed)
	assert.True(t, got.TPV.Equal(prev.TPV))
}

func TestComputeMarkToMarketDelta_DoesNotMutatePrevious(t *testing.T) {
	holdings := sampleHoldings()
	prices := map[string]*decimal.Decimal{"AAPL": price("100")}
	prev := ComputeMarkToMarket(holdings, prices, decimal.Zero, false)
	before := prev.Holdings[0].MarketValue

	_, _, _ = ComputeMarkToMarketDelta(prev, holdings, prices, []models.PriceUpdate{{Symbol: "AAPL", NewPrice: d("150")}})

	assert.True(t, prev.Holdings[0].MarketValue.Equal(before))
	assert.True(t, prices["AAPL"].Equal(d("100")))
}

func TestHoldingsCache(t *testing.T) {
	cache, err := NewHoldingsCache(2)
	require.NoError(t, err)

	positions := []models.Position{
		{Symbol: "AAPL", TotalShares: d("2"), AvgPrice: d("10"), TotalCost: d("20")},
		{Symbol: "GONE", TotalShares: decimal.Zero, RealizedPnl: d("5")},
	}
	h1, k1 := cache.Holdings(positions)
	h2, k2 := cache.Holdings([]models.Position{positions[1], positions[0]})

	assert.Equal(t, k1, k2, "key should not depend on order")
	assert.Len(t, h1, 1)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, cache.Len())

	positions[0].TotalShares = d("3")
	_, k3 := cache.Holdings(positions)
	assert.NotEqual(t, k1, k3)
}

func TestBuildHoldings_CostFallback(t *testing.T) {
	h := BuildHoldings([]models.Position{{Symbol: "AAPL", TotalShares: d("4"), AvgPrice: d("2.5")}})
	assert.True(t, h["AAPL"].CostBasis.Equal(d("10")))
}
