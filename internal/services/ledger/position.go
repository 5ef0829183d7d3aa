package ledger

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/models"
)

// ApplyTrade returns pos after trade. It is the only place the average-cost
// rules live; trade execution and ledger replay both go through it.
//
// Buy:  shares += qty, cost += price*qty, avg = cost/shares.
// Sell: realized += (price-avg)*qty, shares -= qty, cost = avg*shares, avg unchanged.
//
// A sell larger than the open quantity is rejected, never clamped. A
// position that reaches zero shares keeps its realized P/L with zero cost.
func ApplyTrade(pos models.Position, trade models.Trade) (models.Position, error) {
	if pos.Symbol == "" {
		pos.Symbol = trade.Symbol
	}
	qty := trade.Quantity

	switch trade.Action {
	case models.TradeBuy:
		pos.TotalShares = pos.TotalShares.Add(qty)
		pos.TotalCost = pos.TotalCost.Add(trade.Price.Mul(qty))
		pos.AvgPrice = pos.TotalCost.Div(pos.TotalShares)

	case models.TradeSell:
		if qty.GreaterThan(pos.TotalShares) {
			return pos, newTradeError(CodeInsufficientShares,
				"cannot sell %s %s, holding %s", qty.String(), trade.Symbol, pos.TotalShares.String())
		}
		pos.RealizedPnl = pos.RealizedPnl.Add(trade.Price.Sub(pos.AvgPrice).Mul(qty))
		pos.TotalShares = pos.TotalShares.Sub(qty)
		if pos.TotalShares.IsZero() {
			pos.TotalCost = decimal.Zero
		} else {
			pos.TotalCost = pos.AvgPrice.Mul(pos.TotalShares)
		}

	default:
		return pos, newTradeError(CodeInvalidAction, "unknown action %q", trade.Action)
	}

	if !trade.Timestamp.IsZero() {
		pos.UpdatedAt = trade.Timestamp
	}
	return pos, nil
}

// ReplayPositions rebuilds positions from a trade history in order. Trades
// that cannot apply (a sell exceeding the open quantity) are skipped and
// returned so the caller can report them.
func ReplayPositions(trades []models.Trade) (map[string]models.Position, []models.Trade) {
	positions := make(map[string]models.Position)
	var skipped []models.Trade
	for _, tr := range trades {
		next, err := ApplyTrade(positions[tr.Symbol], tr)
		if err != nil {
			skipped = append(skipped, tr)
			continue
		}
		positions[tr.Symbol] = next
	}
	return positions, skipped
}

// SortedPositions flattens a position map ordered by symbol.
func SortedPositions(positions map[string]models.Position) []models.Position {
	out := make([]models.Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// ValidateTrade checks a trade request before any state is read.
func ValidateTrade(input models.TradeInput) error {
	if strings.TrimSpace(input.Symbol) == "" {
		return newTradeError(CodeInvalidSymbol, "symbol is required")
	}
	if !input.Action.Valid() {
		return newTradeError(CodeInvalidAction, "action must be buy or sell, got %q", input.Action)
	}
	if !input.Price.IsPositive() {
		return newTradeError(CodeInvalidPrice, "price must be positive")
	}
	if !input.Quantity.IsPositive() {
		return newTradeError(CodeInvalidQuantity, "quantity must be positive")
	}
	return nil
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
