package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func trade(action models.TradeAction, qty, price string) models.Trade {
	return models.Trade{Symbol: "AAPL", Action: action, Quantity: d(qty), Price: d(price)}
}

func TestApplyTrade_BuyBuySell(t *testing.T) {
	var pos models.Position
	var err error

	pos, err = ApplyTrade(pos, trade(models.TradeBuy, "10", "100"))
	if err != nil {
		t.Fatalf("buy 1: %v", err)
	}
	if !pos.TotalShares.Equal(d("10")) || !pos.AvgPrice.Equal(d("100")) || !pos.TotalCost.Equal(d("1000")) {
		t.Fatalf("after buy 1 = %+v", pos)
	}

	pos, err = ApplyTrade(pos, trade(models.TradeBuy, "10", "120"))
	if err != nil {
		t.Fatalf("buy 2: %v", err)
	}
	if !pos.TotalShares.Equal(d("20")) || !pos.AvgPrice.Equal(d("110")) || !pos.TotalCost.Equal(d("2200")) {
		t.Fatalf("after buy 2 = %+v", pos)
	}

	pos, err = ApplyTrade(pos, trade(models.TradeSell, "5", "130"))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !pos.TotalShares.Equal(d("15")) {
		t.Errorf("shares = %s, want 15", pos.TotalShares)
	}
	if !pos.AvgPrice.Equal(d("110")) {
		t.Errorf("avg = %s, want 110 (unchanged on sell)", pos.AvgPrice)
	}
	if !pos.TotalCost.Equal(d("1650")) {
		t.Errorf("cost = %s, want 1650", pos.TotalCost)
	}
	if !pos.RealizedPnl.Equal(d("100")) {
		t.Errorf("realized = %s, want 100", pos.RealizedPnl)
	}
}

func TestApplyTrade_SellMoreThanHeldRejected(t *testing.T) {
	pos, _ := ApplyTrade(models.Position{}, trade(models.TradeBuy, "3", "10"))

	got, err := ApplyTrade(pos, trade(models.TradeSell, "4", "10"))
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("err = %v, want insufficient_shares", err)
	}
	if !got.TotalShares.Equal(d("3")) {
		t.Errorf("shares changed on rejected sell: %s", got.TotalShares)
	}
}

func TestApplyTrade_FullSellPinsAtZero(t *testing.T) {
	pos, _ := ApplyTrade(models.Position{}, trade(models.TradeBuy, "4", "25"))
	pos, err := ApplyTrade(pos, trade(models.TradeSell, "4", "30"))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !pos.TotalShares.IsZero() || !pos.TotalCost.IsZero() {
		t.Errorf("closed position = %+v, want zero shares and cost", pos)
	}
	if !pos.RealizedPnl.Equal(d("20")) {
		t.Errorf("realized = %s, want 20", pos.RealizedPnl)
	}
	if pos.IsOpen() {
		t.Error("closed position reports open")
	}

	// Re-entry starts a fresh average but keeps realized P/L.
	pos, _ = ApplyTrade(pos, trade(models.TradeBuy, "2", "50"))
	if !pos.AvgPrice.Equal(d("50")) || !pos.RealizedPnl.Equal(d("20")) {
		t.Errorf("re-entry = %+v", pos)
	}
}

func TestApplyTrade_UnknownAction(t *testing.T) {
	_, err := ApplyTrade(models.Position{}, trade("hold", "1", "1"))
	var te *TradeError
	if !errors.As(err, &te) || te.Code != CodeInvalidAction {
		t.Fatalf("err = %v, want invalid_action", err)
	}
}

func TestReplayPositions_SkipsOversell(t *testing.T) {
	trades := []models.Trade{
		trade(models.TradeBuy, "5", "10"),
		trade(models.TradeSell, "9", "12"),
		trade(models.TradeSell, "2", "12"),
	}
	positions, skipped := ReplayPositions(trades)

	if len(skipped) != 1 {
		t.Fatalf("skipped = %d, want 1", len(skipped))
	}
	got := positions["AAPL"]
	if !got.TotalShares.Equal(d("3")) || !got.RealizedPnl.Equal(d("4")) {
		t.Errorf("replayed = %+v", got)
	}
}

func TestNoNegativeShares(t *testing.T) {
	// Alternate buys and oversized sells; shares must never go below zero.
	var pos models.Position
	steps := []models.Trade{
		trade(models.TradeBuy, "1", "1"),
		trade(models.TradeSell, "2", "1"),
		trade(models.TradeSell, "1", "1"),
		trade(models.TradeSell, "0.5", "1"),
		trade(models.TradeBuy, "0.25", "3"),
		trade(models.TradeSell, "0.25", "3"),
	}
	for i, tr := range steps {
		next, err := ApplyTrade(pos, tr)
		if err == nil {
			pos = next
		}
		if pos.TotalShares.IsNegative() {
			t.Fatalf("step %d: shares went negative: %s", i, pos.TotalShares)
		}
	}
}

func TestValidateTrade(t *testing.T) {
	valid := models.TradeInput{Symbol: "MSFT", Action: models.TradeBuy, Price: d("1"), Quantity: d("1")}

	cases := []struct {
		name string
		mut  func(in *models.TradeInput)
		code ErrorCode
	}{
		{"missing symbol", func(in *models.TradeInput) { in.Symbol = "  " }, CodeInvalidSymbol},
		{"bad action", func(in *models.TradeInput) { in.Action = "short" }, CodeInvalidAction},
		{"zero price", func(in *models.TradeInput) { in.Price = decimal.Zero }, CodeInvalidPrice},
		{"negative quantity", func(in *models.TradeInput) { in.Quantity = d("-1") }, CodeInvalidQuantity},
	}

	if err := ValidateTrade(valid); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mut(&in)
			err := ValidateTrade(in)
			var te *TradeError
			if !errors.As(err, &te) {
				t.Fatalf("err = %v, want *TradeError", err)
			}
			if te.Code != tc.code {
				t.Errorf("code = %s, want %s", te.Code, tc.code)
			}
			if !te.IsValidation() {
				t.Error("expected a validation error")
			}
		})
	}
}
