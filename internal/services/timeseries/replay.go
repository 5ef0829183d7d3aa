package timeseries

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/ledger"
)

type event struct {
	at     time.Time
	trade  *models.Trade
	wallet *models.WalletTransaction
}

// replayState is the running ledger state between sections.
type replayState struct {
	positions   map[string]models.Position
	cash        decimal.Decimal
	netDeposits decimal.Decimal
	skipped     int
}

// Replay reconstructs portfolio value at each section from the ledger and
// price history. It is pure and deterministic.
func Replay(trades []models.Trade, walletTx []models.WalletTransaction, sections []time.Time, history map[string][]models.PriceSample) []models.ReplayPoint {
	points, _ := replay(trades, walletTx, sections, history)
	return points
}

// replay also reports how many trades were skipped as invalid.
func replay(trades []models.Trade, walletTx []models.WalletTransaction, sections []time.Time, history map[string][]models.PriceSample) ([]models.ReplayPoint, int) {
	events := mergeEvents(trades, walletTx)

	ordered := append([]time.Time(nil), sections...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	st := &replayState{positions: make(map[string]models.Position)}
	points := make([]models.ReplayPoint, 0, len(ordered))

	next := 0
	for _, section := range ordered {
		for next < len(events) && !events[next].at.After(section) {
			st.apply(events[next])
			next++
		}

		pv, cost := st.value(section, history)
		cash := st.cash.InexactFloat64()
		if pv == 0 && cash == 0 {
			continue
		}
		points = append(points, models.ReplayPoint{
			T:              section,
			PortfolioValue: pv,
			CostBasis:      cost,
			NetDeposits:    st.netDeposits.InexactFloat64(),
			Cash:           cash,
		})
	}
	return points, st.skipped
}

// mergeEvents orders trades then wallet movements by time. Ties keep input
// order, so a trade precedes a wallet movement at the same instant.
func mergeEvents(trades []models.Trade, walletTx []models.WalletTransaction) []event {
	events := make([]event, 0, len(trades)+len(walletTx))
	for i := range trades {
		events = append(events, event{at: trades[i].Timestamp, trade: &trades[i]})
	}
	for i := range walletTx {
		events = append(events, event{at: walletTx[i].Timestamp, wallet: &walletTx[i]})
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].at.Before(events[j].at) })
	return events
}

func (st *replayState) apply(e event) {
	if e.wallet != nil {
		signed := e.wallet.SignedAmount()
		st.cash = st.cash.Add(signed)
		st.netDeposits = st.netDeposits.Add(signed)
		return
	}

	tr := e.trade
	next, err := ledger.ApplyTrade(st.positions[tr.Symbol], *tr)
	if err != nil {
		st.skipped++
		return
	}
	st.positions[tr.Symbol] = next

	if tr.Action == models.TradeBuy {
		st.cash = st.cash.Sub(tr.Amount())
	} else {
		st.cash = st.cash.Add(tr.Amount())
	}
}

// value sums open holdings at section prices in symbol order so the float
// result does not depend on map iteration.
func (st *replayState) value(section time.Time, history map[string][]models.PriceSample) (float64, float64) {
	symbols := make([]string, 0, len(st.positions))
	for sym, p := range st.positions {
		if p.IsOpen() {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	var pv, cost float64
	for _, sym := range symbols {
		p := st.positions[sym]
		c := p.TotalCost.InexactFloat64()
		cost += c
		if price, _, ok := SampleAt(history[sym], section, ForwardThenBackward); ok {
			pv += p.TotalShares.InexactFloat64() * price
		} else {
			pv += c
		}
	}
	return pv, cost
}
