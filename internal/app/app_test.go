package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// --- in-memory storage ---

type memLedger struct {
	mu        sync.Mutex
	wallets   map[string]models.Wallet
	positions map[string]map[string]models.Position
	trades    map[string][]models.Trade
	walletTx  map[string][]models.WalletTransaction
}

func newMemLedger() *memLedger {
	return &memLedger{
		wallets:   map[string]models.Wallet{},
		positions: map[string]map[string]models.Position{},
		trades:    map[string][]models.Trade{},
		walletTx:  map[string][]models.WalletTransaction{},
	}
}

func (m *memLedger) LoadPositions(_ context.Context, userID string) ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Position{}
	for _, p := range m.positions[userID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *memLedger) LoadTrades(_ context.Context, userID string) ([]models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Trade(nil), m.trades[userID]...), nil
}

func (m *memLedger) LoadWalletTransactions(_ context.Context, userID string) ([]models.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.WalletTransaction(nil), m.walletTx[userID]...), nil
}

func (m *memLedger) GetWallet(_ context.Context, userID string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.wallets[userID]
	w.UserID = userID
	return &w, nil
}

func (m *memLedger) ExecuteTradeAtomic(_ context.Context, userID, symbol string, fn interfaces.TradeFunc) (*models.TradeOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := models.LedgerState{Wallet: m.wallets[userID], Position: m.positions[userID][symbol]}
	state.Position.Symbol = symbol
	trade, err := fn(&state)
	if err != nil {
		return nil, err
	}
	state.Wallet.Version++
	trade.Seq = state.Wallet.Version
	m.wallets[userID] = state.Wallet
	if m.positions[userID] == nil {
		m.positions[userID] = map[string]models.Position{}
	}
	m.positions[userID][symbol] = state.Position
	m.trades[userID] = append(m.trades[userID], *trade)
	return &models.TradeOutcome{Position: state.Position, WalletBalance: state.Wallet.Balance, Transaction: *trade}, nil
}

func (m *memLedger) ApplyWalletTransaction(_ context.Context, userID string, fn interfaces.WalletFunc) (*models.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.wallets[userID]
	tx, err := fn(&w)
	if err != nil {
		return nil, err
	}
	w.Version++
	tx.Seq = w.Version
	m.wallets[userID] = w
	m.walletTx[userID] = append(m.walletTx[userID], *tx)
	return tx, nil
}

func (m *memLedger) ReplacePositions(_ context.Context, userID string, positions []models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[userID] = map[string]models.Position{}
	for _, p := range positions {
		m.positions[userID][p.Symbol] = p
	}
	return nil
}

func (m *memLedger) ListUserIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.wallets))
	for id := range m.wallets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type memSnapshots struct {
	mu    sync.Mutex
	saved []models.PortfolioSnapshot
}

func (m *memSnapshots) SaveSnapshot(_ context.Context, snap *models.PortfolioSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, *snap)
	return nil
}

func (m *memSnapshots) LoadSnapshots(_ context.Context, _ string, _, _ time.Time) ([]models.PortfolioSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PortfolioSnapshot(nil), m.saved...), nil
}

func (m *memSnapshots) EarliestSnapshot(context.Context, string) (*time.Time, error) { return nil, nil }

func (m *memSnapshots) LatestSnapshot(context.Context, string) (*models.PortfolioSnapshot, error) {
	return nil, nil
}

func (m *memSnapshots) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type memPrices struct {
	latest map[string]models.PriceSample
}

func (m *memPrices) SavePriceSamples(_ context.Context, symbol string, samples []models.PriceSample) (int, error) {
	for _, p := range samples {
		m.latest[symbol] = p
	}
	return len(samples), nil
}

func (m *memPrices) LoadPriceSamples(_ context.Context, symbol string, _, _ time.Time) ([]models.PriceSample, error) {
	if p, ok := m.latest[symbol]; ok {
		return []models.PriceSample{p}, nil
	}
	return nil, nil
}

func (m *memPrices) LatestPriceSample(_ context.Context, symbol string) (*models.PriceSample, error) {
	if p, ok := m.latest[symbol]; ok {
		return &p, nil
	}
	return nil, nil
}

type memStorage struct {
	ledger    *memLedger
	snapshots *memSnapshots
	prices    *memPrices
	closed    atomic.Bool
}

func newMemStorage() *memStorage {
	return &memStorage{
		ledger:    newMemLedger(),
		snapshots: &memSnapshots{},
		prices:    &memPrices{latest: map[string]models.PriceSample{}},
	}
}

func (m *memStorage) LedgerStore() interfaces.LedgerStore     { return m.ledger }
func (m *memStorage) SnapshotStore() interfaces.SnapshotStore { return m.snapshots }
func (m *memStorage) PriceStore() interfaces.PriceStore       { return m.prices }
func (m *memStorage) Backend() string                         { return "memory" }
func (m *memStorage) Close() error {
	m.closed.Store(true)
	return nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// --- tests ---

func TestApp_TradeRecordsSnapshotOnClose(t *testing.T) {
	sm := newMemStorage()
	cfg := common.NewDefaultConfig()
	cfg.Portfolio.SnapshotMinInterval = "1ns"
	a, err := New(cfg, common.NewSilentLogger(), sm)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = a.QuoteService.Ingest(ctx, "AAPL", []models.PriceSample{{T: time.Now().UTC(), C: 110}})
	require.NoError(t, err)

	_, err = a.LedgerService.Deposit(ctx, "u1", models.WalletInput{Amount: d("1000")})
	require.NoError(t, err)
	_, err = a.LedgerService.ExecuteTrade(ctx, "u1", models.TradeInput{Symbol: "aapl", Action: models.TradeBuy, Price: d("100"), Quantity: d("5")})
	require.NoError(t, err)

	a.Close()

	assert.True(t, sm.closed.Load())
	require.GreaterOrEqual(t, sm.snapshots.count(), 1, "ledger change should record a snapshot")
	// revaluations run concurrently, so look for the post-trade value anywhere
	var found *models.PortfolioSnapshot
	for i := range sm.snapshots.saved {
		if sm.snapshots.saved[i].TPV.Equal(d("550")) {
			found = &sm.snapshots.saved[i]
		}
	}
	require.NotNil(t, found, "no snapshot valued the trade at the ingested price")
	assert.Equal(t, "u1", found.UserID)
	assert.True(t, found.CostBasis.Equal(d("500")))
}

func TestApp_TimeseriesReplaysLedger(t *testing.T) {
	sm := newMemStorage()
	a, err := New(common.NewDefaultConfig(), common.NewSilentLogger(), sm)
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	_, err = a.LedgerService.Deposit(ctx, "u1", models.WalletInput{Amount: d("1000")})
	require.NoError(t, err)
	_, err = a.LedgerService.ExecuteTrade(ctx, "u1", models.TradeInput{Symbol: "MSFT", Action: models.TradeBuy, Price: d("100"), Quantity: d("2")})
	require.NoError(t, err)

	resp, err := a.TimeseriesService.GetTimeseries(ctx, "u1", "1D", "")
	require.NoError(t, err)
	assert.Equal(t, "1D", resp.Range)
	require.NotEmpty(t, resp.Series)
	// no price history: holdings are valued at cost
	assert.Equal(t, 200.0, resp.Totals.CostBasis)
	assert.Equal(t, 200.0, resp.Totals.TPV)
}

type stubValuation struct {
	mu    sync.Mutex
	users []string
	fail  string
}

func (s *stubValuation) Current(context.Context, string) (*models.MarkToMarket, error) {
	return &models.MarkToMarket{}, nil
}

func (s *stubValuation) Revalue(_ context.Context, userID string) (*models.MarkToMarket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, userID)
	if userID == s.fail {
		return nil, errors.New("boom")
	}
	return &models.MarkToMarket{}, nil
}

func TestRevalueJob_VisitsEveryUser(t *testing.T) {
	ledger := newMemLedger()
	ledger.wallets["b"] = models.Wallet{}
	ledger.wallets["a"] = models.Wallet{}
	ledger.wallets["c"] = models.Wallet{}
	val := &stubValuation{fail: "b"}

	job := &revalueJob{ledger: ledger, valuation: val, logger: common.NewSilentLogger()}
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, val.users)
}

func TestRevalueJob_StopsOnCancel(t *testing.T) {
	ledger := newMemLedger()
	ledger.wallets["a"] = models.Wallet{}
	val := &stubValuation{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := &revalueJob{ledger: ledger, valuation: val, logger: common.NewSilentLogger()}
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Empty(t, val.users)
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	s := NewScheduler(common.NewSilentLogger())
	err := s.AddJob("not a schedule", &revalueJob{})
	assert.Error(t, err)
}

func TestStartScheduler_Disabled(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Scheduler.Enabled = false
	a, err := New(cfg, common.NewSilentLogger(), newMemStorage())
	require.NoError(t, err)
	require.NoError(t, a.StartScheduler())
	assert.Nil(t, a.scheduler)
	a.Close()
}

func TestResolveConfigPath(t *testing.T) {
	assert.Equal(t, "explicit.toml", ResolveConfigPath("explicit.toml"))
	t.Setenv("FOLIO_CONFIG", "/etc/folio.toml")
	assert.Equal(t, "/etc/folio.toml", ResolveConfigPath(""))
}
