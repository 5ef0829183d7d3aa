// Package ledger executes trades and wallet movements against the ledger store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Service implements interfaces.LedgerService.
type Service struct {
	store     interfaces.LedgerStore
	logger    *common.Logger
	now       func() time.Time
	listeners []interfaces.LedgerListener
}

// NewService creates a ledger service.
func NewService(store interfaces.LedgerStore, logger *common.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// AddListener registers l to be told about committed ledger writes.
func (s *Service) AddListener(l interfaces.LedgerListener) {
	s.listeners = append(s.listeners, l)
}

// ExecuteTrade validates the request, then applies it inside the store's
// atomic transaction. Business-rule failures come back as *TradeError.
func (s *Service) ExecuteTrade(ctx context.Context, userID string, input models.TradeInput) (*models.TradeOutcome, error) {
	input.Symbol = NormalizeSymbol(input.Symbol)
	input.Action = models.TradeAction(strings.ToLower(string(input.Action)))
	if err := ValidateTrade(input); err != nil {
		return nil, err
	}

	at := s.now().UTC()
	outcome, err := s.store.ExecuteTradeAtomic(ctx, userID, input.Symbol, func(state *models.LedgerState) (*models.Trade, error) {
		trade := models.Trade{
			ID:        common.NewID(common.TradeIDPrefix),
			UserID:    userID,
			Symbol:    input.Symbol,
			Action:    input.Action,
			Price:     input.Price,
			Quantity:  input.Quantity,
			Timestamp: at,
			Note:      input.Note,
		}
		amount := trade.Amount()

		if trade.Action == models.TradeBuy && amount.GreaterThan(state.Wallet.Balance) {
			return nil, newTradeError(CodeInsufficientFunds,
				"buy of %s costs %s, balance is %s", trade.Symbol, amount.StringFixed(2), state.Wallet.Balance.StringFixed(2))
		}

		pos, err := ApplyTrade(state.Position, trade)
		if err != nil {
			return nil, err
		}

		if trade.Action == models.TradeBuy {
			state.Wallet.Balance = state.Wallet.Balance.Sub(amount)
		} else {
			state.Wallet.Balance = state.Wallet.Balance.Add(amount)
		}
		state.Position = pos
		return &trade, nil
	})
	if err != nil {
		var te *TradeError
		if errors.As(err, &te) {
			s.logger.Info().
				Str("user", userID).
				Str("symbol", input.Symbol).
				Str("code", string(te.Code)).
				Msg("Trade rejected")
			return nil, te
		}
		return nil, fmt.Errorf("failed to execute trade: %w", err)
	}

	s.logger.Info().
		Str("user", userID).
		Str("symbol", outcome.Transaction.Symbol).
		Str("action", string(outcome.Transaction.Action)).
		Str("quantity", outcome.Transaction.Quantity.String()).
		Str("price", outcome.Transaction.Price.String()).
		Str("balance", outcome.WalletBalance.String()).
		Msg("Trade executed")

	s.notify(ctx, userID)
	return outcome, nil
}

// Deposit adds cash to the wallet.
func (s *Service) Deposit(ctx context.Context, userID string, input models.WalletInput) (*models.WalletTransaction, error) {
	return s.moveCash(ctx, userID, models.WalletDeposit, input)
}

// Withdraw removes cash from the wallet; it fails with insufficient_funds
// when the amount exceeds the balance.
func (s *Service) Withdraw(ctx context.Context, userID string, input models.WalletInput) (*models.WalletTransaction, error) {
	return s.moveCash(ctx, userID, models.WalletWithdraw, input)
}

func (s *Service) moveCash(ctx context.Context, userID string, action models.WalletAction, input models.WalletInput) (*models.WalletTransaction, error) {
	if !input.Amount.IsPositive() {
		return nil, newTradeError(CodeInvalidAmount, "amount must be positive")
	}
	method := strings.TrimSpace(input.Method)
	if method == "" {
		method = models.DefaultWalletMethod
	}

	at := s.now().UTC()
	tx, err := s.store.ApplyWalletTransaction(ctx, userID, func(wallet *models.Wallet) (*models.WalletTransaction, error) {
		if action == models.WalletWithdraw {
			if input.Amount.GreaterThan(wallet.Balance) {
				return nil, newTradeError(CodeInsufficientFunds,
					"withdrawal of %s exceeds balance %s", input.Amount.StringFixed(2), wallet.Balance.StringFixed(2))
			}
			wallet.Balance = wallet.Balance.Sub(input.Amount)
		} else {
			wallet.Balance = wallet.Balance.Add(input.Amount)
		}
		return &models.WalletTransaction{
			ID:               common.NewID(common.WalletTxIDPrefix),
			UserID:           userID,
			Action:           action,
			Amount:           input.Amount,
			Timestamp:        at,
			Method:           method,
			ResultingBalance: wallet.Balance,
		}, nil
	})
	if err != nil {
		var te *TradeError
		if errors.As(err, &te) {
			return nil, te
		}
		return nil, fmt.Errorf("failed to apply %s: %w", action, err)
	}

	s.logger.Info().
		Str("user", userID).
		Str("action", string(action)).
		Str("amount", tx.Amount.String()).
		Str("balance", tx.ResultingBalance.String()).
		Msg("Wallet updated")

	s.notify(ctx, userID)
	return tx, nil
}

// GetPositions returns the open positions of a user.
func (s *Service) GetPositions(ctx context.Context, userID string) ([]models.Position, error) {
	all, err := s.store.LoadPositions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	open := make([]models.Position, 0, len(all))
	for _, p := range all {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	return open, nil
}

func (s *Service) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	w, err := s.store.GetWallet(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	return w, nil
}

func (s *Service) ListTrades(ctx context.Context, userID string) ([]models.Trade, error) {
	trades, err := s.store.LoadTrades(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}
	return trades, nil
}

func (s *Service) ListWalletTransactions(ctx context.Context, userID string) ([]models.WalletTransaction, error) {
	txs, err := s.store.LoadWalletTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet transactions: %w", err)
	}
	return txs, nil
}

// ResyncPositions replays the full trade history and replaces the stored
// positions with the result.
func (s *Service) ResyncPositions(ctx context.Context, userID string) ([]models.Position, error) {
	start := time.Now()

	trades, err := s.store.LoadTrades(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}

	rebuilt, skipped := ReplayPositions(trades)
	for _, tr := range skipped {
		s.logger.Warn().
			Str("user", userID).
			Str("trade", tr.ID).
			Str("symbol", tr.Symbol).
			Msg("Resync: trade skipped, sell exceeds replayed shares")
	}

	positions := SortedPositions(rebuilt)
	for i := range positions {
		positions[i].UserID = userID
	}
	if err := s.store.ReplacePositions(ctx, userID, positions); err != nil {
		return nil, fmt.Errorf("failed to replace positions: %w", err)
	}

	s.logger.Info().
		Str("user", userID).
		Int("trades", len(trades)).
		Int("positions", len(positions)).
		Dur("elapsed", time.Since(start)).
		Msg("Positions resynced")

	s.notify(ctx, userID)
	return positions, nil
}

func (s *Service) notify(ctx context.Context, userID string) {
	for _, l := range s.listeners {
		l.LedgerChanged(ctx, userID)
	}
}

// Compile-time check
var _ interfaces.LedgerService = (*Service)(nil)
