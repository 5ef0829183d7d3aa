package surrealdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// maxWriteAttempts bounds retries after a cross-process version conflict.
const maxWriteAttempts = 3

// versionGuard aborts the surrounding transaction unless the wallet is still
// at $prev_version. A missing wallet counts as version 0.
const versionGuard = `LET $current = (SELECT VALUE version FROM $wid)[0] ?? 0;
IF $current != $prev_version { THROW "` + versionConflictMarker + `" };`

// LedgerStore implements interfaces.LedgerStore using SurrealDB.
type LedgerStore struct {
	db     *surrealdb.DB
	logger *common.Logger
	locks  *keyedMutex
	now    func() time.Time
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(db *surrealdb.DB, logger *common.Logger) *LedgerStore {
	return &LedgerStore{db: db, logger: logger, locks: newKeyedMutex(), now: time.Now}
}

func walletRID(userID string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("wallet", userID)
}

func positionKey(userID, symbol string) string {
	return userID + "|" + symbol
}

func (s *LedgerStore) LoadPositions(ctx context.Context, userID string) ([]models.Position, error) {
	sql := "SELECT " + positionSelectFields + " FROM position WHERE user_id = $user_id ORDER BY symbol ASC"
	results, err := surrealdb.Query[[]positionRecord](ctx, s.db, sql, map[string]any{"user_id": userID})
	if err != nil {
		return nil, wrapReadErr("failed to load positions", err)
	}
	out := make([]models.Position, 0)
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			out = append(out, r.toModel())
		}
	}
	return out, nil
}

func (s *LedgerStore) LoadTrades(ctx context.Context, userID string) ([]models.Trade, error) {
	sql := "SELECT " + tradeSelectFields + " FROM trade WHERE user_id = $user_id ORDER BY timestamp ASC, seq ASC"
	results, err := surrealdb.Query[[]tradeRecord](ctx, s.db, sql, map[string]any{"user_id": userID})
	if err != nil {
		return nil, wrapReadErr("failed to load trades", err)
	}
	out := make([]models.Trade, 0)
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			out = append(out, r.toModel())
		}
	}
	return out, nil
}

func (s *LedgerStore) LoadWalletTransactions(ctx context.Context, userID string) ([]models.WalletTransaction, error) {
	sql := "SELECT " + walletTxSelectFields + " FROM wallet_tx WHERE user_id = $user_id ORDER BY timestamp ASC, seq ASC"
	results, err := surrealdb.Query[[]walletTxRecord](ctx, s.db, sql, map[string]any{"user_id": userID})
	if err != nil {
		return nil, wrapReadErr("failed to load wallet transactions", err)
	}
	out := make([]models.WalletTransaction, 0)
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			out = append(out, r.toModel())
		}
	}
	return out, nil
}

// GetWallet returns the user's wallet, or an empty one at version 0.
func (s *LedgerStore) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	sql := "SELECT " + walletSelectFields + " FROM $wid"
	results, err := surrealdb.Query[[]walletRecord](ctx, s.db, sql, map[string]any{"wid": walletRID(userID)})
	if err != nil {
		if isNotFoundError(err) {
			return &models.Wallet{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return &models.Wallet{UserID: userID}, nil
	}
	w := (*results)[0].Result[0].toModel()
	return &w, nil
}

func (s *LedgerStore) getPosition(ctx context.Context, userID, symbol string) (models.Position, error) {
	sql := "SELECT " + positionSelectFields + " FROM $pid"
	vars := map[string]any{"pid": surrealmodels.NewRecordID("position", positionKey(userID, symbol))}
	results, err := surrealdb.Query[[]positionRecord](ctx, s.db, sql, vars)
	if err != nil && !isNotFoundError(err) {
		return models.Position{}, fmt.Errorf("failed to get position: %w", err)
	}
	if err != nil || results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.Position{UserID: userID, Symbol: symbol}, nil
	}
	return (*results)[0].Result[0].toModel(), nil
}

// ExecuteTradeAtomic reads wallet and position, runs fn, and writes wallet,
// position and trade in one transaction guarded by the wallet version.
func (s *LedgerStore) ExecuteTradeAtomic(ctx context.Context, userID, symbol string, fn interfaces.TradeFunc) (*models.TradeOutcome, error) {
	release := s.locks.Lock(userID)
	defer release()

	for attempt := 1; ; attempt++ {
		out, err := s.tryTrade(ctx, userID, symbol, fn)
		if err == nil || !errors.Is(err, errVersionConflict) || attempt == maxWriteAttempts {
			return out, err
		}
		s.logger.Debug().Str("user_id", userID).Int("attempt", attempt).Msg("Trade write conflicted, retrying")
	}
}

func (s *LedgerStore) tryTrade(ctx context.Context, userID, symbol string, fn interfaces.TradeFunc) (*models.TradeOutcome, error) {
	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	pos, err := s.getPosition(ctx, userID, symbol)
	if err != nil {
		return nil, err
	}

	prev := wallet.Version
	state := models.LedgerState{Wallet: *wallet, Position: pos}
	trade, err := fn(&state)
	if err != nil {
		return nil, err
	}

	now := s.now()
	state.Wallet.UserID = userID
	state.Wallet.Version = prev + 1
	state.Wallet.UpdatedAt = now
	state.Position.UserID = userID
	state.Position.Symbol = symbol
	trade.UserID = userID
	trade.Seq = state.Wallet.Version

	sql := "BEGIN TRANSACTION;\n" + versionGuard + `
UPSERT $wid CONTENT $wallet;
UPSERT $pid CONTENT $position;
CREATE $tid CONTENT $trade;
COMMIT TRANSACTION;`
	vars := map[string]any{
		"wid":          walletRID(userID),
		"pid":          surrealmodels.NewRecordID("position", positionKey(userID, symbol)),
		"tid":          surrealmodels.NewRecordID("trade", trade.ID),
		"prev_version": prev,
		"wallet":       walletFromModel(state.Wallet),
		"position":     positionFromModel(state.Position),
		"trade":        tradeFromModel(*trade),
	}

	if err := s.exec(ctx, sql, vars); err != nil {
		return nil, fmt.Errorf("failed to commit trade: %w", err)
	}

	return &models.TradeOutcome{
		Position:      state.Position,
		WalletBalance: state.Wallet.Balance,
		Transaction:   *trade,
	}, nil
}

// ApplyWalletTransaction runs fn against the wallet and appends the movement.
func (s *LedgerStore) ApplyWalletTransaction(ctx context.Context, userID string, fn interfaces.WalletFunc) (*models.WalletTransaction, error) {
	release := s.locks.Lock(userID)
	defer release()

	for attempt := 1; ; attempt++ {
		tx, err := s.tryWallet(ctx, userID, fn)
		if err == nil || !errors.Is(err, errVersionConflict) || attempt == maxWriteAttempts {
			return tx, err
		}
		s.logger.Debug().Str("user_id", userID).Int("attempt", attempt).Msg("Wallet write conflicted, retrying")
	}
}

func (s *LedgerStore) tryWallet(ctx context.Context, userID string, fn interfaces.WalletFunc) (*models.WalletTransaction, error) {
	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	prev := wallet.Version
	w := *wallet
	tx, err := fn(&w)
	if err != nil {
		return nil, err
	}

	w.UserID = userID
	w.Version = prev + 1
	w.UpdatedAt = s.now()
	tx.UserID = userID
	tx.Seq = w.Version

	sql := "BEGIN TRANSACTION;\n" + versionGuard + `
UPSERT $wid CONTENT $wallet;
CREATE $xid CONTENT $tx;
COMMIT TRANSACTION;`
	vars := map[string]any{
		"wid":          walletRID(userID),
		"xid":          surrealmodels.NewRecordID("wallet_tx", tx.ID),
		"prev_version": prev,
		"wallet":       walletFromModel(w),
		"tx":           walletTxFromModel(*tx),
	}

	if err := s.exec(ctx, sql, vars); err != nil {
		return nil, fmt.Errorf("failed to commit wallet transaction: %w", err)
	}
	return tx, nil
}

// ReplacePositions deletes the user's positions and writes the given set.
func (s *LedgerStore) ReplacePositions(ctx context.Context, userID string, positions []models.Position) error {
	release := s.locks.Lock(userID)
	defer release()

	sorted := append([]models.Position(nil), positions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	rows := make([]map[string]any, 0, len(sorted))
	for _, p := range sorted {
		p.UserID = userID
		rows = append(rows, map[string]any{
			"key":    positionKey(userID, p.Symbol),
			"record": positionFromModel(p),
		})
	}

	sql := `BEGIN TRANSACTION;
DELETE position WHERE user_id = $user_id;
FOR $row IN $rows { UPSERT type::record('position', $row.key) CONTENT $row.record; };
COMMIT TRANSACTION;`
	if err := s.exec(ctx, sql, map[string]any{"user_id": userID, "rows": rows}); err != nil {
		return fmt.Errorf("failed to replace positions: %w", err)
	}
	return nil
}

func (s *LedgerStore) ListUserIDs(ctx context.Context) ([]string, error) {
	results, err := surrealdb.Query[[]string](ctx, s.db, "SELECT VALUE user_id FROM wallet", nil)
	if err != nil {
		return nil, wrapReadErr("failed to list users", err)
	}
	out := make([]string, 0)
	if results != nil && len(*results) > 0 {
		out = append(out, (*results)[0].Result...)
	}
	sort.Strings(out)
	return out, nil
}

// exec runs a write query and maps the version guard onto errVersionConflict.
func (s *LedgerStore) exec(ctx context.Context, sql string, vars map[string]any) error {
	results, err := surrealdb.Query[any](ctx, s.db, sql, vars)
	if err == nil {
		err = checkResults(results)
	}
	if isVersionConflict(err) {
		return errVersionConflict
	}
	return err
}

// Compile-time check
var _ interfaces.LedgerStore = (*LedgerStore)(nil)
