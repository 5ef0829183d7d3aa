package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/ledger"
	"github.com/bobmcallan/folio/internal/services/quote"
)

// writeLedgerError maps service errors onto the HTTP contract: validation
// failures are 400, insufficient funds or shares 422, anything else 500.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	var te *ledger.TradeError
	if errors.As(err, &te) {
		status := http.StatusUnprocessableEntity
		if te.IsValidation() {
			status = http.StatusBadRequest
		}
		WriteErrorWithCode(w, status, string(te.Code), te.Error())
		return
	}
	if errors.Is(err, quote.ErrInvalidSample) {
		WriteErrorWithCode(w, http.StatusBadRequest, "invalid_sample", err.Error())
		return
	}
	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	WriteErrorWithCode(w, http.StatusInternalServerError, "internal_error", "Internal server error")
}

// --- Chart ---

// handleTimeseries handles GET /timeseries?range=&gran=.
func (s *Server) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	resp, err := s.app.TimeseriesService.GetTimeseries(r.Context(), userID(r), q.Get("range"), q.Get("gran"))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// handleTimeseriesChart handles GET /api/timeseries/chart.png?range=.
func (s *Server) handleTimeseriesChart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	png, err := s.app.TimeseriesService.RenderChart(r.Context(), userID(r), r.URL.Query().Get("range"))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// --- Ledger ---

// handleTrade handles POST /trade.
func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var input models.TradeInput
	if !DecodeJSON(w, r, &input) {
		return
	}
	input.Action = models.TradeAction(strings.ToLower(string(input.Action)))

	outcome, err := s.app.LedgerService.ExecuteTrade(r.Context(), userID(r), input)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleTradeList(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	trades, err := s.app.LedgerService.ListTrades(r.Context(), userID(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	positions, err := s.app.LedgerService.GetPositions(r.Context(), userID(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if positions == nil {
		positions = []models.Position{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

// handlePositionsResync rebuilds positions from the trade history.
func (s *Server) handlePositionsResync(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	positions, err := s.app.LedgerService.ResyncPositions(r.Context(), userID(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if positions == nil {
		positions = []models.Position{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

// --- Wallet ---

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	wallet, err := s.app.LedgerService.GetWallet(r.Context(), userID(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleWalletDeposit(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var input models.WalletInput
	if !DecodeJSON(w, r, &input) {
		return
	}
	tx, err := s.app.LedgerService.Deposit(r.Context(), userID(r), input)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, tx)
}

func (s *Server) handleWalletWithdraw(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var input models.WalletInput
	if !DecodeJSON(w, r, &input) {
		return
	}
	tx, err := s.app.LedgerService.Withdraw(r.Context(), userID(r), input)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, tx)
}

func (s *Server) handleWalletTransactions(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	txs, err := s.app.LedgerService.ListWalletTransactions(r.Context(), userID(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if txs == nil {
		txs = []models.WalletTransaction{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

// --- Valuation ---

// handlePortfolio returns the live mark-to-market without recording anything.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	mtm, err := s.app.ValuationService.Current(r.Context(), userID(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, mtm)
}

// handleSnapshots serves GET (series for ?range=) and POST (record now).
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		series, err := s.app.SnapshotService.GetSeries(r.Context(), userID(r), r.URL.Query().Get("range"))
		if err != nil {
			s.writeLedgerError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, series)
	case http.MethodPost:
		user := userID(r)
		mtm, err := s.app.ValuationService.Current(r.Context(), user)
		if err != nil {
			s.writeLedgerError(w, r, err)
			return
		}
		scheduled := s.app.SnapshotService.Offer(user, mtm, true)
		WriteJSON(w, http.StatusAccepted, map[string]interface{}{
			"recorded":  scheduled,
			"valuation": mtm,
		})
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleSnapshotLatest(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	snap, err := s.app.SnapshotService.Latest(r.Context(), userID(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if snap == nil {
		WriteErrorWithCode(w, http.StatusNotFound, "not_found", "No snapshots recorded")
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// --- Prices ---

type priceIngestRequest struct {
	Symbol  string               `json:"symbol"`
	Samples []models.PriceSample `json:"samples"`
}

// handlePrices handles POST /api/prices, the feed for the store-backed price source.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req priceIngestRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	start := time.Now()
	n, err := s.app.QuoteService.Ingest(r.Context(), req.Symbol, req.Samples)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.logger.Debug().Str("symbol", req.Symbol).Int("written", n).Dur("elapsed", time.Since(start)).Msg("Prices ingested")
	WriteJSON(w, http.StatusOK, map[string]interface{}{"symbol": ledger.NormalizeSymbol(req.Symbol), "written": n})
}
