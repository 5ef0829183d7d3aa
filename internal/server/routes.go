package server

import (
	"net/http"
	"time"

	"github.com/bobmcallan/folio/internal/common"
)

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)

	// Chart
	mux.HandleFunc("/timeseries", s.handleTimeseries)
	mux.HandleFunc("/api/timeseries", s.handleTimeseries)
	mux.HandleFunc("/api/timeseries/chart.png", s.handleTimeseriesChart)

	// Ledger
	mux.HandleFunc("/trade", s.handleTrade)
	mux.HandleFunc("/api/trade", s.handleTrade)
	mux.HandleFunc("/api/trades", s.handleTradeList)
	mux.HandleFunc("/api/positions/resync", s.handlePositionsResync)
	mux.HandleFunc("/api/positions", s.handlePositions)

	// Wallet
	mux.HandleFunc("/api/wallet/deposit", s.handleWalletDeposit)
	mux.HandleFunc("/api/wallet/withdraw", s.handleWalletWithdraw)
	mux.HandleFunc("/api/wallet/transactions", s.handleWalletTransactions)
	mux.HandleFunc("/api/wallet", s.handleWallet)

	// Valuation
	mux.HandleFunc("/api/portfolio", s.handlePortfolio)
	mux.HandleFunc("/api/snapshots/latest", s.handleSnapshotLatest)
	mux.HandleFunc("/api/snapshots", s.handleSnapshots)

	// Prices
	mux.HandleFunc("/api/prices", s.handlePrices)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, common.GetVersionInfo())
}
