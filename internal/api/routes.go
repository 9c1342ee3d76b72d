package api

import (
	"net/http"

	"github.com/kjannette/ethmatic-backend/internal/models"
	"github.com/kjannette/ethmatic-backend/internal/price"
)

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.agentRepo.LoadAll(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("fetch agents")
		writeError(w, http.StatusInternalServerError, "failed to fetch agents")
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agentRepo.Load(r.Context(), r.PathValue("address"))
	if err != nil {
		s.log.Error().Err(err).Msg("fetch agent")
		writeError(w, http.StatusInternalServerError, "failed to fetch agent")
		return
	}
	if agent == nil {
		writeError(w, http.StatusNotFound, "no such agent")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleRecentTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.tradeRepo.GetRecent(r.Context(), parseLimit(r, 100))
	if err != nil {
		s.log.Error().Err(err).Msg("fetch trades")
		writeError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := s.tradeRepo.Get(r.Context(), r.PathValue("uuid"))
	if err != nil {
		s.log.Error().Err(err).Msg("fetch trade")
		writeError(w, http.StatusInternalServerError, "failed to fetch trade")
		return
	}
	if trade == nil {
		writeError(w, http.StatusNotFound, "no such trade")
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledgerRepo.GetRecent(r.Context(), parseLimit(r, 200))
	if err != nil {
		s.log.Error().Err(err).Msg("fetch ledger")
		writeError(w, http.StatusInternalServerError, "failed to fetch ledger")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleLedgerByAgent(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledgerRepo.GetByAgent(r.Context(), r.PathValue("address"), parseLimit(r, 200))
	if err != nil {
		s.log.Error().Err(err).Msg("fetch agent ledger")
		writeError(w, http.StatusInternalServerError, "failed to fetch ledger")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	rows, err := s.pendingRepo.LoadPending(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("fetch pending queue")
		writeError(w, http.StatusInternalServerError, "failed to fetch pending transactions")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func trackedPairs() []string {
	return []string{price.TradingPair, price.PairWMATIC, price.PairWETH}
}

func (s *Server) handleLatestPrices(w http.ResponseWriter, r *http.Request) {
	out := make([]*models.PriceRow, 0, 3)
	for _, pair := range trackedPairs() {
		row, err := s.priceRepo.GetRow(r.Context(), pair)
		if err != nil {
			s.log.Error().Err(err).Str("pair", pair).Msg("fetch price row")
			writeError(w, http.StatusInternalServerError, "failed to fetch prices")
			return
		}
		if row != nil {
			out = append(out, row)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Pairs contain a slash, so the pair rides in a query parameter instead of
// the path.
func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("pair")
	known := false
	for _, p := range trackedPairs() {
		if p == pair {
			known = true
			break
		}
	}
	if !known {
		writeError(w, http.StatusBadRequest, "unknown pair")
		return
	}

	points, err := s.priceRepo.GetHistory(r.Context(), pair, parseLimit(r, 500))
	if err != nil {
		s.log.Error().Err(err).Str("pair", pair).Msg("fetch price history")
		writeError(w, http.StatusInternalServerError, "failed to fetch history")
		return
	}
	writeJSON(w, http.StatusOK, points)
}
