// Package api is the read-only ops surface over the fleet's tables. It
// mutates nothing; operations go through the treasury and the pipeline.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/kjannette/ethmatic-backend/internal/repository"
)

const maxQueryLimit = 1000

type Server struct {
	pool        *pgxpool.Pool
	agentRepo   *repository.AgentRepo
	tradeRepo   *repository.TradeRepo
	ledgerRepo  *repository.LedgerRepo
	pendingRepo *repository.PendingTxnRepo
	priceRepo   *repository.PriceRepo
	httpServer  *http.Server
	apiKey      string
	log         zerolog.Logger
}

func NewServer(pool *pgxpool.Pool, port int, apiKey, corsOrigin string, log zerolog.Logger) *Server {
	s := &Server{
		pool:        pool,
		agentRepo:   repository.NewAgentRepo(pool),
		tradeRepo:   repository.NewTradeRepo(pool),
		ledgerRepo:  repository.NewLedgerRepo(pool),
		pendingRepo: repository.NewPendingTxnRepo(pool),
		priceRepo:   repository.NewPriceRepo(pool),
		apiKey:      apiKey,
		log:         log.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()

	// Agent routes
	mux.HandleFunc("GET /v1/agents", s.handleAgents)
	mux.HandleFunc("GET /v1/agents/{address}", s.handleAgent)

	// Trade routes
	mux.HandleFunc("GET /v1/trades/recent", s.handleRecentTrades)
	mux.HandleFunc("GET /v1/trades/{uuid}", s.handleTrade)

	// Ledger routes
	mux.HandleFunc("GET /v1/ledger", s.handleLedger)
	mux.HandleFunc("GET /v1/ledger/agent/{address}", s.handleLedgerByAgent)

	// Pending queue
	mux.HandleFunc("GET /v1/pending", s.handlePending)

	// Price routes
	mux.HandleFunc("GET /v1/prices/latest", s.handleLatestPrices)
	mux.HandleFunc("GET /v1/prices/history", s.handlePriceHistory)

	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	handler := s.authMiddleware(corsMiddleware(mux, corsOrigin))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.log.Info().
		Str("addr", s.httpServer.Addr).
		Bool("auth", s.apiKey != "").
		Msg("REST API listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- helpers ---

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- health ---

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	Database string `json:"database"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "connected"
	if err := s.pool.Ping(r.Context()); err != nil {
		dbStatus = "disconnected"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  healthServices{Database: dbStatus},
	})
}
