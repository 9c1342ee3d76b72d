package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/kjannette/ethmatic-backend/internal/api"
	"github.com/kjannette/ethmatic-backend/internal/bus"
	"github.com/kjannette/ethmatic-backend/internal/chain"
	"github.com/kjannette/ethmatic-backend/internal/config"
	"github.com/kjannette/ethmatic-backend/internal/db"
	"github.com/kjannette/ethmatic-backend/internal/engine"
	"github.com/kjannette/ethmatic-backend/internal/metrics"
	"github.com/kjannette/ethmatic-backend/internal/models"
	"github.com/kjannette/ethmatic-backend/internal/notifications"
	"github.com/kjannette/ethmatic-backend/internal/price"
	"github.com/kjannette/ethmatic-backend/internal/repository"
	"github.com/kjannette/ethmatic-backend/internal/scheduler"
	"github.com/kjannette/ethmatic-backend/internal/secrets"
	"github.com/kjannette/ethmatic-backend/internal/treasury"
)

const banner = `
╔══════════════════════════════════════╗
║      ETHMATIC Agent Fleet v1.0       ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	// Database
	fmt.Printf("\n[DB] Connecting to %s:%d/%s ...\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
	pool, err := db.Connect(cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[DB] Connection failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		pool.Close()
		fmt.Println("[DB] Connection pool closed")
	}()

	if err := db.TestConnection(pool); err != nil {
		fmt.Fprintf(os.Stderr, "[DB] Test query failed: %v\n", err)
		os.Exit(1)
	}

	// Repos
	agentRepo := repository.NewAgentRepo(pool)
	tradeRepo := repository.NewTradeRepo(pool)
	priceRepo := repository.NewPriceRepo(pool)
	pendingRepo := repository.NewPendingTxnRepo(pool)
	ledgerRepo := repository.NewLedgerRepo(pool)
	errorRepo := repository.NewErrorRepo(pool)

	// Secrets (Vault when enabled, environment fallback)
	store, err := secrets.NewStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[SECRETS] Client init failed: %v\n", err)
		os.Exit(1)
	}
	blob, err := store.Load(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[SECRETS] Load failed: %v\n", err)
		os.Exit(1)
	}

	// Chain client
	rpcURL := fmt.Sprintf(cfg.RPCURLTemplate, blob.NetworkAlias, blob.RPCProjectID)
	client, err := chain.NewClient(rpcURL, blob.Mnemonic, cfg.ChainID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[CHAIN] Client init failed: %v\n", err)
		os.Exit(1)
	}
	oracle := chain.NewStationOracle(cfg.GasStationURL)

	// Message bus
	msgBus, err := bus.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[BUS] Redis connection failed: %v\n", err)
		os.Exit(1)
	}
	defer msgBus.Close()

	// Metrics + notifications
	m := metrics.New(prometheus.DefaultRegisterer)
	metrics.Serve(cfg.MetricsAddr, log)
	notify := notifications.NewSender(cfg.WebhookURL, cfg.BotName, log)

	// Pipeline stages
	refresher := price.NewRefresher(client, priceRepo, msgBus, m, log)
	signalEngine := engine.NewSignalEngine(agentRepo, tradeRepo, priceRepo, msgBus, oracle, m, notify, log)
	executor := engine.NewExecutor(agentRepo, tradeRepo, pendingRepo, errorRepo, client, oracle, m, log)
	reconciler := engine.NewReconciler(pendingRepo, tradeRepo, client, msgBus, m, log)
	closer := engine.NewCloser(agentRepo, tradeRepo, ledgerRepo, priceRepo, m, notify, log)
	vault := treasury.New(agentRepo, pendingRepo, msgBus, client, oracle, blob.TrustedWithdrawalAddr, log)

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Bus consumers
	msgBus.Subscribe(ctx, bus.ChannelTradeRequests, func(ctx context.Context, body []byte) error {
		var req models.TradeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return fmt.Errorf("decode trade request: %w", err)
		}
		return executor.HandleTradeRequest(ctx, req)
	})
	msgBus.Subscribe(ctx, bus.ChannelTxnReceipts, func(ctx context.Context, body []byte) error {
		var rc models.TxnReceipt
		if err := json.Unmarshal(body, &rc); err != nil {
			return fmt.Errorf("decode receipt: %w", err)
		}
		return closer.HandleReceipt(ctx, rc)
	})
	msgBus.Subscribe(ctx, bus.ChannelRefills, func(ctx context.Context, body []byte) error {
		var req models.RefillRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return fmt.Errorf("decode refill request: %w", err)
		}
		return vault.Refill(ctx, req)
	})

	// 2. Scheduled stages
	sched := scheduler.New(log,
		scheduler.Job{
			Name:       "price-refresh",
			Interval:   time.Duration(cfg.RefreshIntervalSeconds) * time.Second,
			Run:        refresher.Refresh,
			RunAtStart: true,
		},
		scheduler.Job{
			Name:     "signal-cycle",
			Interval: time.Duration(cfg.SignalIntervalSeconds) * time.Second,
			Run:      signalEngine.RunCycle,
		},
		scheduler.Job{
			Name:     "settle-sweep",
			Interval: time.Duration(cfg.SettleIntervalSeconds) * time.Second,
			Run:      reconciler.Sweep,
		},
		scheduler.Job{
			Name:     "balance-refresh",
			Interval: 5 * time.Minute,
			Run:      vault.RefreshBalances,
		},
	)
	sched.Start()

	// 3. Ops API
	srv := api.NewServer(pool, cfg.APIPort, cfg.APIKey, cfg.CORSAllowOrigin, log)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "[API] Server error: %v\n", err)
			os.Exit(1)
		}
	}()

	fmt.Println("\nAll services started successfully")

	// Wait for shutdown signal
	<-ctx.Done()
	fmt.Println("\nShutting down gracefully...")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "[API] Shutdown error: %v\n", err)
	}
	fmt.Println("[API] Server closed")
	fmt.Println("Shutdown complete")
}
