package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/kjannette/ethmatic-backend/internal/bus"
	"github.com/kjannette/ethmatic-backend/internal/metrics"
	"github.com/kjannette/ethmatic-backend/internal/models"
	"github.com/kjannette/ethmatic-backend/internal/price"
)

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func smasAt(ma float64) []float64 {
	out := make([]float64, price.BucketCount)
	for i := range out {
		out[i] = ma
	}
	return out
}

func signalFixture(agent *models.Agent, currentPrice float64, oracle *fakeOracle) (*SignalEngine, *fakeAgents, *fakeTrades, *fakePub) {
	agents := newFakeAgents(agent)
	trades := newFakeTrades()
	prices := &fakePrices{row: &models.PriceRow{
		Pair:  price.TradingPair,
		Price: currentPrice,
		SMAs:  smasAt(100),
	}}
	pub := &fakePub{}
	e := NewSignalEngine(agents, trades, prices, pub, oracle, testMetrics(), &fakeNotifier{}, zerolog.Nop())
	return e, agents, trades, pub
}

func signalAgent() *models.Agent {
	return &models.Agent{
		AgentAddress: "0xagent",
		WalletIndex:  3,
		MAInitGain:   1.05,
		MADuration:   20,
		Side:         models.SideBuy,
		IsActive:     true,
	}
}

func TestRunCycleAddTrade(t *testing.T) {
	// ma=100 gain=1.05 => lower ≈ 95.24; price 94 triggers a BUY add.
	e, agents, trades, pub := signalFixture(signalAgent(), 94, cheapGas())

	if err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	trade := trades.single()
	if trade.Status != models.StatusPending {
		t.Fatalf("trade status = %s, want PENDING", trade.Status)
	}
	if trade.Side != models.SideBuy || trade.CurrentPrice != 94 {
		t.Fatalf("trade = %+v", trade)
	}

	agent, _ := agents.Load(context.Background(), "0xagent")
	if agent.OpenTradeID != trade.UUID {
		t.Fatalf("lock = %q, want trade uuid %q", agent.OpenTradeID, trade.UUID)
	}

	if len(pub.msgs) != 1 || pub.msgs[0].channel != bus.ChannelTradeRequests {
		t.Fatalf("published %+v, want one trade request", pub.msgs)
	}
	req := pub.msgs[0].payload.(models.TradeRequest)
	if req.UUID != trade.UUID || req.AgentAddress != "0xagent" {
		t.Fatalf("request = %+v", req)
	}
}

func TestRunCycleDropTrade(t *testing.T) {
	agent := signalAgent()
	agent.OpenTradeID = "held-uuid"
	e, agents, trades, pub := signalFixture(agent, 96, cheapGas())
	trades.rows["held-uuid"] = &models.Trade{UUID: "held-uuid", Status: models.StatusPending}

	if err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	reloaded, _ := agents.Load(context.Background(), "0xagent")
	if reloaded.OpenTradeID != "" {
		t.Fatalf("lock = %q, want released", reloaded.OpenTradeID)
	}
	if trades.rows["held-uuid"].Status != models.StatusDropped {
		t.Fatalf("trade status = %s, want DROPPED", trades.rows["held-uuid"].Status)
	}
	if len(pub.msgs) != 0 {
		t.Fatalf("published %+v, want nothing", pub.msgs)
	}
}

func TestRunCycleGasAbort(t *testing.T) {
	e, agents, trades, pub := signalFixture(signalAgent(), 94, spikedGas())

	err := e.RunCycle(context.Background())
	if !errors.Is(err, ErrGasTooHigh) {
		t.Fatalf("err = %v, want ErrGasTooHigh", err)
	}

	// The abort happens before any agent is evaluated.
	if len(trades.rows) != 0 || len(pub.msgs) != 0 {
		t.Fatalf("state touched during aborted cycle: %d trades, %d messages", len(trades.rows), len(pub.msgs))
	}
	agent, _ := agents.Load(context.Background(), "0xagent")
	if agent.OpenTradeID != "" {
		t.Fatalf("lock = %q, want untouched", agent.OpenTradeID)
	}
}

func TestRunCycleMissingPriceRowFatal(t *testing.T) {
	agents := newFakeAgents(signalAgent())
	trades := newFakeTrades()
	pub := &fakePub{}
	e := NewSignalEngine(agents, trades, &fakePrices{}, pub, cheapGas(), testMetrics(), &fakeNotifier{}, zerolog.Nop())

	if err := e.RunCycle(context.Background()); !errors.Is(err, ErrNoPriceRow) {
		t.Fatalf("err = %v, want ErrNoPriceRow", err)
	}
	if len(trades.rows) != 0 {
		t.Fatal("agents evaluated without a price row")
	}
}

func TestRunCyclePublishFailureRollsBack(t *testing.T) {
	e, agents, trades, pub := signalFixture(signalAgent(), 94, cheapGas())
	pub.failOn = bus.ChannelTradeRequests
	pub.failErr = errors.New("redis down")

	if err := e.RunCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	// The per-agent failure rolls the admission back instead of pinning
	// the lock on a request nobody will ever consume.
	agent, _ := agents.Load(context.Background(), "0xagent")
	if agent.OpenTradeID != "" {
		t.Fatalf("lock = %q, want rolled back", agent.OpenTradeID)
	}
	if trades.single().Status != models.StatusDropped {
		t.Fatalf("trade status = %s, want DROPPED", trades.single().Status)
	}
}
