package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/kjannette/ethmatic-backend/internal/models"
	"github.com/kjannette/ethmatic-backend/internal/repository"
	"github.com/kjannette/ethmatic-backend/internal/testutil"
)

// ---------- AgentRepo ----------

func TestAgentRepoLockLifecycle(t *testing.T) {
	pool := testutil.SetupPool(t)
	repo := repository.NewAgentRepo(pool)
	ctx := context.Background()

	addr := "0xtest_" + uuid.NewString()[:8]
	_, err := pool.Exec(ctx,
		`INSERT INTO agents (agent_address, wallet_index, ma_init_gain, ma_duration, side, open_trade_id, is_active, balance, created_on, updated_on)
		 VALUES ($1, 99, 1.05, 20, 'BUY', '', true, 3.0, NOW(), NOW())`,
		addr,
	)
	if err != nil {
		t.Fatalf("seed agent: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM agents WHERE agent_address = $1`, addr)
	})

	a, err := repo.Load(ctx, addr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a == nil || a.WalletIndex != 99 {
		t.Fatalf("Load returned %+v", a)
	}

	// Acquire succeeds on an unlocked agent, then conflicts.
	lock := uuid.NewString()
	if err := repo.AcquireOpenTrade(ctx, addr, lock); err != nil {
		t.Fatalf("AcquireOpenTrade: %v", err)
	}
	err = repo.AcquireOpenTrade(ctx, addr, uuid.NewString())
	if !errors.Is(err, repository.ErrLockConflict) {
		t.Fatalf("second acquire: want ErrLockConflict, got %v", err)
	}

	// Release with the wrong token conflicts; the right one clears.
	err = repo.ReleaseOpenTrade(ctx, addr, "not-the-lock")
	if !errors.Is(err, repository.ErrLockConflict) {
		t.Fatalf("mismatched release: want ErrLockConflict, got %v", err)
	}
	if err := repo.ReleaseOpenTrade(ctx, addr, lock); err != nil {
		t.Fatalf("ReleaseOpenTrade: %v", err)
	}

	a, err = repo.Load(ctx, addr)
	if err != nil {
		t.Fatalf("Load after release: %v", err)
	}
	if a.OpenTradeID != "" {
		t.Fatalf("lock not cleared: %q", a.OpenTradeID)
	}

	// ClearOpenTrade is unconditional.
	if err := repo.AcquireOpenTrade(ctx, addr, uuid.NewString()); err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if err := repo.ClearOpenTrade(ctx, addr); err != nil {
		t.Fatalf("ClearOpenTrade: %v", err)
	}

	// Side flip with an empty argument.
	if err := repo.SwitchSides(ctx, addr, ""); err != nil {
		t.Fatalf("SwitchSides: %v", err)
	}
	a, _ = repo.Load(ctx, addr)
	if a.Side != models.SideSell {
		t.Fatalf("side after flip: got %s, want SELL", a.Side)
	}
	if err := repo.SwitchSides(ctx, addr, models.SideBuy); err != nil {
		t.Fatalf("SwitchSides(BUY): %v", err)
	}
	a, _ = repo.Load(ctx, addr)
	if a.Side != models.SideBuy {
		t.Fatalf("side after reset: got %s, want BUY", a.Side)
	}

	t.Logf("agent lock lifecycle ok for %s", addr)
}

func TestAgentRepoLoadMissing(t *testing.T) {
	pool := testutil.SetupPool(t)
	repo := repository.NewAgentRepo(pool)

	a, err := repo.Load(context.Background(), "0xnobody")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a != nil {
		t.Fatalf("expected nil for missing agent, got %+v", a)
	}
}

// ---------- TradeRepo ----------

func TestTradeRepoLifecycle(t *testing.T) {
	pool := testutil.SetupPool(t)
	repo := repository.NewTradeRepo(pool)
	ctx := context.Background()

	id := uuid.NewString()
	addr := "0xtest_" + id[:8]
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM trades WHERE uuid = $1`, id)
	})

	trade := &models.Trade{
		UUID:         id,
		Side:         models.SideBuy,
		AgentAddress: addr,
		CurrentPrice: 94.5,
	}
	if err := repo.Create(ctx, trade); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.StatusPending {
		t.Fatalf("fresh trade status: got %s", got.Status)
	}

	if err := repo.SaveSubmission(ctx, id, "0xhash1", "WMATIC", "50000000000000000000"); err != nil {
		t.Fatalf("SaveSubmission: %v", err)
	}
	if err := repo.SaveReceipt(ctx, id, models.TxnReceipt{
		ToAddr:         "0xrouter",
		TxnBlock:       1234,
		TxnIdx:         2,
		BlockTimestamp: 1700000000,
		Gas:            "2100000",
		TxnStatus:      models.StatusApplied,
	}); err != nil {
		t.Fatalf("SaveReceipt: %v", err)
	}
	if err := repo.SaveSettlement(ctx, id, "520000000000000000", 0.52, 1875.0); err != nil {
		t.Fatalf("SaveSettlement: %v", err)
	}

	got, err = repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after settle: %v", err)
	}
	if got.Status != models.StatusApplied {
		t.Fatalf("settled status: got %s", got.Status)
	}
	if got.TxnHash != "0xhash1" || got.TxnBlock != 1234 || got.OutputBal != "520000000000000000" {
		t.Fatalf("settled trade fields: %+v", got)
	}
	t.Logf("trade %s settled: in=%s out=%s", id, got.InputBal, got.OutputBal)

	recent, err := repo.GetRecent(ctx, 5)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(recent) == 0 {
		t.Fatal("expected recent trades")
	}
}

// ---------- PendingTxnRepo ----------

func TestPendingTxnRepoSubmitAndDelete(t *testing.T) {
	pool := testutil.SetupPool(t)
	repo := repository.NewPendingTxnRepo(pool)
	ctx := context.Background()

	hash := "0xpend_" + uuid.NewString()[:8]
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM pending_txns WHERE txn_hash = $1`, hash)
	})

	err := repo.Submit(ctx, &models.PendingTxn{
		TxnHash:      hash,
		AgentAddress: "0xtest",
		WalletIndex:  3,
		Symbol:       "WMATIC",
		Amount:       "1000000000000000000",
		Type:         models.TxnWrap,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rows, err := repo.LoadPending(ctx)
	if err != nil {
		t.Fatalf("LoadPending: %v", err)
	}
	var found bool
	for _, r := range rows {
		if r.TxnHash == hash {
			found = true
			if r.Type != models.TxnWrap || r.TradeUUID != "" {
				t.Fatalf("pending row fields: %+v", r)
			}
		}
	}
	if !found {
		t.Fatalf("submitted row not returned (got %d rows)", len(rows))
	}

	if err := repo.Delete(ctx, hash); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	rows, _ = repo.LoadPending(ctx)
	for _, r := range rows {
		if r.TxnHash == hash {
			t.Fatal("row survived delete")
		}
	}
}

// ---------- PriceRepo ----------

func TestPriceRepoRoundTrip(t *testing.T) {
	pool := testutil.SetupPool(t)
	repo := repository.NewPriceRepo(pool)
	ctx := context.Background()

	pair := "TEST/" + uuid.NewString()[:8]
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM prices WHERE pair = $1`, pair)
		pool.Exec(context.Background(), `DELETE FROM price_history WHERE pair = $1`, pair)
	})

	smas := []float64{100, 101, 102}
	err := repo.UpdateRow(ctx, &models.PriceRow{
		Pair: pair, Price: 100.5, Liquidity: "123456789", SMAs: smas,
	})
	if err != nil {
		t.Fatalf("UpdateRow: %v", err)
	}

	// Upsert overwrites in place.
	err = repo.UpdateRow(ctx, &models.PriceRow{
		Pair: pair, Price: 101.5, Liquidity: "987654321", SMAs: smas,
	})
	if err != nil {
		t.Fatalf("UpdateRow upsert: %v", err)
	}

	row, err := repo.GetRow(ctx, pair)
	if err != nil {
		t.Fatalf("GetRow: %v", err)
	}
	if row.Price != 101.5 || len(row.SMAs) != 3 || row.SMAs[2] != 102 {
		t.Fatalf("row round trip: %+v", row)
	}

	all, err := repo.AllPrices(ctx, pair, "NO/SUCH")
	if err != nil {
		t.Fatalf("AllPrices: %v", err)
	}
	if all[pair] != 101.5 {
		t.Fatalf("AllPrices[%s] = %f", pair, all[pair])
	}
	if _, ok := all["NO/SUCH"]; ok {
		t.Fatal("missing pair should be absent, not zero")
	}

	if err := repo.AddHistory(ctx, pair, 100.5, "123456789"); err != nil {
		t.Fatalf("AddHistory: %v", err)
	}
	hist, err := repo.GetHistory(ctx, pair, 10)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(hist) != 1 || hist[0].Price != 100.5 {
		t.Fatalf("history: %+v", hist)
	}
	t.Logf("price round trip ok for %s", pair)
}

// ---------- LedgerRepo ----------

func TestLedgerRepoAppend(t *testing.T) {
	pool := testutil.SetupPool(t)
	repo := repository.NewLedgerRepo(pool)
	ctx := context.Background()

	base := "0xledg_" + uuid.NewString()[:8]
	addr := "0xtest_" + uuid.NewString()[:8]
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DELETE FROM ledger WHERE agent_address = $1`, addr)
	})

	entries := []models.LedgerEntry{
		{TxnHash: base + "_d", TxnBlock: 500, TxnIdx: 1, Gas: "2100000", AgentAddress: addr,
			Symbol: "WMATIC", Price: 0.52, Type: models.TxnSwap, Amount: "50000000000000000000", Debit: true},
		{TxnHash: base + "_c", TxnBlock: 500, TxnIdx: 1, Gas: "2100000", AgentAddress: addr,
			Symbol: "WETH", Price: 1875.0, Type: models.TxnSwap, Amount: "520000000000000000", Debit: false},
	}
	for i := range entries {
		if err := repo.Add(ctx, &entries[i]); err != nil {
			t.Fatalf("Add[%d]: %v", i, err)
		}
	}

	got, err := repo.GetByAgent(ctx, addr, 10)
	if err != nil {
		t.Fatalf("GetByAgent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 ledger rows, got %d", len(got))
	}
	var debits, credits int
	for _, e := range got {
		if e.Debit {
			debits++
		} else {
			credits++
		}
	}
	if debits != 1 || credits != 1 {
		t.Fatalf("debit/credit split: %d/%d", debits, credits)
	}

	recent, err := repo.GetRecent(ctx, 100)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(recent) < 2 {
		t.Fatalf("GetRecent returned %d rows", len(recent))
	}
	t.Logf("ledger append ok: %s_d / %s_c", base, base)
}
