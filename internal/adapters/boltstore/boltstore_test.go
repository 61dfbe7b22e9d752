package boltstore

import (
	"testing"
	"time"

	"riskengine/internal/risktypes"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	store, err := New(t.TempDir(), clk)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, clk
}

func TestInsertThenGetOpenTradesRoundTrips(t *testing.T) {
	store, _ := newTestStore(t)

	rec := risktypes.TradeRecord{
		TradeID: "t1", Pair: "BTC-USD", Side: risktypes.SideBuy,
		EntryPrice: 100, Quantity: 2, StopLoss: 98, Strategy: "breakout",
	}
	if err := store.InsertTrade(rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	open, err := store.GetOpenTrades("default")
	if err != nil {
		t.Fatalf("get open trades failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open trade, got %d", len(open))
	}
	if open[0].TradeID != "t1" || open[0].Pair != "BTC-USD" {
		t.Errorf("unexpected trade record: %+v", open[0])
	}
}

func TestCloseTradeExcludesFromOpenTrades(t *testing.T) {
	store, _ := newTestStore(t)

	store.InsertTrade(risktypes.TradeRecord{TradeID: "t1", Pair: "BTC-USD", Side: risktypes.SideBuy, EntryPrice: 100, Quantity: 1, StopLoss: 98})

	if err := store.CloseTrade("t1", 25); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	open, err := store.GetOpenTrades("default")
	if err != nil {
		t.Fatalf("get open trades failed: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("expected 0 open trades after close, got %d", len(open))
	}
}

func TestUpdateTradePreservesTenantAndEntry(t *testing.T) {
	store, _ := newTestStore(t)
	store.InsertTrade(risktypes.TradeRecord{TradeID: "t1", Pair: "BTC-USD", Side: risktypes.SideBuy, EntryPrice: 100, Quantity: 1, StopLoss: 98})

	if err := store.UpdateTrade(risktypes.TradeRecord{TradeID: "t1", StopLoss: 99, Metadata: `{"trailing_high":101}`}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	open, err := store.GetOpenTrades("default")
	if err != nil {
		t.Fatalf("get open trades failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open trade, got %d", len(open))
	}
	if open[0].StopLoss != 99 {
		t.Errorf("expected stop loss updated to 99, got %f", open[0].StopLoss)
	}
	if open[0].EntryPrice != 100 {
		t.Errorf("expected entry price preserved at 100, got %f", open[0].EntryPrice)
	}
}

func TestCountTradesSinceCountsOnlyAfterCutoff(t *testing.T) {
	store, clk := newTestStore(t)

	store.InsertTrade(risktypes.TradeRecord{TradeID: "t1", Pair: "BTC-USD", Side: risktypes.SideBuy, EntryPrice: 100, Quantity: 1, StopLoss: 98})
	clk.now = clk.now.Add(time.Hour)
	store.InsertTrade(risktypes.TradeRecord{TradeID: "t2", Pair: "ETH-USD", Side: risktypes.SideBuy, EntryPrice: 50, Quantity: 1, StopLoss: 48})

	count, err := store.CountTradesSince(clk.now.Add(-30 * time.Minute))
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 trade since cutoff, got %d", count)
	}
}

func TestLogThoughtThenThoughtsForReturnsInOrder(t *testing.T) {
	store, clk := newTestStore(t)

	store.LogThought("t1", "opened on breakout signal")
	clk.now = clk.now.Add(time.Second)
	store.LogThought("t1", "tightened stop after trailing activation")

	notes, err := store.ThoughtsFor("t1")
	if err != nil {
		t.Fatalf("thoughts for failed: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(notes))
	}
	if notes[0] != "opened on breakout signal" {
		t.Errorf("expected first note to be the earliest logged, got %q", notes[0])
	}
}
