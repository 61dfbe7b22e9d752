package registry

import (
	"testing"
	"time"

	"riskengine/internal/risktypes"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

type fakeCounter struct{ n int }

func (f *fakeCounter) IncrementDailyTrades() { f.n++ }

func TestRegisterStampsCooldownAndCounter(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	counter := &fakeCounter{}
	r := New(clk, counter)

	r.Register("t1", "BTC-USD", risktypes.SideBuy, 100, 500, "momentum")

	if counter.n != 1 {
		t.Errorf("expected daily trade counter incremented once, got %d", counter.n)
	}
	last, ok := r.LastTradeTime("BTC-USD")
	if !ok || !last.Equal(clk.now) {
		t.Errorf("expected last trade time stamped to now")
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 open position, got %d", r.Count())
	}
}

func TestReduceClampsFractionAndSize(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	r := New(clk, nil)
	r.Register("t1", "ETH-USD", risktypes.SideBuy, 2000, 1000, "")

	newSize, err := r.Reduce("t1", 0.25, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newSize != 750 {
		t.Errorf("expected size 750 after 25%% reduction, got %f", newSize)
	}

	newSize, err = r.Reduce("t1", 5, 0) // fraction out of range, clamp to 1
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newSize != 0 {
		t.Errorf("expected size 0 after fraction>1 clamp, got %f", newSize)
	}
}

func TestReduceUnknownTradeIDErrors(t *testing.T) {
	r := New(&fakeClock{now: time.Now()}, nil)
	if _, err := r.Reduce("missing", 0.5, 0); err == nil {
		t.Fatal("expected error for unknown trade_id")
	}
}

func TestCloseRecordsStrategyLastClose(t *testing.T) {
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := New(clk, nil)
	r.Register("t1", "BTC-USD", risktypes.SideSell, 100, 500, "meanrev")

	pos, ok := r.Close("t1")
	if !ok {
		t.Fatal("expected close to find the position")
	}
	if pos.Pair != "BTC-USD" {
		t.Errorf("unexpected position returned: %+v", pos)
	}
	if _, ok := r.Get("t1"); ok {
		t.Error("expected position removed from registry after close")
	}
	last, ok := r.LastCloseTime("BTC-USD", "meanrev", risktypes.SideSell)
	if !ok || !last.Equal(clk.now) {
		t.Error("expected strategy_last_close stamped")
	}
}

func TestCountInGroupAndTotalExposure(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	r := New(clk, nil)
	r.Register("t1", "BTC-USD", risktypes.SideBuy, 100, 300, "")
	r.Register("t2", "ETH-USD", risktypes.SideBuy, 100, 200, "")
	r.Register("t3", "SOL-USD", risktypes.SideBuy, 100, 100, "")

	groupOf := func(pair string) string {
		if pair == "BTC-USD" || pair == "ETH-USD" {
			return "majors"
		}
		return ""
	}

	if got := r.CountInGroup("majors", groupOf); got != 2 {
		t.Errorf("expected 2 positions in majors group, got %d", got)
	}
	if got := r.TotalExposureUSD(); got != 600 {
		t.Errorf("expected total exposure 600, got %f", got)
	}
}
