package ledger

import (
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }
func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func TestRecordCloseUpdatesBankrollAndPeak(t *testing.T) {
	clk := newFakeClock()
	l := New(clk, 10000, 5000, 0)

	l.RecordClose(200)
	snap := l.Snapshot()
	if snap.CurrentBankroll != 10200 {
		t.Errorf("expected bankroll 10200, got %f", snap.CurrentBankroll)
	}
	if snap.PeakBankroll != 10200 {
		t.Errorf("expected peak 10200, got %f", snap.PeakBankroll)
	}

	l.RecordClose(-500)
	snap = l.Snapshot()
	if snap.CurrentBankroll != 9700 {
		t.Errorf("expected bankroll 9700, got %f", snap.CurrentBankroll)
	}
	if snap.PeakBankroll != 10200 {
		t.Errorf("peak must not regress, got %f", snap.PeakBankroll)
	}
	wantDD := (10200.0 - 9700.0) / 10200.0
	if snap.MaxDrawdown < wantDD-1e-9 || snap.MaxDrawdown > wantDD+1e-9 {
		t.Errorf("expected max drawdown %f, got %f", wantDD, snap.MaxDrawdown)
	}
}

func TestRecordCloseNeverDecreasesMaxDrawdown(t *testing.T) {
	clk := newFakeClock()
	l := New(clk, 10000, 5000, 0)

	l.RecordClose(-1000) // drawdown 0.10
	first := l.Snapshot().MaxDrawdown

	l.RecordClose(900) // bankroll recovers, drawdown shrinks
	second := l.Snapshot().MaxDrawdown

	if second < first {
		t.Errorf("max drawdown regressed: first=%f second=%f", first, second)
	}
}

func TestStreaksAreMutuallyExclusive(t *testing.T) {
	clk := newFakeClock()
	l := New(clk, 10000, 5000, 0)

	l.RecordClose(50)
	l.RecordClose(50)
	snap := l.Snapshot()
	if snap.ConsecutiveWins != 2 || snap.ConsecutiveLosses != 0 {
		t.Errorf("expected 2 wins 0 losses, got %d/%d", snap.ConsecutiveWins, snap.ConsecutiveLosses)
	}

	l.RecordClose(-50)
	snap = l.Snapshot()
	if snap.ConsecutiveWins != 0 || snap.ConsecutiveLosses != 1 {
		t.Errorf("expected 0 wins 1 loss after a losing trade, got %d/%d", snap.ConsecutiveWins, snap.ConsecutiveLosses)
	}
}

func TestPostLossCooldownArmsOnLoss(t *testing.T) {
	clk := newFakeClock()
	l := New(clk, 10000, 5000, 30*time.Minute)

	if l.GlobalCooldownActive() {
		t.Fatal("cooldown should not be active before any loss")
	}
	l.RecordClose(-10)
	if !l.GlobalCooldownActive() {
		t.Fatal("cooldown should be active immediately after a loss")
	}

	clk.advance(31 * time.Minute)
	if l.GlobalCooldownActive() {
		t.Fatal("cooldown should have expired after 31 minutes")
	}
}

func TestTradeHistoryRingEvictsOldest(t *testing.T) {
	clk := newFakeClock()
	l := New(clk, 10000, 3, 0)

	l.RecordClose(1)
	l.RecordClose(2)
	l.RecordClose(3)
	l.RecordClose(4)

	hist := l.TradeHistory()
	if len(hist) != 3 {
		t.Fatalf("expected history capped at 3, got %d", len(hist))
	}
	if hist[0].PnL != 2 || hist[2].PnL != 4 {
		t.Errorf("expected oldest entry evicted, got %+v", hist)
	}
}

func TestDailyResetIfNeededRollsOverAtUTCMidnight(t *testing.T) {
	clk := newFakeClock()
	l := New(clk, 10000, 5000, 0)

	l.RecordClose(-100)
	l.IncrementDailyTrades()
	snap := l.Snapshot()
	if snap.DailyPnL != -100 || snap.DailyTrades != 1 {
		t.Fatalf("expected daily pnl -100 and 1 trade, got %+v", snap)
	}

	clk.advance(24 * time.Hour)
	l.DailyResetIfNeeded()
	snap = l.Snapshot()
	if snap.DailyPnL != 0 || snap.DailyTrades != 0 {
		t.Errorf("expected daily fields reset after midnight rollover, got %+v", snap)
	}
	if snap.CurrentBankroll != 9900 {
		t.Errorf("bankroll must survive daily reset, got %f", snap.CurrentBankroll)
	}
}
