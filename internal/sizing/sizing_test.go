package sizing

import (
	"math"
	"testing"
	"time"

	"riskengine/internal/common"
	"riskengine/internal/gate"
	"riskengine/internal/ledger"
	"riskengine/internal/registry"
	"riskengine/internal/risktypes"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func defaultSizingConfig() Config {
	return Config{
		MaxRiskPerTrade:     0.02,
		MaxPositionUSD:      500,
		KellySafetyFraction: 0.25,
		KellyCap:            0.10,
		MaxTotalExposurePct: 0.50,
		MinRiskRewardRatio:  1.2,
	}
}

func defaultGateConfig() gate.Config {
	return gate.Config{
		MaxDailyLoss:           0.05,
		PairCooldown:           5 * time.Minute,
		MaxConcurrentPositions: 5,
		MaxDailyTrades:         0,
		RiskOfRuinThreshold:    0.01,
	}
}

func newHarness(t *testing.T, initialBankroll float64) (*Pipeline, *ledger.Ledger, *registry.Registry) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := ledger.New(clk, initialBankroll, common.TradeHistoryCapacity, 0)
	r := registry.New(clk, l)
	g := gate.New(clk, defaultGateConfig(), l, r, nil)
	return New(defaultSizingConfig(), g, l, r), l, r
}

func TestKellyIsACapNotThePrimary(t *testing.T) {
	p, _, _ := newHarness(t, 10000)

	res := p.CalculatePositionSize(risktypes.TradeProposal{
		Pair: "BTC-USD", Entry: 100, Stop: 98.5, TakeProfit: 103,
		WinRate: 0.6, AvgWinLossRatio: 1.5, Confidence: 0.8,
	})
	if !res.Allowed {
		t.Fatalf("expected allowed, got deny reason %q", res.Reason)
	}
	if math.Abs(res.SizeUSD-500) > 1e-6 {
		t.Errorf("expected size_usd ~500 (hard cap binds before history floor), got %f", res.SizeUSD)
	}
	wantRisk := 500 * (1.5 / 100)
	if math.Abs(res.RiskAmount-wantRisk) > 1e-6 {
		t.Errorf("expected risk_amount ~%f, got %f", wantRisk, res.RiskAmount)
	}
}

func TestKellyCapBindsAfterHistoryThreshold(t *testing.T) {
	p, l, _ := newHarness(t, 10000)
	// 40 wins of +1, 20 losses of -1, interleaved win-win-loss so no run
	// ever reaches 3 consecutive results in either direction — the
	// streak factor (step 9) stays neutral at 1.0 and drawdown never
	// exceeds a fraction of a point, matching spec.md's S2 worked
	// example, which assumes neither derating engages.
	for i := 0; i < 20; i++ {
		l.RecordClose(1)
		l.RecordClose(1)
		l.RecordClose(-1)
	}
	// bankroll is now 10020 (net +20 over 60 trades), and the 60-trade
	// history clears the Kelly sample floor, so the Kelly path engages:
	// kelly_adj = min(0.3333*0.25*0.8, 0.10) = 0.0667, kelly size =
	// 10020*0.0667 ≈ 668, still above the 500 hard cap.

	res := p.CalculatePositionSize(risktypes.TradeProposal{
		Pair: "BTC-USD", Entry: 100, Stop: 98.5, TakeProfit: 103,
		WinRate: 0.6, AvgWinLossRatio: 1.5, Confidence: 0.8,
	})
	if !res.Allowed {
		t.Fatalf("expected allowed, got deny reason %q", res.Reason)
	}
	wantSize := 500.0
	if math.Abs(res.SizeUSD-wantSize) > 1e-6 {
		t.Errorf("expected size_usd %f (Kelly cap binds, matching spec.md S2's Final = min(13333, 667, 500) = 500), got %f", wantSize, res.SizeUSD)
	}
}

func TestDrawdownDeratingComposes(t *testing.T) {
	p, l, _ := newHarness(t, 10000)
	l.RecordClose(-1000) // bankroll 9000, peak 10000, drawdown 0.10 -> factor 0.60
	// Clear daily P&L and streaks (bankroll and peak are kept) so the
	// daily loss limit does not deny the proposal before derating runs.
	l.ForceDailyReset()

	res := p.CalculatePositionSize(risktypes.TradeProposal{
		Pair: "BTC-USD", Entry: 100, Stop: 98.5, TakeProfit: 103,
		WinRate: 0.6, AvgWinLossRatio: 1.5, Confidence: 0.8,
	})
	if !res.Allowed {
		t.Fatalf("expected allowed, got deny reason %q", res.Reason)
	}
	if math.Abs(res.SizeUSD-500) > 1e-6 {
		t.Errorf("expected size still capped at 500 after drawdown derating, got %f", res.SizeUSD)
	}
}

func TestStopDistanceOutOfRangeDenies(t *testing.T) {
	p, _, _ := newHarness(t, 10000)
	res := p.CalculatePositionSize(risktypes.TradeProposal{
		Pair: "BTC-USD", Entry: 100, Stop: 100, TakeProfit: 110,
		WinRate: 0.6, AvgWinLossRatio: 1.5, Confidence: 0.8,
	})
	if res.Allowed || res.Reason != common.ReasonStopDistanceInvalid {
		t.Errorf("expected stop distance invalid denial for zero distance, got %+v", res)
	}
}

func TestRiskRewardBelowMinimumDenies(t *testing.T) {
	p, _, _ := newHarness(t, 10000)
	res := p.CalculatePositionSize(risktypes.TradeProposal{
		Pair: "BTC-USD", Entry: 100, Stop: 98, TakeProfit: 101,
		WinRate: 0.6, AvgWinLossRatio: 1.5, Confidence: 0.8,
	})
	if res.Allowed || res.Reason != common.ReasonRiskRewardTooLow {
		t.Errorf("expected R:R denial, got %+v", res)
	}
}

func TestAvgWinLossRatioFallbackFlagsKellyFallback(t *testing.T) {
	p, _, _ := newHarness(t, 10000)
	res := p.CalculatePositionSize(risktypes.TradeProposal{
		Pair: "BTC-USD", Entry: 100, Stop: 98.5, TakeProfit: 103,
		WinRate: 0.6, AvgWinLossRatio: 0, Confidence: 0.8,
	})
	if !res.Allowed {
		t.Fatalf("expected allowed, got deny reason %q", res.Reason)
	}
	if !res.KellyFallbackUsed {
		t.Error("expected KellyFallbackUsed when avg_win_loss_ratio <= 0")
	}
}

func TestSizeBelowMinimumDeniesWithDiagnostic(t *testing.T) {
	p, _, r := newHarness(t, 10000)
	// Exhaust nearly all exposure headroom so the clamp drives size below the floor.
	r.Register("t1", "OTHER-USD", risktypes.SideBuy, 100, 4999.99, "")

	res := p.CalculatePositionSize(risktypes.TradeProposal{
		Pair: "BTC-USD", Entry: 100, Stop: 98.5, TakeProfit: 103,
		WinRate: 0.6, AvgWinLossRatio: 1.5, Confidence: 0.8,
	})
	if res.Allowed {
		t.Fatalf("expected denial once exposure headroom is exhausted, got %+v", res)
	}
	if res.Reason == "" {
		t.Error("expected a diagnostic reason")
	}
}
