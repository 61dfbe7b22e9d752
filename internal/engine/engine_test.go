package engine

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"riskengine/internal/cfg"
	"riskengine/internal/metrics"
	"riskengine/internal/risktypes"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func testSettings() cfg.Settings {
	return cfg.Settings{
		InitialBalance:         10000,
		MaxRiskPerTrade:        0.02,
		MaxDailyLoss:           0.05,
		MaxPositionUSD:         500,
		KellySafetyFraction:    0.25,
		KellyCap:               0.10,
		RiskOfRuinThreshold:    0.01,
		MaxDailyTrades:         0,
		MaxTotalExposurePct:    0.50,
		MaxConcurrentPositions: 5,
		PairCooldown:           5 * time.Minute,
		PostLossCooldown:       30 * time.Minute,
		MinRiskRewardRatio:     1.2,
		ATRMultiplierSL:        2.0,
		ATRMultiplierTP:        3.0,
		TrailingActivationPct:  0.015,
		TrailingStepPct:        0.005,
		BreakevenActivationPct: 0.01,
		Tenant:                 "test-tenant",
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	return New(clk, testSettings(), m, nil), clk
}

func TestEndToEndTradeLifecycle(t *testing.T) {
	e, _ := newTestEngine(t)

	res := e.CalculatePositionSize(risktypes.TradeProposal{
		Pair: "BTC-USD", Side: risktypes.SideBuy, Entry: 100, Stop: 98.5, TakeProfit: 103,
		WinRate: 0.6, AvgWinLossRatio: 1.5, Confidence: 0.8,
	})
	if !res.Allowed {
		t.Fatalf("expected allowed sizing, got deny reason %q", res.Reason)
	}

	e.RegisterPosition("t1", "BTC-USD", risktypes.SideBuy, 100, res.SizeUSD, "")
	e.InitializeStopLoss("t1", 100, 98.5, risktypes.SideBuy, nil, nil)

	st := e.UpdateStopLoss("t1", 102, 100, risktypes.SideBuy)
	if st.CurrentSL <= 98.5 {
		t.Errorf("expected trailing stop to have tightened above initial_sl, got %f", st.CurrentSL)
	}

	if e.ShouldStopOut("t1", 102, risktypes.SideBuy) {
		t.Error("did not expect a stop-out at a price above current_sl")
	}

	pos, ok := e.ClosePosition("t1", 50, false)
	if !ok {
		t.Fatal("expected close to succeed")
	}
	if pos.TradeID != "t1" {
		t.Errorf("expected closed position t1, got %q", pos.TradeID)
	}

	report := e.GetRiskReport()
	if report.OpenPositions != 0 {
		t.Errorf("expected 0 open positions after close, got %d", report.OpenPositions)
	}
	if report.Bankroll != 10050 {
		t.Errorf("expected bankroll 10050 after +50 pnl, got %f", report.Bankroll)
	}
}

func TestGateDenialShortCircuitsSizing(t *testing.T) {
	e, clk := newTestEngine(t)

	e.RegisterPosition("t1", "BTC-USD", risktypes.SideBuy, 100, 200, "")
	clk.now = clk.now.Add(time.Second)

	res := e.CalculatePositionSize(risktypes.TradeProposal{
		Pair: "BTC-USD", Side: risktypes.SideBuy, Entry: 100, Stop: 98.5, TakeProfit: 103,
		WinRate: 0.6, AvgWinLossRatio: 1.5, Confidence: 0.8,
	})
	if res.Allowed {
		t.Fatal("expected pair cooldown to deny the second proposal on the same pair")
	}
}

func TestReinitializeFromRecordsThenReport(t *testing.T) {
	e, _ := newTestEngine(t)

	e.ReinitializeFromRecords([]risktypes.TradeRecord{
		{TradeID: "r1", Pair: "ETH-USD", Side: risktypes.SideSell, EntryPrice: 50, Quantity: 2, StopLoss: 52},
	})

	report := e.GetRiskReport()
	if report.OpenPositions != 1 {
		t.Errorf("expected 1 recovered open position, got %d", report.OpenPositions)
	}

	if e.ShouldStopOut("r1", 53, risktypes.SideSell) != true {
		t.Error("expected recovered sell position to stop out above its stop-loss")
	}
}

func TestResetRuntimeZeroesDailyCounters(t *testing.T) {
	e, _ := newTestEngine(t)

	e.RegisterPosition("t1", "BTC-USD", risktypes.SideBuy, 100, 200, "")
	e.ClosePosition("t1", -100, false)

	before := e.GetRiskReport()
	if before.DailyPnL >= 0 {
		t.Fatalf("expected negative daily pnl before reset, got %f", before.DailyPnL)
	}

	e.ResetRuntime()

	after := e.GetRiskReport()
	if after.DailyPnL != 0 {
		t.Errorf("expected daily pnl reset to 0, got %f", after.DailyPnL)
	}
	if after.DailyTrades != 0 {
		t.Errorf("expected daily trades reset to 0, got %d", after.DailyTrades)
	}
}

func TestReducePositionSizeDelegatesToRegistry(t *testing.T) {
	e, _ := newTestEngine(t)
	e.RegisterPosition("t1", "BTC-USD", risktypes.SideBuy, 100, 200, "")

	newSize, err := e.ReducePositionSize("t1", 0.5, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newSize != 100 {
		t.Errorf("expected size halved to 100, got %f", newSize)
	}
}
