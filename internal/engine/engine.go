package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"riskengine/internal/cfg"
	"riskengine/internal/common"
	"riskengine/internal/gate"
	"riskengine/internal/ledger"
	"riskengine/internal/metrics"
	"riskengine/internal/recovery"
	"riskengine/internal/registry"
	"riskengine/internal/risktypes"
	"riskengine/internal/ruin"
	"riskengine/internal/sizing"
	"riskengine/internal/stoploss"
)

// Engine is the single-actor orchestrator for one tenant: every
// exposed method acquires the same mutex, so callers never observe a
// sizing decision interleaved with a concurrent close or recovery
// batch. Reporting is the only method that reads under the same lock
// without ever mutating state.
type Engine struct {
	mu sync.Mutex

	clock risktypes.Clock
	cfg   cfg.Settings

	ledger   *ledger.Ledger
	registry *registry.Registry
	stoploss *stoploss.Machine
	gate     *gate.Gate
	sizing   *sizing.Pipeline
	metrics  *metrics.Metrics

	paused bool
}

// New wires every component from settings and returns a ready Engine.
// tradesSince may be nil, which disables the trade-rate cap regardless
// of configuration (see NewCachedTradesSince for the TTL-cached Store
// wrapper spec.md §6 expects callers to supply instead).
func New(clock risktypes.Clock, settings cfg.Settings, m *metrics.Metrics, tradesSince gate.TradesSinceFunc) *Engine {
	l := ledger.New(clock, settings.InitialBalance, 5000, settings.PostLossCooldown)
	r := registry.New(clock, l)
	sl := stoploss.New(stoploss.Config{
		BreakevenActivationPct: settings.BreakevenActivationPct,
		TrailingActivationPct:  settings.TrailingActivationPct,
		TrailingStepPct:        settings.TrailingStepPct,
	})
	g := gate.New(clock, gate.Config{
		MaxDailyLoss:           settings.MaxDailyLoss,
		PairCooldown:           settings.PairCooldown,
		MaxConcurrentPositions: settings.MaxConcurrentPositions,
		MaxDailyTrades:         settings.MaxDailyTrades,
		RiskOfRuinThreshold:    settings.RiskOfRuinThreshold,
		CorrelationGroups:      settings.CorrelationGroups,
		GroupMaxPositions:      settings.GroupMaxPositions,
		MaxTradesPerHour:       settings.MaxTradesPerHour,
		QuietHoursUTC:          settings.QuietHoursUTC,
		AllowDuplicatePairs:    settings.AllowDuplicatePairs,
	}, l, r, tradesSince)
	sp := sizing.New(sizing.Config{
		MaxRiskPerTrade:     settings.MaxRiskPerTrade,
		MaxPositionUSD:      settings.MaxPositionUSD,
		KellySafetyFraction: settings.KellySafetyFraction,
		KellyCap:            settings.KellyCap,
		MaxTotalExposurePct: settings.MaxTotalExposurePct,
		MinRiskRewardRatio:  settings.MinRiskRewardRatio,
	}, g, l, r)

	if m == nil {
		m = metrics.New()
	}

	return &Engine{
		clock:    clock,
		cfg:      settings,
		ledger:   l,
		registry: r,
		stoploss: sl,
		gate:     g,
		sizing:   sp,
		metrics:  m,
	}
}

// CalculatePositionSize runs the Entry Gate then the Sizing Pipeline
// for a proposed trade.
func (e *Engine) CalculatePositionSize(tp risktypes.TradeProposal) risktypes.PositionSizeResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		res := risktypes.PositionSizeResult{Allowed: false, Reason: common.ReasonTradingPaused}
		e.metrics.RecordSizingDenial(res.Reason)
		return res
	}

	start := e.clock.Now()
	e.metrics.SizingRequests.Inc()
	res := e.sizing.CalculatePositionSize(tp)
	e.metrics.SizingLatency.Observe(e.clock.Now().Sub(start).Seconds())

	if !res.Allowed {
		e.metrics.RecordSizingDenial(res.Reason)
		return res
	}
	e.metrics.KellyFraction.Set(res.KellyFraction)
	return res
}

// InitializeStopLoss creates stop-loss state for a newly filled trade.
func (e *Engine) InitializeStopLoss(tradeID string, entryPrice, stopLoss float64, side risktypes.Side, trailingHigh, trailingLow *float64) risktypes.StopLossState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stoploss.Initialise(tradeID, entryPrice, stopLoss, side, trailingHigh, trailingLow)
}

// UpdateStopLoss advances the stop-loss state machine on a price tick.
func (e *Engine) UpdateStopLoss(tradeID string, currentPrice, entryPrice float64, side risktypes.Side) risktypes.StopLossState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stoploss.Update(tradeID, currentPrice, entryPrice, side)
}

// ShouldStopOut reports whether the current price has breached the
// trade's stop.
func (e *Engine) ShouldStopOut(tradeID string, currentPrice float64, side risktypes.Side) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stoploss.ShouldStopOut(tradeID, currentPrice, side)
}

// RegisterPosition records a confirmed fill in the Position Registry.
func (e *Engine) RegisterPosition(tradeID, pair string, side risktypes.Side, entry, sizeUSD float64, strategy string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry.Register(tradeID, pair, side, entry, sizeUSD, strategy)
	e.metrics.OpenPositions.Set(float64(e.registry.Count()))
}

// ReducePositionSize shrinks an open position's size_usd.
func (e *Engine) ReducePositionSize(tradeID string, fraction, absUSD float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Reduce(tradeID, fraction, absUSD)
}

// ClosePosition removes the position, records realised P&L on the
// Ledger, and discards its stop-loss state. stoppedOut distinguishes a
// stop-out close for metrics from a take-profit or manual close.
func (e *Engine) ClosePosition(tradeID string, realizedPnL float64, stoppedOut bool) (risktypes.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.registry.Close(tradeID)
	if !ok {
		log.Warn().Str("trade_id", tradeID).Msg("close_position on unknown trade_id")
		return pos, false
	}
	e.stoploss.Close(tradeID)
	e.ledger.RecordClose(realizedPnL)
	e.metrics.OpenPositions.Set(float64(e.registry.Count()))
	e.metrics.DailyPnL.Set(e.ledger.Snapshot().DailyPnL)
	e.metrics.SetGlobalCooldown(e.ledger.GlobalCooldownActive())
	if stoppedOut {
		e.metrics.StopOutsTotal.Inc()
	}
	return pos, true
}

// ReinitializeFromRecords rebuilds the Registry and Stop-Loss Machine
// from persisted trade records at startup.
func (e *Engine) ReinitializeFromRecords(records []risktypes.TradeRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	recovery.ReinitializeFromRecords(e.registry, e.stoploss, records)
	e.metrics.RecoveredPositions.Add(float64(len(records)))
	e.metrics.OpenPositions.Set(float64(e.registry.Count()))
}

// ResetRuntime forces an unconditional daily reset of P&L, trade
// count, and streaks — a manual operator action distinct from the
// UTC-midnight automatic rollover DailyResetIfNeeded performs on every
// gate check.
func (e *Engine) ResetRuntime() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.ForceDailyReset()
	log.Info().Str("tenant", e.cfg.Tenant).Msg("risk engine runtime reset")
}

// GetRiskReport returns a flat, read-only snapshot of the engine's
// state. Pure read: it deliberately does not call DailyResetIfNeeded,
// so a report polled across UTC midnight may briefly show the
// previous day's daily_pnl/daily_trades until the next gate check
// rolls them over.
func (e *Engine) GetRiskReport() risktypes.Report {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.ledger.Snapshot()
	openPositions := e.registry.Count()
	exposure := e.registry.TotalExposureUSD()
	ror := ruin.Estimate(e.ledger.TradeHistory(), snap.CurrentBankroll)

	totalReturnPct := 0.0
	if e.ledger.InitialBankroll() > 0 {
		totalReturnPct = (snap.CurrentBankroll - e.ledger.InitialBankroll()) / e.ledger.InitialBankroll()
	}
	remaining := snap.CurrentBankroll*e.cfg.MaxTotalExposurePct - exposure
	if remaining < 0 {
		remaining = 0
	}

	e.metrics.DrawdownFraction.Set(e.ledger.CurrentDrawdown())
	e.metrics.RiskOfRuin.Set(ror)
	e.metrics.OpenPositions.Set(float64(openPositions))

	return risktypes.Report{
		Bankroll:               snap.CurrentBankroll,
		InitialBankroll:        e.ledger.InitialBankroll(),
		TotalReturnPct:         totalReturnPct,
		PeakBankroll:           snap.PeakBankroll,
		CurrentDrawdownPct:     e.ledger.CurrentDrawdown(),
		MaxDrawdownPct:         snap.MaxDrawdown,
		DailyPnL:               snap.DailyPnL,
		DailyTrades:            snap.DailyTrades,
		OpenPositions:          openPositions,
		TotalExposureUSD:       exposure,
		RiskOfRuin:             ror,
		CurrentDrawdownFactor:  e.ledger.CurrentDrawdown(),
		RemainingCapacityUSD:   remaining,
		MaxDailyLossConfigured: e.cfg.MaxDailyLoss,
		MaxPositionUSD:         e.cfg.MaxPositionUSD,
		MaxConcurrentPositions: e.cfg.MaxConcurrentPositions,
		TradeCount:             snap.TradeHistoryLen,
		ConsecutiveWins:        snap.ConsecutiveWins,
		ConsecutiveLosses:      snap.ConsecutiveLosses,
	}
}

// Pause denies every CalculatePositionSize call with ReasonTradingPaused
// until Resume is called. Open positions are unaffected — trailing
// stops still update and stop-outs still fire while paused.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
	log.Warn().Str("tenant", e.cfg.Tenant).Msg("risk engine paused, new entries denied")
}

// Resume clears a prior Pause.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
	log.Info().Str("tenant", e.cfg.Tenant).Msg("risk engine resumed")
}

// IsPaused reports whether Pause is currently in effect.
func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// EmergencyCloseAll force-closes every open position without recording
// any P&L on the Ledger (the caller's order router has already settled
// the actual fills by the time this runs; this only clears the
// engine's own bookkeeping) and returns the positions that were closed.
func (e *Engine) EmergencyCloseAll() []risktypes.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	open := e.registry.Snapshot()
	closed := make([]risktypes.Position, 0, len(open))
	for _, pos := range open {
		if _, ok := e.registry.Close(pos.TradeID); ok {
			e.stoploss.Close(pos.TradeID)
			closed = append(closed, pos)
		}
	}
	e.metrics.OpenPositions.Set(float64(e.registry.Count()))
	log.Warn().Int("count", len(closed)).Str("tenant", e.cfg.Tenant).Msg("emergency close-all executed")
	return closed
}

// NewCachedTradesSince wraps a Store's CountTradesSince behind the TTL
// cache spec.md §6 requires of the caller, so the gate's trade-rate
// check never triggers a persistence read on every proposal.
func NewCachedTradesSince(store Store, ttl time.Duration, clock risktypes.Clock) gate.TradesSinceFunc {
	var mu sync.Mutex
	var cachedAt time.Time
	var cachedCutoff time.Time
	var cachedCount int

	return func(cutoff time.Time) int {
		mu.Lock()
		defer mu.Unlock()

		now := clock.Now()
		if now.Sub(cachedAt) < ttl && cachedCutoff.Equal(cutoff) {
			return cachedCount
		}
		count, err := store.CountTradesSince(cutoff)
		if err != nil {
			log.Warn().Err(err).Msg("count_trades_since failed, using last cached value")
			return cachedCount
		}
		cachedAt = now
		cachedCutoff = cutoff
		cachedCount = count
		return cachedCount
	}
}
