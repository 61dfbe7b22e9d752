// Package stoploss implements the Stop-Loss State Machine: per-trade
// breakeven and trailing-stop state, advanced on every price tick.
package stoploss

import (
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"riskengine/internal/risktypes"
)

// Config holds the thresholds that drive breakeven and trailing
// activation and the trailing step size.
type Config struct {
	BreakevenActivationPct float64
	TrailingActivationPct  float64
	TrailingStepPct        float64
}

// Machine owns the StopLossState for every open trade-id. It is
// mutated only by its single owner (the engine).
type Machine struct {
	mu    sync.Mutex
	cfg   Config
	state map[string]risktypes.StopLossState
}

// New builds an empty Machine.
func New(cfg Config) *Machine {
	return &Machine{
		cfg:   cfg,
		state: make(map[string]risktypes.StopLossState),
	}
}

// Initialise creates stop-loss state for a newly opened trade.
// trailingHigh/trailingLow, when non-nil, seed the running extremes
// from persisted values (used by Recovery); otherwise the defaults
// from spec §4.C are used.
func (m *Machine) Initialise(tradeID string, entryPrice, stopLoss float64, side risktypes.Side, trailingHigh, trailingLow *float64) risktypes.StopLossState {
	m.mu.Lock()
	defer m.mu.Unlock()

	seed := entryPrice
	if seed <= 0 {
		log.Warn().Str("trade_id", tradeID).Msg("initialise called with entry_price<=0, seeding trailing extremes from stop_loss instead")
		seed = stopLoss
	}

	st := risktypes.StopLossState{
		InitialSL: stopLoss,
		CurrentSL: stopLoss,
	}

	if trailingHigh != nil && *trailingHigh > 0 {
		st.TrailingHigh = *trailingHigh
	} else if side == risktypes.SideBuy {
		st.TrailingHigh = seed
	} else {
		st.TrailingHigh = 0
	}

	if trailingLow != nil && !isInf(*trailingLow) {
		st.TrailingLow = *trailingLow
	} else if side == risktypes.SideBuy {
		st.TrailingLow = risktypes.PositiveInfinity
	} else {
		st.TrailingLow = seed
	}

	m.state[tradeID] = st
	return st
}

// Update advances the breakeven/trailing state machine for one tick
// and returns the resulting state. An unknown trade_id logs a warning
// and returns the zero-value state rather than failing.
func (m *Machine) Update(tradeID string, currentPrice, entryPrice float64, side risktypes.Side) risktypes.StopLossState {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.state[tradeID]
	if !ok {
		log.Warn().Str("trade_id", tradeID).Msg("update_stop_loss on unknown trade_id")
		return risktypes.StopLossState{}
	}

	if entryPrice <= 0 {
		log.Warn().Str("trade_id", tradeID).Msg("update_stop_loss called with entry_price<=0")
		return st
	}

	if side == risktypes.SideBuy {
		st = updateBuy(st, m.cfg, currentPrice, entryPrice)
	} else {
		st = updateSell(st, m.cfg, currentPrice, entryPrice)
	}

	m.state[tradeID] = st
	return st
}

func updateBuy(st risktypes.StopLossState, cfg Config, currentPrice, entryPrice float64) risktypes.StopLossState {
	pnlPct := (currentPrice - entryPrice) / entryPrice

	if currentPrice > st.TrailingHigh {
		st.TrailingHigh = currentPrice
	}

	if !st.BreakevenActivated && pnlPct >= cfg.BreakevenActivationPct {
		st.BreakevenActivated = true
		if entryPrice > st.CurrentSL {
			st.CurrentSL = entryPrice
		}
	}

	if pnlPct >= cfg.TrailingActivationPct {
		st.TrailingActivated = true
		stepScale := stepScaleFor(pnlPct)
		candidate := st.TrailingHigh * (1 - cfg.TrailingStepPct*stepScale)
		if candidate > st.CurrentSL {
			st.CurrentSL = candidate
		}
	}

	return st
}

func updateSell(st risktypes.StopLossState, cfg Config, currentPrice, entryPrice float64) risktypes.StopLossState {
	pnlPct := (entryPrice - currentPrice) / entryPrice

	if currentPrice < st.TrailingLow {
		st.TrailingLow = currentPrice
	}

	if !st.BreakevenActivated && pnlPct >= cfg.BreakevenActivationPct {
		st.BreakevenActivated = true
		if entryPrice < st.CurrentSL {
			st.CurrentSL = entryPrice
		}
	}

	if pnlPct >= cfg.TrailingActivationPct {
		st.TrailingActivated = true
		stepScale := stepScaleFor(pnlPct)
		candidate := st.TrailingLow * (1 + cfg.TrailingStepPct*stepScale)
		if candidate < st.CurrentSL {
			st.CurrentSL = candidate
		}
	}

	return st
}

// stepScaleFor implements the acceleration ladder: tighter trailing
// steps as unrealised profit grows, so the stop locks in gains faster
// without ever widening.
func stepScaleFor(pnlPct float64) float64 {
	switch {
	case pnlPct <= 0.03:
		return 1.0
	case pnlPct <= 0.05:
		return 0.5
	default:
		return 0.3
	}
}

// ShouldStopOut reports whether the current price has breached the
// stop for the given side. An unknown trade_id returns false.
func (m *Machine) ShouldStopOut(tradeID string, currentPrice float64, side risktypes.Side) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.state[tradeID]
	if !ok {
		log.Warn().Str("trade_id", tradeID).Msg("should_stop_out on unknown trade_id")
		return false
	}
	if side == risktypes.SideBuy {
		return currentPrice <= st.CurrentSL
	}
	return currentPrice >= st.CurrentSL
}

// Get returns the current state for a trade-id, if any.
func (m *Machine) Get(tradeID string) (risktypes.StopLossState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[tradeID]
	return st, ok
}

// Close discards the state for a closed trade.
func (m *Machine) Close(tradeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, tradeID)
}

func isInf(v float64) bool {
	return math.IsInf(v, 0)
}
