// Package ledger implements the Portfolio Ledger: bankroll, peak,
// drawdown, daily P&L, streaks, and the bounded trade-history ring
// used by the risk-of-ruin estimator and the sizing pipeline.
package ledger

import (
	"sync"
	"time"

	"riskengine/internal/risktypes"
)

// Snapshot is the Ledger's read-only view of its own scalars, used by
// the sizing pipeline, entry gate, and reporting.
type Snapshot struct {
	CurrentBankroll     float64
	PeakBankroll        float64
	MaxDrawdown         float64
	DailyPnL            float64
	DailyTrades         int
	ConsecutiveWins     int
	ConsecutiveLosses   int
	TradeHistoryLen     int
	GlobalCooldownUntil time.Time
}

// Ledger tracks bankroll, drawdown, daily accounting, streaks, and the
// trade-history ring. It is mutated only by its single owner (the
// engine); Snapshot is the only operation safe to call concurrently
// with mutation under the caller's own read-write discipline.
type Ledger struct {
	mu sync.Mutex

	clock risktypes.Clock

	initialBankroll float64
	currentBankroll float64
	peakBankroll    float64
	maxDrawdown     float64

	dailyPnL       float64
	dailyTrades    int
	dailyResetDate string

	consecutiveWins   int
	consecutiveLosses int

	history  []risktypes.TradeHistoryEntry
	capacity int

	globalCooldownUntil time.Time
	postLossCooldown    time.Duration
}

// New builds a Ledger with the given starting bankroll. postLossCooldown
// of 0 disables the post-loss global cooldown.
func New(clock risktypes.Clock, initialBankroll float64, capacity int, postLossCooldown time.Duration) *Ledger {
	now := clock.Now()
	return &Ledger{
		clock:            clock,
		initialBankroll:  initialBankroll,
		currentBankroll:  initialBankroll,
		peakBankroll:     initialBankroll,
		dailyResetDate:   dateString(now),
		capacity:         capacity,
		postLossCooldown: postLossCooldown,
	}
}

// InitialBankroll returns the configured starting bankroll, which
// anchors the daily-loss ceiling for the lifetime of the engine.
func (l *Ledger) InitialBankroll() float64 {
	return l.initialBankroll
}

// RecordClose accounts for a realised P&L: appends to trade history,
// updates bankroll/peak/drawdown, updates streaks, and — on a losing
// trade — arms the post-loss global cooldown.
func (l *Ledger) RecordClose(pnl float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.appendHistory(risktypes.TradeHistoryEntry{PnL: pnl, Time: now})

	l.currentBankroll += pnl
	l.dailyPnL += pnl

	if l.currentBankroll > l.peakBankroll {
		l.peakBankroll = l.currentBankroll
	}
	drawdown := 0.0
	if l.peakBankroll > 0 {
		drawdown = (l.peakBankroll - l.currentBankroll) / l.peakBankroll
		drawdown = clamp01(drawdown)
	}
	if drawdown > l.maxDrawdown {
		l.maxDrawdown = drawdown
	}

	switch {
	case pnl > 0:
		l.consecutiveWins++
		l.consecutiveLosses = 0
	case pnl < 0:
		l.consecutiveLosses++
		l.consecutiveWins = 0
		if l.postLossCooldown > 0 {
			l.globalCooldownUntil = now.Add(l.postLossCooldown)
		}
	}
}

func (l *Ledger) appendHistory(e risktypes.TradeHistoryEntry) {
	if l.capacity <= 0 {
		l.history = append(l.history, e)
		return
	}
	if len(l.history) >= l.capacity {
		l.history = l.history[1:]
	}
	l.history = append(l.history, e)
}

// DailyResetIfNeeded zeroes daily_pnl, daily_trades, and both streaks
// when the UTC calendar date has rolled over since the last reset.
func (l *Ledger) DailyResetIfNeeded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	today := dateString(l.clock.Now())
	if today == l.dailyResetDate {
		return
	}
	l.dailyPnL = 0
	l.dailyTrades = 0
	l.consecutiveWins = 0
	l.consecutiveLosses = 0
	l.dailyResetDate = today
}

// ForceDailyReset zeroes daily_pnl, daily_trades, and both streaks
// unconditionally, regardless of the UTC calendar date. Used by the
// engine's reset_runtime operation for manual operator intervention,
// distinct from DailyResetIfNeeded's date-gated automatic rollover.
func (l *Ledger) ForceDailyReset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dailyPnL = 0
	l.dailyTrades = 0
	l.consecutiveWins = 0
	l.consecutiveLosses = 0
	l.dailyResetDate = dateString(l.clock.Now())
}

// IncrementDailyTrades is invoked by the Position Registry on every
// new registration so the entry gate's daily trade cap stays accurate.
func (l *Ledger) IncrementDailyTrades() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dailyTrades++
}

// GlobalCooldownActive reports whether a post-loss cooldown is
// currently in force.
func (l *Ledger) GlobalCooldownActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.globalCooldownUntil.After(l.clock.Now())
}

// TradeHistory returns a copy of the bounded trade-history ring, in
// insertion order (oldest first), for the risk-of-ruin estimator.
func (l *Ledger) TradeHistory() []risktypes.TradeHistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]risktypes.TradeHistoryEntry, len(l.history))
	copy(out, l.history)
	return out
}

// Snapshot returns the Ledger's current scalars. Pure read; does not
// invoke DailyResetIfNeeded (callers crossing midnight may briefly
// observe stale daily_pnl/daily_trades — an intentional read-only
// purity trade-off).
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		CurrentBankroll:     l.currentBankroll,
		PeakBankroll:        l.peakBankroll,
		MaxDrawdown:         l.maxDrawdown,
		DailyPnL:            l.dailyPnL,
		DailyTrades:         l.dailyTrades,
		ConsecutiveWins:     l.consecutiveWins,
		ConsecutiveLosses:   l.consecutiveLosses,
		TradeHistoryLen:     len(l.history),
		GlobalCooldownUntil: l.globalCooldownUntil,
	}
}

// CurrentDrawdown returns (peak - current) / peak, clamped to [0, 1].
func (l *Ledger) CurrentDrawdown() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.peakBankroll <= 0 {
		return 0
	}
	return clamp01((l.peakBankroll - l.currentBankroll) / l.peakBankroll)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dateString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
