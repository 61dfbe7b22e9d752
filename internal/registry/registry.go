// Package registry implements the Position Registry: open positions
// keyed by trade-id, plus the per-pair and per-strategy timestamps the
// Entry Gate consults for cooldowns.
package registry

import (
	"fmt"
	"sync"
	"time"

	"riskengine/internal/risktypes"
)

// dailyTradeCounter is the slice of the Ledger that Register needs;
// kept as a narrow interface so registry does not otherwise depend on
// ledger's internals.
type dailyTradeCounter interface {
	IncrementDailyTrades()
}

type strategyCloseKey struct {
	pair     string
	strategy string
	side     risktypes.Side
}

// Registry tracks open positions and the cooldown timestamps derived
// from registrations and closes. It is mutated only by its single
// owner (the engine).
type Registry struct {
	mu sync.RWMutex

	clock risktypes.Clock

	positions map[string]risktypes.Position
	lastTrade map[string]time.Time
	lastClose map[strategyCloseKey]time.Time

	ledger dailyTradeCounter
}

// New builds an empty Registry. ledger may be nil in tests that don't
// care about the daily-trade counter.
func New(clock risktypes.Clock, ledger dailyTradeCounter) *Registry {
	return &Registry{
		clock:     clock,
		positions: make(map[string]risktypes.Position),
		lastTrade: make(map[string]time.Time),
		lastClose: make(map[strategyCloseKey]time.Time),
		ledger:    ledger,
	}
}

// Register records a newly confirmed position, stamps the pair's
// cooldown clock, and increments the ledger's daily-trade counter.
func (r *Registry) Register(tradeID, pair string, side risktypes.Side, entry, sizeUSD float64, strategy string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	r.positions[tradeID] = risktypes.Position{
		TradeID:  tradeID,
		Pair:     pair,
		Side:     side,
		Entry:    entry,
		SizeUSD:  sizeUSD,
		Strategy: strategy,
		OpenedAt: now,
	}
	r.lastTrade[pair] = now
	if r.ledger != nil {
		r.ledger.IncrementDailyTrades()
	}
}

// Reduce shrinks an open position's size_usd. fraction, if non-zero,
// takes precedence over absUSD and is clamped to [0, 1]; the result
// is clamped to a non-negative size_usd.
func (r *Registry) Reduce(tradeID string, fraction, absUSD float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[tradeID]
	if !ok {
		return 0, fmt.Errorf("registry: unknown trade_id %q", tradeID)
	}

	var newSize float64
	if fraction != 0 {
		f := fraction
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		newSize = pos.SizeUSD * (1 - f)
	} else {
		newSize = pos.SizeUSD - absUSD
	}
	if newSize < 0 {
		newSize = 0
	}

	pos.SizeUSD = newSize
	r.positions[tradeID] = pos
	return newSize, nil
}

// Close removes and returns the position record. The caller is
// responsible for passing realised P&L to the Ledger separately.
func (r *Registry) Close(tradeID string) (risktypes.Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[tradeID]
	if !ok {
		return risktypes.Position{}, false
	}
	delete(r.positions, tradeID)

	if pos.Strategy != "" {
		key := strategyCloseKey{pair: pos.Pair, strategy: pos.Strategy, side: pos.Side}
		r.lastClose[key] = r.clock.Now()
	}
	return pos, true
}

// Get returns the open position for a trade-id, if any.
func (r *Registry) Get(tradeID string) (risktypes.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.positions[tradeID]
	return pos, ok
}

// Count returns the number of currently open positions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions)
}

// CountInGroup returns the number of open positions whose pair maps to
// the given correlation group under groupOf.
func (r *Registry) CountInGroup(group string, groupOf func(pair string) string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, pos := range r.positions {
		if groupOf(pos.Pair) == group {
			n++
		}
	}
	return n
}

// HasOpenPair reports whether any open position exists for the pair.
func (r *Registry) HasOpenPair(pair string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, pos := range r.positions {
		if pos.Pair == pair {
			return true
		}
	}
	return false
}

// TotalExposureUSD sums size_usd over all open positions.
func (r *Registry) TotalExposureUSD() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total float64
	for _, pos := range r.positions {
		total += pos.SizeUSD
	}
	return total
}

// LastTradeTime returns the most recent registration time for a pair.
func (r *Registry) LastTradeTime(pair string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.lastTrade[pair]
	return t, ok
}

// LastCloseTime returns the most recent close time for (pair, strategy, side).
func (r *Registry) LastCloseTime(pair, strategy string, side risktypes.Side) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.lastClose[strategyCloseKey{pair: pair, strategy: strategy, side: side}]
	return t, ok
}

// Snapshot returns a copy of all open positions, for recovery/reporting.
func (r *Registry) Snapshot() []risktypes.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]risktypes.Position, 0, len(r.positions))
	for _, pos := range r.positions {
		out = append(out, pos)
	}
	return out
}

// Restore directly installs a position without touching last_trade_time
// or the daily-trade counter — used by Recovery, which must rebuild
// state without re-triggering cooldowns or inflating today's trade count.
func (r *Registry) Restore(pos risktypes.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[pos.TradeID] = pos
}
