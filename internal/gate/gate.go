// Package gate implements the Entry Gate: the ordered pre-trade
// checks that return an allow/deny decision with a structured reason
// before any sizing is attempted.
package gate

import (
	"time"

	"riskengine/internal/common"
	"riskengine/internal/ledger"
	"riskengine/internal/registry"
	"riskengine/internal/risktypes"
	"riskengine/internal/ruin"
)

// TradesSinceFunc answers "how many trades has the caller's store
// recorded since cutoff", backing the trade-rate cap. It is expected
// to be a thin, TTL-cached wrapper around the persistence layer's
// count_trades_since — the gate itself performs no I/O.
type TradesSinceFunc func(cutoff time.Time) int

// Config holds the subset of Settings the Entry Gate consults.
type Config struct {
	MaxDailyLoss           float64
	PairCooldown           time.Duration
	MaxConcurrentPositions int
	MaxDailyTrades         int
	RiskOfRuinThreshold    float64
	CorrelationGroups      map[string]string
	GroupMaxPositions      map[string]int
	MaxTradesPerHour       int
	QuietHoursUTC          []int
	AllowDuplicatePairs    bool
}

// Gate evaluates the ordered pre-trade checks.
type Gate struct {
	clock        risktypes.Clock
	cfg          Config
	ledger       *ledger.Ledger
	registry     *registry.Registry
	tradesSince  TradesSinceFunc
}

// New builds a Gate. tradesSince may be nil, which disables the
// trade-rate cap regardless of configuration.
func New(clock risktypes.Clock, cfg Config, l *ledger.Ledger, r *registry.Registry, tradesSince TradesSinceFunc) *Gate {
	return &Gate{clock: clock, cfg: cfg, ledger: l, registry: r, tradesSince: tradesSince}
}

func (g *Gate) groupOf(pair string) string {
	return g.cfg.CorrelationGroups[pair]
}

// Check runs every pre-trade check in spec order and returns the
// first failure, or an allowed result if all pass.
func (g *Gate) Check(p risktypes.TradeProposal) risktypes.GateResult {
	now := g.clock.Now()

	// 1. Global cooldown.
	if g.ledger.GlobalCooldownActive() {
		return deny(common.ReasonGlobalCooldown)
	}

	// 2. Daily reset (side effect), then daily loss limit anchored to
	// initial bankroll.
	g.ledger.DailyResetIfNeeded()
	snap := g.ledger.Snapshot()
	if snap.DailyPnL <= -(g.ledger.InitialBankroll() * g.cfg.MaxDailyLoss) {
		return deny(common.ReasonDailyLossLimit)
	}

	// 3. Per-pair cooldown.
	if last, ok := g.registry.LastTradeTime(p.Pair); ok && now.Sub(last) < g.cfg.PairCooldown {
		return deny(common.ReasonPairCooldown)
	}

	// 4. Max concurrent positions.
	if g.registry.Count() >= g.cfg.MaxConcurrentPositions {
		return deny(common.ReasonMaxConcurrent)
	}

	// 5. Daily trade cap (0 = unlimited).
	if g.cfg.MaxDailyTrades > 0 && snap.DailyTrades >= g.cfg.MaxDailyTrades {
		return deny(common.ReasonDailyTradeCap)
	}

	// 6. Risk of ruin.
	if ruin.Estimate(g.ledger.TradeHistory(), snap.CurrentBankroll) > g.cfg.RiskOfRuinThreshold {
		return deny(common.ReasonRiskOfRuin)
	}

	// 7. Correlation group cap (supplemented).
	if group := g.groupOf(p.Pair); group != "" {
		if max, ok := g.cfg.GroupMaxPositions[group]; ok && g.registry.CountInGroup(group, g.groupOf) >= max {
			return deny(common.ReasonCorrelationGroup)
		}
	}

	// 8. Trade-rate cap (supplemented).
	if g.cfg.MaxTradesPerHour > 0 && g.tradesSince != nil {
		if g.tradesSince(now.Add(-time.Hour)) >= g.cfg.MaxTradesPerHour {
			return deny(common.ReasonTradeRateCap)
		}
	}

	// 9. Quiet hours (supplemented).
	if len(g.cfg.QuietHoursUTC) > 0 {
		hour := now.UTC().Hour()
		for _, h := range g.cfg.QuietHoursUTC {
			if h == hour {
				return deny(common.ReasonQuietHours)
			}
		}
	}

	// 10. Duplicate pair (supplemented).
	if !g.cfg.AllowDuplicatePairs && g.registry.HasOpenPair(p.Pair) {
		return deny(common.ReasonDuplicatePair)
	}

	// 11. Market-data staleness (supplemented).
	if p.Stale {
		return deny(common.ReasonStaleData)
	}

	return risktypes.GateResult{Allowed: true}
}

func deny(reason string) risktypes.GateResult {
	return risktypes.GateResult{Allowed: false, Reason: reason}
}
