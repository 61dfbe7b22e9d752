// Package sizing implements the Sizing Pipeline: fixed-fractional base
// size, a conditional Kelly cap, a chain of multiplicative derating
// factors, and a final exposure clamp.
package sizing

import (
	"fmt"
	"math"

	"riskengine/internal/common"
	"riskengine/internal/gate"
	"riskengine/internal/ledger"
	"riskengine/internal/registry"
	"riskengine/internal/risktypes"
)

// Config holds the subset of Settings the Sizing Pipeline consults.
type Config struct {
	MaxRiskPerTrade     float64
	MaxPositionUSD      float64
	KellySafetyFraction float64
	KellyCap            float64 // hard ceiling on the Kelly-derived fraction itself
	MaxTotalExposurePct float64
	MinRiskRewardRatio  float64
}

// Pipeline computes sized orders from trade proposals, consulting the
// Entry Gate first and the Ledger/Registry for the derating factors.
type Pipeline struct {
	cfg      Config
	gate     *gate.Gate
	ledger   *ledger.Ledger
	registry *registry.Registry
}

// New builds a Pipeline.
func New(cfg Config, g *gate.Gate, l *ledger.Ledger, r *registry.Registry) *Pipeline {
	return &Pipeline{cfg: cfg, gate: g, ledger: l, registry: r}
}

const minSizeUSD = 10.0
const kellySampleFloor = 50

// CalculatePositionSize runs the ordered 15-step sizing pipeline.
// Every step may short-circuit with Allowed=false and a reason; the
// multiplicative factors (steps 8-11) are applied strictly in the
// order below so composition is exactly reproducible.
func (p *Pipeline) CalculatePositionSize(tp risktypes.TradeProposal) risktypes.PositionSizeResult {
	// 1. Entry-gate check.
	if gr := p.gate.Check(tp); !gr.Allowed {
		return risktypes.PositionSizeResult{Allowed: false, Reason: gr.Reason}
	}

	// 2. Price validity.
	if tp.Entry <= 0 || tp.Stop <= 0 {
		return deny(common.ReasonInvalidPrice)
	}

	// 3. Bankroll guard.
	snap := p.ledger.Snapshot()
	if snap.CurrentBankroll <= 0 {
		return deny(common.ReasonBankrollExhausted)
	}

	// 4. Stop distance.
	slPct := math.Abs(tp.Entry-tp.Stop) / tp.Entry
	if !(slPct > 0 && slPct <= 0.10) {
		return deny(common.ReasonStopDistanceInvalid)
	}

	// 5. Risk-reward ratio.
	rr := math.Abs(tp.TakeProfit-tp.Entry) / math.Abs(tp.Entry-tp.Stop)
	if rr < p.cfg.MinRiskRewardRatio {
		return deny(common.ReasonRiskRewardTooLow)
	}

	// 6. Base fixed-fractional size.
	size := snap.CurrentBankroll * p.cfg.MaxRiskPerTrade / slPct

	// 7. Conditional Kelly cap.
	kellyFallback := false
	b := tp.AvgWinLossRatio
	if b <= 0 {
		b = 1.0
		kellyFallback = true
	}
	q := 1 - tp.WinRate
	kellyFull := math.Max((tp.WinRate*b-q)/b, 0)
	kellyAdj := math.Min(kellyFull*p.cfg.KellySafetyFraction*tp.Confidence, p.cfg.KellyCap)
	history := p.ledger.TradeHistory()
	if len(history) >= kellySampleFloor && kellyFull > 0 {
		size = math.Min(size, snap.CurrentBankroll*kellyAdj)
	}

	// 8. Drawdown derating.
	drawdown := p.ledger.CurrentDrawdown()
	ddFactor := drawdownFactor(drawdown)
	size *= ddFactor

	// 9. Streak factor.
	size *= streakFactor(snap.ConsecutiveWins, snap.ConsecutiveLosses)

	// 10. Spread penalty.
	if tp.SpreadPct > 0.001 {
		size *= math.Max(0.5, 1-50*(tp.SpreadPct-0.001))
	}

	// 11. Volatility factor.
	size *= volatilityFactor(tp)

	// 12. Hard cap.
	size = math.Min(size, p.cfg.MaxPositionUSD)

	// 13. Exposure clamp.
	remaining := snap.CurrentBankroll*p.cfg.MaxTotalExposurePct - p.registry.TotalExposureUSD()
	if remaining < 0 {
		remaining = 0
	}
	size = math.Min(size, remaining)

	// 14. Minimum size floor.
	if size < minSizeUSD {
		return risktypes.PositionSizeResult{
			Allowed: false,
			Reason: fmt.Sprintf(
				"%s (kelly_adj=%.4f sl_pct=%.4f drawdown_factor=%.2f remaining_capacity=%.2f)",
				common.ReasonSizeBelowMinimum, kellyAdj, slPct, ddFactor, remaining,
			),
			KellyFraction:     kellyAdj,
			KellyFallbackUsed: kellyFallback,
			StopDistancePct:   slPct,
			RiskRewardRatio:   rr,
		}
	}

	// 15. Final output.
	sizeUnits := math.Round(size/tp.Entry*1e8) / 1e8
	riskAmount := size * slPct

	return risktypes.PositionSizeResult{
		SizeUSD:           size,
		SizeUnits:         sizeUnits,
		RiskAmount:        riskAmount,
		KellyFraction:     kellyAdj,
		KellyFallbackUsed: kellyFallback,
		StopDistancePct:   slPct,
		RiskRewardRatio:   rr,
		Allowed:           true,
	}
}

func drawdownFactor(d float64) float64 {
	switch {
	case d < 0.03:
		return 1.00
	case d < 0.07:
		return 0.80
	case d < 0.12:
		return 0.60
	case d < 0.18:
		return 0.35
	default:
		return 0.15
	}
}

func streakFactor(wins, losses int) float64 {
	switch {
	case losses >= 3:
		return math.Max(0.4, 1-0.15*float64(losses-2))
	case wins >= 3:
		return math.Min(1.2, 1+0.05*float64(wins-2))
	default:
		return 1.0
	}
}

func volatilityFactor(tp risktypes.TradeProposal) float64 {
	factor := 1.0
	switch {
	case tp.VolRegime == "low_vol" && tp.VolLevel < 0.3:
		factor = 1.15
	case tp.VolRegime == "high_vol":
		switch {
		case tp.VolLevel > 0.8:
			factor = 0.60
		case tp.VolLevel > 0.7:
			factor = 0.70
		default:
			factor = 0.80
		}
	}
	if tp.VolExpanding {
		factor *= 0.60
	}
	if factor < 0.30 {
		factor = 0.30
	}
	return factor
}

func deny(reason string) risktypes.PositionSizeResult {
	return risktypes.PositionSizeResult{Allowed: false, Reason: reason}
}
