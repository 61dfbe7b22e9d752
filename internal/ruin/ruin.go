// Package ruin implements the Risk-of-Ruin Estimator: a statistical
// estimate of bankroll exhaustion probability drawn from trade
// history, gated on sample size.
//
// Deliberately scalar: no vectorised math library backs this
// computation — a handful of running sums over at most a few thousand
// samples needs nothing more.
package ruin

import (
	"math"

	"riskengine/internal/risktypes"
)

// MinSampleSize is the minimum closed-trade count required before an
// estimate is produced; below it, Estimate returns 0.
const MinSampleSize = 50

// Estimate computes the risk-of-ruin probability from trade history
// and the current bankroll, per the formula:
//
//	edge = w*avgWin - (1-w)*avgLoss
//	RoR = ((1 - edge/avgBet) / (1 + edge/avgBet)) ^ (bankroll/avgBet)
//
// returning a value in [0, 1]. Numeric failure (overflow, division by
// zero) returns 0, never blocking trading on an indeterminate estimate.
func Estimate(history []risktypes.TradeHistoryEntry, currentBankroll float64) float64 {
	if len(history) < MinSampleSize {
		return 0
	}

	var wins, losses int
	var sumWin, sumLoss, sumAbs float64
	for _, e := range history {
		sumAbs += math.Abs(e.PnL)
		if e.PnL > 0 {
			wins++
			sumWin += e.PnL
		} else {
			losses++
			sumLoss += -e.PnL
		}
	}
	total := wins + losses
	if wins == 0 || losses == 0 {
		return 0
	}

	winRate := float64(wins) / float64(total)
	avgWin := sumWin / float64(wins)
	avgLoss := sumLoss / float64(losses)
	avgBet := sumAbs / float64(total)

	edge := winRate*avgWin - (1-winRate)*avgLoss
	if edge <= 0 {
		return 1
	}
	if avgBet == 0 {
		return 0
	}

	units := currentBankroll / avgBet
	if units <= 0 {
		return 1
	}

	edgeRatio := edge / avgBet
	if edgeRatio >= 1 {
		return 0
	}

	base := (1 - edgeRatio) / (1 + edgeRatio)
	ror := math.Pow(base, units)
	if math.IsNaN(ror) || math.IsInf(ror, 0) {
		return 0
	}
	return clamp01(ror)
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
