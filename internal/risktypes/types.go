// Package risktypes holds the data model shared across the risk
// engine's components: positions, stop-loss state, trade proposals,
// sizing results, and the reporting snapshot.
package risktypes

import "time"

// Side identifies the direction of a position.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Position is the Position Registry's record for one open trade.
type Position struct {
	TradeID   string
	Pair      string
	Side      Side
	Entry     float64
	SizeUSD   float64
	Strategy  string
	OpenedAt  time.Time
}

// TradeHistoryEntry is one ring-buffer record in the Portfolio Ledger.
type TradeHistoryEntry struct {
	PnL  float64
	Time time.Time
}

// TradeProposal is the input to the Entry Gate and Sizing Pipeline.
type TradeProposal struct {
	Pair               string
	Side               Side
	Entry              float64
	Stop               float64
	TakeProfit         float64
	WinRate            float64
	AvgWinLossRatio    float64
	Confidence         float64
	SpreadPct          float64
	VolRegime          string // "low_vol", "high_vol", or ""
	VolLevel           float64
	VolExpanding       bool
	Strategy           string
	Stale              bool
	Now                time.Time
}

// PositionSizeResult is the Sizing Pipeline's output.
type PositionSizeResult struct {
	SizeUSD           float64
	SizeUnits         float64
	RiskAmount        float64
	KellyFraction     float64
	KellyFallbackUsed bool
	StopDistancePct   float64
	RiskRewardRatio   float64
	Allowed           bool
	Reason            string
}

// GateResult is the Entry Gate's output.
type GateResult struct {
	Allowed bool
	Reason  string
}

// StopLossState is the Stop-Loss State Machine's per-trade state.
type StopLossState struct {
	InitialSL          float64
	CurrentSL          float64
	BreakevenActivated bool
	TrailingActivated  bool
	TrailingHigh       float64
	TrailingLow        float64
}

type stopLossStateJSON struct {
	InitialSL          float64  `json:"initial_sl"`
	CurrentSL          float64  `json:"current_sl"`
	BreakevenActivated bool     `json:"breakeven_activated"`
	TrailingActivated  bool     `json:"trailing_activated"`
	TrailingHigh       float64  `json:"trailing_high"`
	TrailingLow        *float64 `json:"trailing_low"`
}

// MarshalJSON serialises trailing_low as null when it holds the +Inf
// sentinel, per spec.md's StopLossState persistence form.
func (s StopLossState) MarshalJSON() ([]byte, error) {
	out := stopLossStateJSON{
		InitialSL:          s.InitialSL,
		CurrentSL:          s.CurrentSL,
		BreakevenActivated: s.BreakevenActivated,
		TrailingActivated:  s.TrailingActivated,
		TrailingHigh:       s.TrailingHigh,
	}
	if !isPosInf(s.TrailingLow) {
		v := s.TrailingLow
		out.TrailingLow = &v
	}
	return jsonMarshal(out)
}

// UnmarshalJSON reconstructs the +Inf sentinel for trailing_low when
// the serialised value was null.
func (s *StopLossState) UnmarshalJSON(data []byte) error {
	var in stopLossStateJSON
	if err := jsonUnmarshal(data, &in); err != nil {
		return err
	}
	s.InitialSL = in.InitialSL
	s.CurrentSL = in.CurrentSL
	s.BreakevenActivated = in.BreakevenActivated
	s.TrailingActivated = in.TrailingActivated
	s.TrailingHigh = in.TrailingHigh
	if in.TrailingLow == nil {
		s.TrailingLow = PositiveInfinity
	} else {
		s.TrailingLow = *in.TrailingLow
	}
	return nil
}

// TradeRecord is the shape of a persisted open trade, as returned by
// the Store contract's GetOpenTrades and consumed by Recovery.
type TradeRecord struct {
	TradeID    string
	Pair       string
	Side       Side
	EntryPrice float64
	Quantity   float64
	StopLoss   float64
	Strategy   string
	Metadata   string // opaque JSON payload, tolerated if malformed
}

// TradeMetadata is the optional structured payload a TradeRecord's
// Metadata field may carry.
type TradeMetadata struct {
	SizeUSD      *float64 `json:"size_usd,omitempty"`
	TrailingHigh *float64 `json:"trailing_high,omitempty"`
	TrailingLow  *float64 `json:"trailing_low,omitempty"`
}

// FillConfirmation is what the order router returns on a confirmed
// fill (external collaborator, consumed not implemented by the core).
type FillConfirmation struct {
	TradeID    string
	FillPrice  float64
	Fees       float64
	Slippage   float64
	FilledAt   time.Time
}

// Report is the Reporting component's flat, read-only snapshot.
type Report struct {
	Bankroll               float64
	InitialBankroll        float64
	TotalReturnPct         float64
	PeakBankroll           float64
	CurrentDrawdownPct     float64
	MaxDrawdownPct         float64
	DailyPnL               float64
	DailyTrades            int
	OpenPositions          int
	TotalExposureUSD       float64
	RiskOfRuin             float64
	CurrentDrawdownFactor  float64
	RemainingCapacityUSD   float64
	MaxDailyLossConfigured float64
	MaxPositionUSD         float64
	MaxConcurrentPositions int
	TradeCount             int
	ConsecutiveWins        int
	ConsecutiveLosses      int
}
