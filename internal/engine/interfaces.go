// Package engine wires the Ledger, Position Registry, Stop-Loss State
// Machine, Risk-of-Ruin Estimator, Entry Gate, Sizing Pipeline, and
// Recovery into a single actor exposing the risk engine's full
// operation surface for one tenant.
package engine

import (
	"time"

	"riskengine/internal/risktypes"
)

// Store is the persistence contract the engine's caller is expected to
// satisfy. The engine core never performs I/O itself; Recovery is
// driven from records the caller already fetched through this
// contract.
type Store interface {
	GetOpenTrades(tenant string) ([]risktypes.TradeRecord, error)
	InsertTrade(rec risktypes.TradeRecord) error
	UpdateTrade(rec risktypes.TradeRecord) error
	CloseTrade(tradeID string, realizedPnL float64) error
	CountTradesSince(cutoff time.Time) (int, error)
	LogThought(tradeID, note string) error
}

// MarketData is the price-feed contract consulted by callers before
// building a TradeProposal; the engine core only ever sees the
// resulting price/spread/staleness values on the proposal itself.
type MarketData interface {
	GetLatestPrice(pair string) (float64, error)
	GetSpread(pair string) (float64, error)
	IsStale(pair string) bool
}

// OrderRouter is the execution contract; the engine core never places
// orders, it only consumes the resulting FillConfirmation.
type OrderRouter interface {
	Confirm(tradeID string) (risktypes.FillConfirmation, error)
}
