// Package recovery rebuilds the Position Registry and Stop-Loss State
// Machine from persisted trade records on startup, tolerant of
// malformed metadata.
package recovery

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"riskengine/internal/registry"
	"riskengine/internal/risktypes"
	"riskengine/internal/stoploss"
)

// ReinitializeFromRecords rebuilds reg and sl from persisted trade
// records. A record with malformed metadata falls back to computed
// size_usd and default trailing seeds rather than failing the batch.
func ReinitializeFromRecords(reg *registry.Registry, sl *stoploss.Machine, records []risktypes.TradeRecord) {
	for _, rec := range records {
		sizeUSD, trailingHigh, trailingLow := decodeMetadata(rec)

		reg.Restore(risktypes.Position{
			TradeID:  rec.TradeID,
			Pair:     rec.Pair,
			Side:     rec.Side,
			Entry:    rec.EntryPrice,
			SizeUSD:  sizeUSD,
			Strategy: rec.Strategy,
		})

		if rec.StopLoss > 0 {
			sl.Initialise(rec.TradeID, rec.EntryPrice, rec.StopLoss, rec.Side, trailingHigh, trailingLow)
		}
	}
}

// decodeMetadata extracts size_usd and the trailing extremes from a
// record's opaque metadata payload. Unparseable or partially-populated
// metadata is tolerated: each field independently falls back to its
// computed/default value rather than discarding the whole record.
func decodeMetadata(rec risktypes.TradeRecord) (sizeUSD float64, trailingHigh, trailingLow *float64) {
	sizeUSD = rec.EntryPrice * rec.Quantity

	if rec.Metadata == "" {
		return sizeUSD, nil, nil
	}

	var meta risktypes.TradeMetadata
	if err := json.Unmarshal([]byte(rec.Metadata), &meta); err != nil {
		log.Warn().Str("trade_id", rec.TradeID).Err(err).Msg("recovery: malformed trade metadata, using computed defaults")
		return sizeUSD, nil, nil
	}

	if meta.SizeUSD != nil {
		sizeUSD = *meta.SizeUSD
	}
	return sizeUSD, meta.TrailingHigh, meta.TrailingLow
}
