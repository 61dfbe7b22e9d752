// Package boltstore implements the risk engine's Store contract on top
// of BoltDB, persisting open trades and operator/engine thought-log
// entries across restarts so Recovery has something to rebuild from.
package boltstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"riskengine/internal/risktypes"
)

const (
	tradesBucket   = "trades"
	thoughtsBucket = "thoughts"
)

// record is the envelope persisted per trade: everything the engine's
// risktypes.TradeRecord carries, plus the bookkeeping fields (tenant,
// timestamps, close state) the Store contract needs but the engine's
// in-memory TradeRecord does not.
type record struct {
	TradeID     string    `json:"trade_id"`
	Tenant      string    `json:"tenant"`
	Pair        string    `json:"pair"`
	Side        string    `json:"side"`
	EntryPrice  float64   `json:"entry_price"`
	Quantity    float64   `json:"quantity"`
	StopLoss    float64   `json:"stop_loss"`
	Strategy    string    `json:"strategy"`
	Metadata    string    `json:"metadata"`
	InsertedAt  time.Time `json:"inserted_at"`
	Closed      bool      `json:"closed"`
	RealizedPnL float64   `json:"realized_pnl,omitempty"`
	ClosedAt    time.Time `json:"closed_at,omitempty"`
}

// Store provides persistent storage for the risk engine's open trades
// and thought log using BoltDB.
type Store struct {
	db    *bbolt.DB
	clock risktypes.Clock
}

// New opens (creating if necessary) a BoltDB database under dataPath
// and ensures the trades/thoughts buckets exist.
func New(dataPath string, clock risktypes.Clock) (*Store, error) {
	dbPath := filepath.Join(dataPath, "riskengine-data.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(tradesBucket)); err != nil {
			return fmt.Errorf("create trades bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(thoughtsBucket)); err != nil {
			return fmt.Errorf("create thoughts bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, clock: clock}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetOpenTrades returns every not-yet-closed trade recorded for tenant,
// used by the engine's ReinitializeFromRecords at startup.
func (s *Store) GetOpenTrades(tenant string) ([]risktypes.TradeRecord, error) {
	var out []risktypes.TradeRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(tradesBucket))
		return b.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // skip malformed records
			}
			if rec.Closed || rec.Tenant != tenant {
				return nil
			}
			out = append(out, risktypes.TradeRecord{
				TradeID:    rec.TradeID,
				Pair:       rec.Pair,
				Side:       risktypes.Side(rec.Side),
				EntryPrice: rec.EntryPrice,
				Quantity:   rec.Quantity,
				StopLoss:   rec.StopLoss,
				Strategy:   rec.Strategy,
				Metadata:   rec.Metadata,
			})
			return nil
		})
	})
	return out, err
}

// InsertTrade persists a newly-registered open trade. risktypes.TradeRecord
// has no dedicated tenant field, so the tenant is read from the "tenant"
// key of rec.Metadata, defaulting to "default" (see tenantOf).
func (s *Store) InsertTrade(rec risktypes.TradeRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(tradesBucket))
		stored := record{
			TradeID:    rec.TradeID,
			Tenant:     tenantOf(rec),
			Pair:       rec.Pair,
			Side:       string(rec.Side),
			EntryPrice: rec.EntryPrice,
			Quantity:   rec.Quantity,
			StopLoss:   rec.StopLoss,
			Strategy:   rec.Strategy,
			Metadata:   rec.Metadata,
			InsertedAt: s.clock.Now(),
		}
		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal trade: %w", err)
		}
		return b.Put([]byte(rec.TradeID), data)
	})
}

// UpdateTrade overwrites an existing trade's mutable fields (stop-loss
// and metadata track trailing-stop state), leaving its tenant, entry
// price, and timestamps untouched.
func (s *Store) UpdateTrade(rec risktypes.TradeRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(tradesBucket))
		existing := b.Get([]byte(rec.TradeID))
		if existing == nil {
			return fmt.Errorf("update_trade: unknown trade_id %q", rec.TradeID)
		}
		var stored record
		if err := json.Unmarshal(existing, &stored); err != nil {
			return fmt.Errorf("unmarshal existing trade: %w", err)
		}
		stored.StopLoss = rec.StopLoss
		stored.Metadata = rec.Metadata
		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal trade: %w", err)
		}
		return b.Put([]byte(rec.TradeID), data)
	})
}

// CloseTrade marks a trade closed with its realised P&L. The record is
// kept (not deleted) so CountTradesSince can still see it.
func (s *Store) CloseTrade(tradeID string, realizedPnL float64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(tradesBucket))
		existing := b.Get([]byte(tradeID))
		if existing == nil {
			return fmt.Errorf("close_trade: unknown trade_id %q", tradeID)
		}
		var stored record
		if err := json.Unmarshal(existing, &stored); err != nil {
			return fmt.Errorf("unmarshal existing trade: %w", err)
		}
		stored.Closed = true
		stored.RealizedPnL = realizedPnL
		stored.ClosedAt = s.clock.Now()
		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal trade: %w", err)
		}
		return b.Put([]byte(tradeID), data)
	})
}

// CountTradesSince counts trades inserted at or after cutoff, backing
// the gate's trade-rate cap (via the engine's NewCachedTradesSince TTL
// wrapper — this method itself is uncached and does a full bucket
// scan).
func (s *Store) CountTradesSince(cutoff time.Time) (int, error) {
	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(tradesBucket))
		return b.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			if !rec.InsertedAt.Before(cutoff) {
				count++
			}
			return nil
		})
	})
	return count, err
}

// LogThought appends a free-text note against a trade id, keyed by
// trade_id_timestamp for chronological range scans.
func (s *Store) LogThought(tradeID, note string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(thoughtsBucket))
		key := []byte(fmt.Sprintf("%s_%d", tradeID, s.clock.Now().UnixNano()))
		return b.Put(key, []byte(note))
	})
}

// ThoughtsFor returns every logged note for tradeID in insertion order.
func (s *Store) ThoughtsFor(tradeID string) ([]string, error) {
	var notes []string
	prefix := []byte(tradeID + "_")

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(thoughtsBucket))
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			notes = append(notes, string(v))
		}
		return nil
	})
	return notes, err
}

// tenantOf recovers the tenant tag a caller stashed in a TradeRecord's
// Metadata JSON under the "tenant" key, defaulting to "default" when
// absent.
func tenantOf(rec risktypes.TradeRecord) string {
	if rec.Metadata == "" {
		return "default"
	}
	var probe struct {
		Tenant string `json:"tenant"`
	}
	if err := json.Unmarshal([]byte(rec.Metadata), &probe); err != nil || probe.Tenant == "" {
		return "default"
	}
	return probe.Tenant
}
