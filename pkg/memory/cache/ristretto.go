// Package cache provides candidate cache backends for the cross-chat
// retrieval tier: an in-process ristretto cache for single-replica
// deployments and a Redis cache for multi-replica ones. Both enforce the
// same TTL contract; staleness inside the TTL window is accepted.
package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/recallhub/recallhub/pkg/memory"
)

// DefaultTTL is the accepted staleness window for cached candidate sets.
const DefaultTTL = 30 * time.Second

// RistrettoCache implements memory.CandidateCache in process memory with
// per-entry TTL and a cost bound, so a tenant-heavy process cannot grow the
// cache without limit.
type RistrettoCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewRistretto creates an in-process candidate cache. maxEntries bounds the
// number of cached user candidate sets.
func NewRistretto(maxEntries int64, ttl time.Duration) (*RistrettoCache, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoCache{cache: c, ttl: ttl}, nil
}

// Get returns the cached candidate set for the user if present and fresh.
func (c *RistrettoCache) Get(userID string) ([]*memory.ConversationRecord, bool) {
	value, ok := c.cache.Get(userID)
	if !ok {
		return nil, false
	}
	records, ok := value.([]*memory.ConversationRecord)
	return records, ok
}

// Set stores the candidate set under the configured TTL.
func (c *RistrettoCache) Set(userID string, records []*memory.ConversationRecord) {
	c.cache.SetWithTTL(userID, records, 1, c.ttl)
	// Flush the write buffer so a retrieval directly after the refresh sees
	// the entry.
	c.cache.Wait()
}

// Invalidate drops the user's entry. Called on erasure only; normal
// turnover relies on TTL expiry.
func (c *RistrettoCache) Invalidate(userID string) {
	c.cache.Del(userID)
}

// Close releases cache resources.
func (c *RistrettoCache) Close() error {
	c.cache.Close()
	return nil
}
