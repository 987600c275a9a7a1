package cascade

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stockpanel/sentinel/internal/ttlcache"
)

// DefaultBulkTTL is the default TTL for bulk upstream responses (e.g.
// "all A-share real-time spot"), per spec.md §4.2.
const DefaultBulkTTL = 20 * time.Minute

// bulkRefreshAttempts is the number of attempts (including the first)
// made against upstream before giving up and caching an empty result to
// suppress thundering-herd retries for the remainder of the TTL.
const bulkRefreshAttempts = 3

// BulkSpot is a process-wide cache of one upstream's full-market
// snapshot, keyed by symbol code after a refresh. Concurrent misses for
// the same market collapse into a single upstream call via the
// underlying ttlcache's RefreshOnce.
type BulkSpot struct {
	cache      *ttlcache.Cache
	ttl        time.Duration
	marketKey  string // cache key for the whole-market blob, e.g. "akshare:ashare_spot"
	fetch      func() (map[string]json.RawMessage, error)
}

// NewBulkSpot builds a bulk cache for one adapter's full-market
// snapshot. fetch performs the single upstream bulk call and returns a
// map from symbol code to its raw per-symbol fields.
func NewBulkSpot(cache *ttlcache.Cache, marketKey string, ttl time.Duration, fetch func() (map[string]json.RawMessage, error)) *BulkSpot {
	if ttl <= 0 {
		ttl = DefaultBulkTTL
	}
	return &BulkSpot{cache: cache, ttl: ttl, marketKey: marketKey, fetch: fetch}
}

// Lookup returns the raw per-symbol fields for code, refreshing the
// whole-market blob at most once across concurrent callers when it is
// missing or expired. On terminal upstream failure after retrying, an
// empty blob is cached for the TTL so subsequent lookups fail fast
// instead of hammering upstream.
func (b *BulkSpot) Lookup(code string) (json.RawMessage, bool) {
	raw, ok := b.cache.Get(b.marketKey)
	if !ok {
		refreshed, err := b.cache.RefreshOnce(b.marketKey, b.refresh)
		if err != nil {
			return nil, false
		}
		raw = refreshed
	}

	var blob map[string]json.RawMessage
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, false
	}
	val, ok := blob[code]
	return val, ok
}

func (b *BulkSpot) refresh() ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < bulkRefreshAttempts; attempt++ {
		blob, err := b.fetch()
		if err == nil {
			encoded, marshalErr := json.Marshal(blob)
			if marshalErr != nil {
				return nil, marshalErr
			}
			if setErr := b.cache.Set(b.marketKey, encoded, b.ttl); setErr != nil {
				return nil, setErr
			}
			return encoded, nil
		}
		lastErr = err
	}

	empty, _ := json.Marshal(map[string]json.RawMessage{})
	if err := b.cache.Set(b.marketKey, empty, b.ttl); err != nil {
		return nil, fmt.Errorf("cache empty result after exhausting retries: %w", err)
	}
	return empty, lastErr
}
