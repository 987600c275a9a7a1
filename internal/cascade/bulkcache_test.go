package cascade

import (
	"database/sql"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpanel/sentinel/internal/ttlcache"

	_ "modernc.org/sqlite"
)

func newTestCache(t *testing.T) *ttlcache.Cache {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	c, err := ttlcache.New(db, "bulk")
	require.NoError(t, err)
	return c
}

func TestBulkSpot_LookupRefreshesOnFirstMiss(t *testing.T) {
	var calls int32
	fetch := func() (map[string]json.RawMessage, error) {
		atomic.AddInt32(&calls, 1)
		return map[string]json.RawMessage{"600519": json.RawMessage(`{"price":12.3}`)}, nil
	}
	spot := NewBulkSpot(newTestCache(t), "akshare:ashare_spot", time.Minute, fetch)

	raw, ok := spot.Lookup("600519")
	require.True(t, ok)
	assert.JSONEq(t, `{"price":12.3}`, string(raw))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBulkSpot_LookupAbsentCodeReturnsFalse(t *testing.T) {
	fetch := func() (map[string]json.RawMessage, error) {
		return map[string]json.RawMessage{"600519": json.RawMessage(`{}`)}, nil
	}
	spot := NewBulkSpot(newTestCache(t), "akshare:ashare_spot", time.Minute, fetch)

	_, ok := spot.Lookup("300750")
	assert.False(t, ok)
}

func TestBulkSpot_SecondLookupServesFromCacheWithoutRefetching(t *testing.T) {
	var calls int32
	fetch := func() (map[string]json.RawMessage, error) {
		atomic.AddInt32(&calls, 1)
		return map[string]json.RawMessage{"600519": json.RawMessage(`{"price":1}`)}, nil
	}
	spot := NewBulkSpot(newTestCache(t), "akshare:ashare_spot", time.Minute, fetch)

	_, _ = spot.Lookup("600519")
	_, _ = spot.Lookup("600519")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second lookup before TTL expiry reuses the cached snapshot")
}

func TestBulkSpot_RetriesThenCachesEmptyOnPersistentFailure(t *testing.T) {
	var calls int32
	fetch := func() (map[string]json.RawMessage, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("upstream unavailable")
	}
	spot := NewBulkSpot(newTestCache(t), "akshare:ashare_spot", time.Minute, fetch)

	_, ok := spot.Lookup("600519")
	assert.False(t, ok)
	assert.Equal(t, int32(bulkRefreshAttempts), atomic.LoadInt32(&calls), "exhausts all retry attempts before giving up")

	_, ok = spot.Lookup("600519")
	assert.False(t, ok, "cached empty result suppresses a second refresh burst")
	assert.Equal(t, int32(bulkRefreshAttempts), atomic.LoadInt32(&calls), "no additional upstream calls once the empty result is cached")
}
