// Package ttlcache provides a sqlite-backed, process-wide TTL cache for
// bulk upstream responses (e.g. "all A-share real-time spot"), with
// single-flight refresh so concurrent misses for the same key collapse
// into one upstream call.
package ttlcache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS ttl_cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
`

// Cache is a named, sqlite-backed key/value store with expiry and
// per-key single-flight refresh.
type Cache struct {
	db   *sql.DB
	name string

	mu      sync.Mutex
	inFlight map[string]*refreshCall
}

type refreshCall struct {
	wg  sync.WaitGroup
	val []byte
	err error
}

// New creates a Cache backed by db, ensuring its table exists.
func New(db *sql.DB, name string) (*Cache, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("ttlcache %s: migrate: %w", name, err)
	}
	return &Cache{db: db, name: name, inFlight: make(map[string]*refreshCall)}, nil
}

// Get returns the raw cached bytes for key, or (nil, false) if absent or
// expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	var value []byte
	var expiresAt int64
	row := c.db.QueryRow("SELECT value, expires_at FROM ttl_cache WHERE key = ?", c.scopedKey(key))
	if err := row.Scan(&value, &expiresAt); err != nil {
		return nil, false
	}
	if time.Now().Unix() >= expiresAt {
		return nil, false
	}
	return value, true
}

// GetStale returns the raw cached bytes for key regardless of
// expiration, used as a fallback when a refresh fails — stale data is
// better than no data.
func (c *Cache) GetStale(key string) ([]byte, bool) {
	var value []byte
	row := c.db.QueryRow("SELECT value FROM ttl_cache WHERE key = ?", c.scopedKey(key))
	if err := row.Scan(&value); err != nil {
		return nil, false
	}
	return value, true
}

// Set stores raw bytes under key with the given TTL.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl).Unix()
	_, err := c.db.Exec(`
		INSERT INTO ttl_cache (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, c.scopedKey(key), value, expiresAt)
	return err
}

// GetJSON unmarshals the cached value for key into dest. Returns false
// if the key is absent, expired, or fails to unmarshal.
func (c *Cache) GetJSON(key string, dest interface{}) bool {
	raw, ok := c.Get(key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

// SetJSON marshals value as JSON and stores it under key with ttl.
func (c *Cache) SetJSON(key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(key, raw, ttl)
}

func (c *Cache) scopedKey(key string) string {
	return c.name + ":" + key
}

// RefreshOnce ensures that, for a given key, only one concurrent caller
// invokes fn; every other concurrent caller for the same key blocks and
// receives the same result. This is how the cascade satisfies the
// invariant that at most one upstream refresh is in flight per cache key
// at a time (spec's cache-stampede-suppression property).
func (c *Cache) RefreshOnce(key string, fn func() ([]byte, error)) ([]byte, error) {
	c.mu.Lock()
	if call, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		call.wg.Wait()
		return call.val, call.err
	}

	call := &refreshCall{}
	call.wg.Add(1)
	c.inFlight[key] = call
	c.mu.Unlock()

	call.val, call.err = fn()
	call.wg.Done()

	c.mu.Lock()
	delete(c.inFlight, key)
	c.mu.Unlock()

	return call.val, call.err
}
