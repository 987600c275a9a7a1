// Package search composes the priority-ordered set of news/search
// provider adapters into a manager that returns the first non-empty
// success, caching results in-memory with a bounded, TTL+FIFO-evicted
// cache keyed by (query, max_results, days).
package search

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Result is one search hit, normalized across providers.
type Result struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Snippet   string    `json:"snippet"`
	Source    string    `json:"source"`
	Published time.Time `json:"published,omitempty"`
}

// Response is what one provider (or the manager) returns for a query.
type Response struct {
	Provider string   `json:"provider"`
	Results  []Result `json:"results"`
}

func (r Response) Empty() bool { return len(r.Results) == 0 }

// Provider is one news/search adapter. Each provider owns its own
// ordered API-key pool and rotates/skips keys internally (see
// KeyPool); Priority governs manager-level ordering across providers.
type Provider interface {
	Name() string
	Priority() int
	Search(ctx context.Context, query string, maxResults, days int) (Response, error)
}

// DefaultTTL is the cache TTL for search responses (spec.md §4.3).
const DefaultTTL = 600 * time.Second

// MaxCacheEntries is the hard cap on cached entries; once reached, the
// oldest entry (by insertion, not by TTL) is evicted to make room —
// the FIFO eviction spec.md §4.3 calls for once the cache is past its
// TTL-driven steady state.
const MaxCacheEntries = 500

// Manager tries providers in priority order and returns the first
// non-empty success.
type Manager struct {
	providers []Provider
	log       zerolog.Logger

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = oldest
	ttl     time.Duration
}

type cacheEntry struct {
	key       string
	response  Response
	expiresAt time.Time
}

// NewManager builds a search manager. Providers need not be
// pre-sorted; New sorts them by Priority ascending.
func NewManager(providers []Provider, log zerolog.Logger) *Manager {
	sorted := make([]Provider, len(providers))
	copy(sorted, providers)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Priority() < sorted[j-1].Priority(); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return &Manager{
		providers: sorted,
		log:       log.With().Str("component", "search_manager").Logger(),
		entries:   make(map[string]*list.Element),
		order:     list.New(),
		ttl:       DefaultTTL,
	}
}

func cacheKey(query string, maxResults, days int) string {
	return query + "|" + itoa(maxResults) + "|" + itoa(days)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Search returns a cached response if fresh, otherwise tries providers
// in priority order and caches the first non-empty success.
func (m *Manager) Search(ctx context.Context, query string, maxResults, days int) (Response, error) {
	key := cacheKey(query, maxResults, days)

	if resp, ok := m.lookup(key); ok {
		return resp, nil
	}

	var lastErr error
	for _, p := range m.providers {
		resp, err := p.Search(ctx, query, maxResults, days)
		if err != nil {
			m.log.Warn().Str("provider", p.Name()).Str("query", query).Err(err).Msg("search provider failed")
			lastErr = err
			continue
		}
		if resp.Empty() {
			continue
		}
		m.store(key, resp)
		return resp, nil
	}

	if lastErr != nil {
		return Response{}, lastErr
	}
	return Response{}, nil
}

func (m *Manager) lookup(key string) (Response, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return Response{}, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		m.order.Remove(el)
		delete(m.entries, key)
		return Response{}, false
	}
	return entry.response, true
}

func (m *Manager) store(key string, resp Response) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		m.order.Remove(el)
		delete(m.entries, key)
	}

	entry := &cacheEntry{key: key, response: resp, expiresAt: time.Now().Add(m.ttl)}
	el := m.order.PushBack(entry)
	m.entries[key] = el

	for m.order.Len() > MaxCacheEntries {
		front := m.order.Front()
		if front == nil {
			break
		}
		oldest := front.Value.(*cacheEntry)
		m.order.Remove(front)
		delete(m.entries, oldest.key)
	}
}
