package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name     string
	priority int
	resp     Response
	err      error
	calls    int
}

func (p *fakeProvider) Name() string  { return p.name }
func (p *fakeProvider) Priority() int { return p.priority }
func (p *fakeProvider) Search(ctx context.Context, query string, maxResults, days int) (Response, error) {
	p.calls++
	return p.resp, p.err
}

func TestManager_TriesProvidersInPriorityOrder(t *testing.T) {
	low := &fakeProvider{name: "serper", priority: 20, resp: Response{Provider: "serper", Results: []Result{{Title: "x"}}}}
	high := &fakeProvider{name: "tavily", priority: 5, resp: Response{Provider: "tavily", Results: []Result{{Title: "y"}}}}

	m := NewManager([]Provider{low, high}, zerolog.Nop())

	resp, err := m.Search(context.Background(), "600519", 5, 7)
	require.NoError(t, err)
	assert.Equal(t, "tavily", resp.Provider)
	assert.Zero(t, low.calls, "higher-priority provider answers first")
}

func TestManager_FallsThroughOnEmptyResponse(t *testing.T) {
	empty := &fakeProvider{name: "tavily", priority: 1, resp: Response{Provider: "tavily"}}
	fallback := &fakeProvider{name: "serper", priority: 2, resp: Response{Provider: "serper", Results: []Result{{Title: "hit"}}}}

	m := NewManager([]Provider{empty, fallback}, zerolog.Nop())

	resp, err := m.Search(context.Background(), "300750", 5, 7)
	require.NoError(t, err)
	assert.Equal(t, "serper", resp.Provider)
}

func TestManager_FallsThroughOnError(t *testing.T) {
	failing := &fakeProvider{name: "tavily", priority: 1, err: errors.New("rate limited")}
	fallback := &fakeProvider{name: "serper", priority: 2, resp: Response{Provider: "serper", Results: []Result{{Title: "hit"}}}}

	m := NewManager([]Provider{failing, fallback}, zerolog.Nop())

	resp, err := m.Search(context.Background(), "300750", 5, 7)
	require.NoError(t, err)
	assert.Equal(t, "serper", resp.Provider)
}

func TestManager_ReturnsLastErrorWhenAllProvidersFail(t *testing.T) {
	failing := &fakeProvider{name: "tavily", priority: 1, err: errors.New("down")}
	m := NewManager([]Provider{failing}, zerolog.Nop())

	_, err := m.Search(context.Background(), "300750", 5, 7)
	assert.Error(t, err)
}

func TestManager_CachesSuccessAndSkipsProviderOnSecondCall(t *testing.T) {
	provider := &fakeProvider{name: "tavily", priority: 1, resp: Response{Provider: "tavily", Results: []Result{{Title: "hit"}}}}
	m := NewManager([]Provider{provider}, zerolog.Nop())

	_, err := m.Search(context.Background(), "600519", 5, 7)
	require.NoError(t, err)
	_, err = m.Search(context.Background(), "600519", 5, 7)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls, "second call for the same key is served from cache")
}

func TestManager_CacheExpiresAfterTTL(t *testing.T) {
	provider := &fakeProvider{name: "tavily", priority: 1, resp: Response{Provider: "tavily", Results: []Result{{Title: "hit"}}}}
	m := NewManager([]Provider{provider}, zerolog.Nop())
	m.ttl = time.Millisecond

	_, err := m.Search(context.Background(), "600519", 5, 7)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = m.Search(context.Background(), "600519", 5, 7)
	require.NoError(t, err)

	assert.Equal(t, 2, provider.calls, "expired cache entries are not reused")
}

func TestManager_EvictsOldestEntryPastMaxCacheEntries(t *testing.T) {
	provider := &fakeProvider{name: "tavily", priority: 1}
	m := NewManager([]Provider{provider}, zerolog.Nop())

	for i := 0; i < MaxCacheEntries+1; i++ {
		provider.resp = Response{Provider: "tavily", Results: []Result{{Title: itoa(i)}}}
		_, err := m.Search(context.Background(), itoa(i), 5, 7)
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, m.order.Len(), MaxCacheEntries)
	_, ok := m.lookup(cacheKey(itoa(0), 5, 7))
	assert.False(t, ok, "the oldest entry is evicted once the cache exceeds its bound")
}
