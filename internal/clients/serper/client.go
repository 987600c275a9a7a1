// Package serper adapts the Serper (Google Search proxy) API into the
// search.Provider contract. It is a fallback behind Tavily.
package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stockpanel/sentinel/internal/search"
)

const defaultBaseURL = "https://google.serper.dev"

// Client is the Serper provider.
type Client struct {
	baseURL    string
	keys       *search.KeyPool
	httpClient *http.Client
	log        zerolog.Logger
	priority   int
}

// New builds a Serper provider over an ordered API-key pool, one
// priority tier behind Tavily.
func New(apiKeys []string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		keys:       search.NewKeyPool(apiKeys),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.With().Str("component", "serper").Logger(),
		priority:   20,
	}
}

var _ search.Provider = (*Client)(nil)

func (c *Client) Name() string  { return "serper" }
func (c *Client) Priority() int { return c.priority }

type searchRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num"`
	TBS   string `json:"tbs,omitempty"`
}

type searchResponse struct {
	News []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
	} `json:"news"`
}

// Search queries Serper's news endpoint, rotating through the key pool
// on failure.
func (c *Client) Search(ctx context.Context, query string, maxResults, days int) (search.Response, error) {
	key, idx, ok := c.keys.Take()
	if !ok {
		return search.Response{}, fmt.Errorf("serper: no usable API key")
	}

	tbs := ""
	if days > 0 {
		tbs = fmt.Sprintf("qdr:d%d", days)
	}
	body, err := json.Marshal(searchRequest{Query: query, Num: maxResults, TBS: tbs})
	if err != nil {
		return search.Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/news", bytes.NewReader(body))
	if err != nil {
		return search.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.keys.RecordFailure(idx)
		return search.Response{}, fmt.Errorf("serper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.keys.RecordFailure(idx)
		return search.Response{}, fmt.Errorf("serper: status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.keys.RecordFailure(idx)
		return search.Response{}, fmt.Errorf("serper decode: %w", err)
	}
	c.keys.RecordSuccess(idx)

	out := make([]search.Result, 0, len(parsed.News))
	for _, r := range parsed.News {
		out = append(out, search.Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet, Source: "serper"})
	}

	return search.Response{Provider: c.Name(), Results: out}, nil
}
