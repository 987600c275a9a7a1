// Package tavily adapts the Tavily search API into the search.Provider
// contract. It is the primary news/search provider.
package tavily

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

const defaultBaseURL = "https://api.tavily.com"

// Client is the Tavily provider.
type Client struct {
	baseURL    string
	keys       *search.KeyPool
	httpClient *http.Client
	log        zerolog.Logger
	priority   int
}

// New builds a Tavily provider over an ordered API-key pool.
func New(apiKeys []string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		keys:       search.NewKeyPool(apiKeys),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.With().Str("component", "tavily").Logger(),
		priority:   10,
	}
}

var _ search.Provider = (*Client)(nil)

func (c *Client) Name() string  { return "tavily" }
func (c *Client) Priority() int { return c.priority }

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	Days       int    `json:"days"`
	Topic      string `json:"topic"`
}

type searchResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Content       string `json:"content"`
		PublishedDate string `json:"published_date"`
	} `json:"results"`
}

// Search queries Tavily, rotating through the key pool on failure.
func (c *Client) Search(ctx context.Context, query string, maxResults, days int) (search.Response, error) {
	key, idx, ok := c.keys.Take()
	if !ok {
		return search.Response{}, fmt.Errorf("tavily: no usable API key")
	}

	body, err := json.Marshal(searchRequest{APIKey: key, Query: query, MaxResults: maxResults, Days: days, Topic: "news"})
	if err != nil {
		return search.Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return search.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.keys.RecordFailure(idx)
		return search.Response{}, fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.keys.RecordFailure(idx)
		return search.Response{}, fmt.Errorf("tavily: status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.keys.RecordFailure(idx)
		return search.Response{}, fmt.Errorf("tavily decode: %w", err)
	}
	c.keys.RecordSuccess(idx)

	out := make([]search.Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		var published time.Time
		if r.PublishedDate != "" {
			if t, err := time.Parse("2006-01-02", r.PublishedDate); err == nil {
				published = t
			}
		}
		out = append(out, search.Result{Title: r.Title, URL: r.URL, Snippet: r.Content, Source: "tavily", Published: published})
	}

	return search.Response{Provider: c.Name(), Results: out}, nil
}
