// Package efinance adapts a second free, scrape-oriented A-share data
// mirror into the cascade.Adapter contract. It sits behind akshare in
// priority, giving the cascade a same-cost fallback when akshare is
// unavailable or its breaker is open.
package efinance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stockpanel/sentinel/internal/cascade"
	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/errs"
	"github.com/stockpanel/sentinel/internal/ttlcache"
)

const defaultBaseURL = "https://efinance-mirror.example.internal"

// Client is the efinance adapter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *cascade.ScrapeLimiter
	spot       *cascade.BulkSpot
	log        zerolog.Logger
	priority   int
}

// New builds an efinance client, sitting one priority tier behind
// akshare. cache backs the shared bulk-spot snapshot; a nil cache
// disables realtime lookups (used in tests).
func New(cache *ttlcache.Cache, log zerolog.Logger) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    cascade.NewScrapeLimiter(400*time.Millisecond, 1200*time.Millisecond),
		log:        log.With().Str("component", "efinance").Logger(),
		priority:   15,
	}
	if cache != nil {
		c.spot = cascade.NewBulkSpot(cache, "efinance:ashare_spot", cascade.DefaultBulkTTL, c.fetchAllSpot)
	}
	return c
}

// fetchAllSpot pulls efinance's full real-time quote snapshot in one
// upstream call, keyed by symbol code, backing the shared BulkSpot.
func (c *Client) fetchAllSpot() (map[string]json.RawMessage, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/quote/get?fields=f2,f3,f4,f5,f6,f14,f15,f16,f17,f18", c.baseURL), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("efinance bulk spot request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("efinance bulk spot: status %d", resp.StatusCode)
	}

	var blob map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&blob); err != nil {
		return nil, fmt.Errorf("efinance bulk spot decode: %w", err)
	}
	return blob, nil
}

var _ cascade.Adapter = (*Client)(nil)

func (c *Client) Name() string      { return "efinance" }
func (c *Client) Priority() int     { return c.priority }
func (c *Client) IsAvailable() bool { return true }

type klineRow struct {
	Date   string  `json:"f51"`
	Open   float64 `json:"f52"`
	Close  float64 `json:"f53"`
	High   float64 `json:"f54"`
	Low    float64 `json:"f55"`
	Volume float64 `json:"f56"` // shares already, unlike akshare's hands
	Amount float64 `json:"f57"`
	PctChg float64 `json:"f60"`
}

// GetDaily fetches daily K-line bars for A-share/ETF symbols only.
func (c *Client) GetDaily(ctx context.Context, code string, days int) (domain.KLineSeries, errs.Classification, error) {
	market := domain.ClassifyMarket(code)
	if market != domain.MarketAShare && market != domain.MarketETF {
		return domain.KLineSeries{}, errs.ClassUnsupported, fmt.Errorf("efinance: unsupported market for %s", code)
	}
	c.limiter.Wait()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/klines?secid=%s&limit=%d", c.baseURL, secID(code), days), nil)
	if err != nil {
		return domain.KLineSeries{}, errs.ClassTerminal, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.KLineSeries{}, errs.ClassifyHTTP(0, err), fmt.Errorf("efinance daily request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.KLineSeries{}, errs.ClassifyHTTP(resp.StatusCode, nil), fmt.Errorf("efinance daily: status %d", resp.StatusCode)
	}

	var rows []klineRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return domain.KLineSeries{}, errs.ClassTerminal, fmt.Errorf("efinance daily decode: %w", err)
	}

	bars := make([]domain.KLineBar, 0, len(rows))
	for _, r := range rows {
		date, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			continue
		}
		pct := r.PctChg
		bars = append(bars, domain.KLineBar{
			Date: date, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close,
			Volume: r.Volume, Amount: r.Amount, PctChg: &pct,
		})
	}
	cascade.WithMovingAverages(bars)

	return domain.KLineSeries{Code: code, Source: domain.SourceEfinance, Bars: bars}, errs.ClassSuccess, nil
}

// GetRealtime reads from the shared bulk-spot cache, same shape as the
// akshare adapter but backed by a distinct upstream bulk endpoint (and
// thus a distinct cache key inside the shared Cache).
func (c *Client) GetRealtime(ctx context.Context, code string) (*domain.UnifiedQuote, errs.Classification, error) {
	market := domain.ClassifyMarket(code)
	if market != domain.MarketAShare && market != domain.MarketETF {
		return nil, errs.ClassUnsupported, fmt.Errorf("efinance: unsupported market for %s", code)
	}
	if c.spot == nil {
		return nil, errs.ClassTerminal, fmt.Errorf("efinance: bulk spot cache not configured")
	}

	raw, ok := c.spot.Lookup(code)
	if !ok {
		return nil, errs.ClassTransient, fmt.Errorf("efinance: %s absent from bulk spot snapshot", code)
	}

	var row struct {
		Name      string  `json:"f14"`
		Price     float64 `json:"f2"`
		ChangePct float64 `json:"f3"`
		ChangeAmt float64 `json:"f4"`
		Volume    float64 `json:"f5"`
		Amount    float64 `json:"f6"`
		High      float64 `json:"f15"`
		Low       float64 `json:"f16"`
		Open      float64 `json:"f17"`
		PrevClose float64 `json:"f18"`
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, errs.ClassTerminal, fmt.Errorf("efinance spot decode: %w", err)
	}

	q := &domain.UnifiedQuote{Code: code, Name: row.Name, Source: domain.SourceEfinance, FetchedAt: time.Now()}
	if row.Price > 0 {
		q.Price = &row.Price
	}
	if row.ChangePct != 0 {
		q.ChangePct = &row.ChangePct
	}
	if row.ChangeAmt != 0 {
		q.ChangeAmt = &row.ChangeAmt
	}
	if row.Volume > 0 {
		q.Volume = &row.Volume
	}
	if row.Amount > 0 {
		q.Amount = &row.Amount
	}
	if row.High > 0 {
		q.High = &row.High
	}
	if row.Low > 0 {
		q.Low = &row.Low
	}
	if row.Open > 0 {
		q.Open = &row.Open
	}
	if row.PrevClose > 0 {
		q.PrevClose = &row.PrevClose
	}

	return q, errs.ClassSuccess, nil
}

// GetChip is unsupported on this provider: it mirrors quotes and
// K-line data only, not holder-cost distributions.
func (c *Client) GetChip(ctx context.Context, code string) (*domain.ChipDistribution, errs.Classification, error) {
	return nil, errs.ClassUnsupported, fmt.Errorf("efinance: chip distribution not offered by this provider")
}

func secID(code string) string {
	market := domain.ClassifyMarket(code)
	if market == domain.MarketETF || (len(code) == 6 && code[0] == '6') {
		return "1." + code
	}
	return "0." + code
}
