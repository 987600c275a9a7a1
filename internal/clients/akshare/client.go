// Package akshare adapts the akshare-style HTTP data mirror (A-share
// focused, free/scrape-oriented) into the cascade.Adapter contract. It
// is the lowest-priority-number (tried-first) adapter for A-share
// symbols, trading lower reliability for no credential requirement.
package akshare

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

const defaultBaseURL = "https://akshare-mirror.example.internal"

// Client is the akshare adapter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *cascade.ScrapeLimiter
	spot       *cascade.BulkSpot
	log        zerolog.Logger
	priority   int
}

// New builds an akshare client. cache backs the shared bulk-spot
// snapshot for the "all A-share real-time quotes" endpoint; a nil
// cache disables realtime lookups (used in tests).
func New(cache *ttlcache.Cache, log zerolog.Logger) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    cascade.NewScrapeLimiter(300*time.Millisecond, 900*time.Millisecond),
		log:        log.With().Str("component", "akshare").Logger(),
		priority:   10,
	}
	if cache != nil {
		c.spot = cascade.NewBulkSpot(cache, "akshare:ashare_spot", cascade.DefaultBulkTTL, c.fetchAllSpot)
	}
	return c
}

// fetchAllSpot pulls the full A-share real-time quote snapshot in one
// upstream call, keyed by symbol code, backing the shared BulkSpot.
func (c *Client) fetchAllSpot() (map[string]json.RawMessage, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/stock_zh_a_spot_em", c.baseURL), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("akshare bulk spot request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("akshare bulk spot: status %d", resp.StatusCode)
	}

	var blob map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&blob); err != nil {
		return nil, fmt.Errorf("akshare bulk spot decode: %w", err)
	}
	return blob, nil
}

var _ cascade.Adapter = (*Client)(nil)

func (c *Client) Name() string     { return "akshare" }
func (c *Client) Priority() int    { return c.priority }
func (c *Client) IsAvailable() bool { return true } // no credentials required

type dailyRow struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"` // hands (100-share lots) on this upstream
	Amount float64 `json:"amount"`
	PctChg float64 `json:"pct_chg"`
}

// GetDaily fetches daily K-line history for an A-share/ETF symbol.
// Other markets are unsupported by this adapter (a "skip adapter"
// signal, not a breaker failure).
func (c *Client) GetDaily(ctx context.Context, code string, days int) (domain.KLineSeries, errs.Classification, error) {
	market := domain.ClassifyMarket(code)
	if market != domain.MarketAShare && market != domain.MarketETF {
		return domain.KLineSeries{}, errs.ClassUnsupported, fmt.Errorf("akshare: unsupported market for %s", code)
	}

	c.limiter.Wait()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/stock_zh_a_hist?symbol=%s&days=%d", c.baseURL, code, days), nil)
	if err != nil {
		return domain.KLineSeries{}, errs.ClassTerminal, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.KLineSeries{}, errs.ClassifyHTTP(0, err), fmt.Errorf("akshare daily request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.KLineSeries{}, errs.ClassifyHTTP(resp.StatusCode, nil), fmt.Errorf("akshare daily: status %d", resp.StatusCode)
	}

	var rows []dailyRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return domain.KLineSeries{}, errs.ClassTerminal, fmt.Errorf("akshare daily decode: %w", err)
	}

	bars := make([]domain.KLineBar, 0, len(rows))
	for _, r := range rows {
		date, err := time.Parse("2006-01-02", r.Date)
		if err != nil {
			continue
		}
		pct := r.PctChg
		bars = append(bars, domain.KLineBar{
			Date:   date,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume * 100, // hands -> shares
			Amount: r.Amount,
			PctChg: &pct,
		})
	}
	if days > 0 && len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	cascade.WithMovingAverages(bars)

	return domain.KLineSeries{Code: code, Source: domain.SourceAkshare, Bars: bars}, errs.ClassSuccess, nil
}

type spotRow struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	ChangeAmt    float64 `json:"change_amount"`
	ChangePct    float64 `json:"change_pct"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	PrevClose    float64 `json:"prev_close"`
	Volume       float64 `json:"volume"`
	Amount       float64 `json:"amount"`
	TurnoverRate float64 `json:"turnover_rate"`
	PE           float64 `json:"pe"`
	PB           float64 `json:"pb"`
	TotalMV      float64 `json:"total_mv"` // expressed in 10k-currency units upstream
	CircMV       float64 `json:"circ_mv"`  // expressed in 10k-currency units upstream
}

// GetRealtime reads from the shared bulk-spot cache (one upstream call
// per TTL window services every A-share symbol).
func (c *Client) GetRealtime(ctx context.Context, code string) (*domain.UnifiedQuote, errs.Classification, error) {
	market := domain.ClassifyMarket(code)
	if market != domain.MarketAShare && market != domain.MarketETF {
		return nil, errs.ClassUnsupported, fmt.Errorf("akshare: unsupported market for %s", code)
	}
	if c.spot == nil {
		return nil, errs.ClassTerminal, fmt.Errorf("akshare: bulk spot cache not configured")
	}

	raw, ok := c.spot.Lookup(code)
	if !ok {
		return nil, errs.ClassTransient, fmt.Errorf("akshare: %s absent from bulk spot snapshot", code)
	}

	var row spotRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, errs.ClassTerminal, fmt.Errorf("akshare spot decode: %w", err)
	}

	q := &domain.UnifiedQuote{
		Code:      code,
		Name:      row.Name,
		Source:    domain.SourceAkshare,
		FetchedAt: time.Now(),
	}
	setIfNonZero(&q.Price, row.Price)
	setIfNonZero(&q.ChangeAmt, row.ChangeAmt)
	setIfNonZero(&q.ChangePct, row.ChangePct)
	setIfNonZero(&q.Open, row.Open)
	setIfNonZero(&q.High, row.High)
	setIfNonZero(&q.Low, row.Low)
	setIfNonZero(&q.PrevClose, row.PrevClose)
	setIfNonZero(&q.Volume, row.Volume*100) // hands -> shares
	setIfNonZero(&q.Amount, row.Amount)
	setIfNonZero(&q.TurnoverRate, row.TurnoverRate)
	setIfNonZero(&q.PE, row.PE)
	setIfNonZero(&q.PB, row.PB)
	setIfNonZero(&q.TotalMV, row.TotalMV*10000) // 10k-currency -> currency
	setIfNonZero(&q.CircMV, row.CircMV*10000)

	return q, errs.ClassSuccess, nil
}

type chipRow struct {
	Date            string  `json:"date"`
	ProfitRatio     float64 `json:"profit_ratio"`
	AvgCost         float64 `json:"avg_cost"`
	Cost70Low       float64 `json:"cost_70_low"`
	Cost70High      float64 `json:"cost_70_high"`
	Cost90Low       float64 `json:"cost_90_low"`
	Cost90High      float64 `json:"cost_90_high"`
	Concentration70 float64 `json:"concentration_70"`
	Concentration90 float64 `json:"concentration_90"`
}

// GetChip fetches the holder-cost distribution, A-share only.
func (c *Client) GetChip(ctx context.Context, code string) (*domain.ChipDistribution, errs.Classification, error) {
	if domain.ClassifyMarket(code) != domain.MarketAShare {
		return nil, errs.ClassUnsupported, fmt.Errorf("akshare: chip distribution unsupported outside A-share")
	}

	c.limiter.Wait()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/stock_cyq_em?symbol=%s", c.baseURL, code), nil)
	if err != nil {
		return nil, errs.ClassTerminal, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.ClassifyHTTP(0, err), fmt.Errorf("akshare chip request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.ClassifyHTTP(resp.StatusCode, nil), fmt.Errorf("akshare chip: status %d", resp.StatusCode)
	}

	var rows []chipRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil || len(rows) == 0 {
		return nil, errs.ClassTerminal, fmt.Errorf("akshare chip decode: %w", err)
	}
	r := rows[len(rows)-1]
	date, _ := time.Parse("2006-01-02", r.Date)

	return &domain.ChipDistribution{
		Code:            code,
		Date:            date,
		ProfitRatio:     r.ProfitRatio,
		AvgCost:         r.AvgCost,
		Cost70Low:       r.Cost70Low,
		Cost70High:      r.Cost70High,
		Cost90Low:       r.Cost90Low,
		Cost90High:      r.Cost90High,
		Concentration70: r.Concentration70,
		Concentration90: r.Concentration90,
	}, errs.ClassSuccess, nil
}

func setIfNonZero(dst **float64, v float64) {
	if v == 0 {
		return
	}
	val := v
	*dst = &val
}
