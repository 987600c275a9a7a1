// Package tushare adapts the tushare-style quota-based A-share data API
// (token-authenticated, subscription-tiered) into the cascade.Adapter
// contract. It is a higher-priority-number (tried-later) fallback
// behind the free scrapers, since it requires credentials but is more
// reliable once configured.
package tushare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stockpanel/sentinel/internal/cascade"
	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/errs"
)

const defaultBaseURL = "https://tushare-mirror.example.internal/api"

// Client is the tushare adapter. An empty Token makes the adapter
// report itself unavailable (credential-gated, per spec.md §4.2's
// negative-priority "best available when credentials present" note —
// this adapter instead simply drops out of the cascade rather than
// claiming a reserved negative priority, since it has no scenario
// where it would outrank the free scrapers).
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *cascade.QuotaLimiter
	log        zerolog.Logger
	priority   int
}

// New builds a tushare client. quotaPerMinute is the subscription
// tier's per-minute call budget.
func New(token string, quotaPerMinute int, log zerolog.Logger) *Client {
	if quotaPerMinute <= 0 {
		quotaPerMinute = 120
	}
	return &Client{
		baseURL:    defaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    cascade.NewQuotaLimiter(quotaPerMinute),
		log:        log.With().Str("component", "tushare").Logger(),
		priority:   20,
	}
}

var _ cascade.Adapter = (*Client)(nil)

func (c *Client) Name() string      { return "tushare" }
func (c *Client) Priority() int     { return c.priority }
func (c *Client) IsAvailable() bool { return c.token != "" }

type apiRequest struct {
	APIName string                 `json:"api_name"`
	Token   string                 `json:"token"`
	Params  map[string]interface{} `json:"params"`
	Fields  string                 `json:"fields"`
}

type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Fields []string        `json:"fields"`
		Items  [][]interface{} `json:"items"`
	} `json:"data"`
}

func (c *Client) call(ctx context.Context, apiName string, params map[string]interface{}, fields string) (*apiResponse, int, error) {
	c.limiter.Wait()

	body, err := json.Marshal(apiRequest{APIName: apiName, Token: c.token, Params: params, Fields: fields})
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("tushare decode: %w", err)
	}
	if out.Code != 0 {
		return &out, resp.StatusCode, fmt.Errorf("tushare api error %d: %s", out.Code, out.Msg)
	}
	return &out, resp.StatusCode, nil
}

func rowMap(fields []string, row []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(fields))
	for i, f := range fields {
		if i < len(row) {
			m[f] = row[i]
		}
	}
	return m
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	default:
		return 0
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// GetDaily fetches daily bars for an A-share/ETF symbol via the
// "daily" API endpoint.
func (c *Client) GetDaily(ctx context.Context, code string, days int) (domain.KLineSeries, errs.Classification, error) {
	market := domain.ClassifyMarket(code)
	if market != domain.MarketAShare && market != domain.MarketETF {
		return domain.KLineSeries{}, errs.ClassUnsupported, fmt.Errorf("tushare: unsupported market for %s", code)
	}

	resp, status, err := c.call(ctx, "daily", map[string]interface{}{"ts_code": tsCode(code), "limit": days}, "trade_date,open,high,low,close,vol,amount,pct_chg")
	if err != nil {
		return domain.KLineSeries{}, errs.ClassifyHTTP(status, err), fmt.Errorf("tushare daily: %w", err)
	}

	bars := make([]domain.KLineBar, 0, len(resp.Data.Items))
	for _, item := range resp.Data.Items {
		row := rowMap(resp.Data.Fields, item)
		date, err := time.Parse("20060102", asString(row["trade_date"]))
		if err != nil {
			continue
		}
		pct := asFloat(row["pct_chg"])
		bars = append(bars, domain.KLineBar{
			Date:   date,
			Open:   asFloat(row["open"]),
			High:   asFloat(row["high"]),
			Low:    asFloat(row["low"]),
			Close:  asFloat(row["close"]),
			Volume: asFloat(row["vol"]) * 100, // hands -> shares
			Amount: asFloat(row["amount"]) * 1000, // thousand-currency -> currency
			PctChg: &pct,
		})
	}
	// tushare returns newest-first; reverse to oldest-to-newest.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	cascade.WithMovingAverages(bars)

	return domain.KLineSeries{Code: code, Source: domain.SourceTushare, Bars: bars}, errs.ClassSuccess, nil
}

// GetRealtime fetches a single quote via the "quotes" endpoint.
// tushare has no bulk-spot shortcut exposed by this client; per-symbol
// calls are within the quota limiter's budget.
func (c *Client) GetRealtime(ctx context.Context, code string) (*domain.UnifiedQuote, errs.Classification, error) {
	market := domain.ClassifyMarket(code)
	if market != domain.MarketAShare && market != domain.MarketETF {
		return nil, errs.ClassUnsupported, fmt.Errorf("tushare: unsupported market for %s", code)
	}

	resp, status, err := c.call(ctx, "quotes", map[string]interface{}{"ts_code": tsCode(code)}, "name,price,pre_close,open,high,low,vol,amount,pe,pb,total_mv,circ_mv")
	if err != nil {
		return nil, errs.ClassifyHTTP(status, err), fmt.Errorf("tushare quotes: %w", err)
	}
	if len(resp.Data.Items) == 0 {
		return nil, errs.ClassTransient, fmt.Errorf("tushare: no quote for %s", code)
	}
	row := rowMap(resp.Data.Fields, resp.Data.Items[0])

	q := &domain.UnifiedQuote{Code: code, Name: asString(row["name"]), Source: domain.SourceTushare, FetchedAt: time.Now()}
	price := asFloat(row["price"])
	prevClose := asFloat(row["pre_close"])
	if price > 0 {
		q.Price = &price
	}
	if prevClose > 0 {
		q.PrevClose = &prevClose
		if price > 0 {
			change := price - prevClose
			q.ChangeAmt = &change
			if prevClose != 0 {
				pct := change / prevClose * 100
				q.ChangePct = &pct
			}
		}
	}
	setIfPositive(&q.Open, asFloat(row["open"]))
	setIfPositive(&q.High, asFloat(row["high"]))
	setIfPositive(&q.Low, asFloat(row["low"]))
	setIfPositive(&q.Volume, asFloat(row["vol"])*100)
	setIfPositive(&q.Amount, asFloat(row["amount"])*1000)
	setIfPositive(&q.PE, asFloat(row["pe"]))
	setIfPositive(&q.PB, asFloat(row["pb"]))
	setIfPositive(&q.TotalMV, asFloat(row["total_mv"])*10000)
	setIfPositive(&q.CircMV, asFloat(row["circ_mv"])*10000)

	return q, errs.ClassSuccess, nil
}

// GetChip is unsupported: tushare's A-share API in this deployment does
// not expose a holder-cost distribution endpoint.
func (c *Client) GetChip(ctx context.Context, code string) (*domain.ChipDistribution, errs.Classification, error) {
	return nil, errs.ClassUnsupported, fmt.Errorf("tushare: chip distribution not offered by this provider")
}

func setIfPositive(dst **float64, v float64) {
	if v <= 0 {
		return
	}
	val := v
	*dst = &val
}

func tsCode(code string) string {
	if len(code) != 6 {
		return code
	}
	switch code[0] {
	case '6':
		return code + ".SH"
	default:
		return code + ".SZ"
	}
}
