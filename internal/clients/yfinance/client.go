// Package yfinance adapts a yfinance-style public HTTP API
// (credential-free, US/HK focused) into the cascade.Adapter contract.
package yfinance

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
)

const defaultBaseURL = "https://yfinance-mirror.example.internal"

// Client is the yfinance adapter, the primary US/HK source.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *cascade.QuotaLimiter
	log        zerolog.Logger
	priority   int
}

// New builds a yfinance client with the public API's documented
// per-minute quota.
func New(log zerolog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    cascade.NewQuotaLimiter(60),
		log:        log.With().Str("component", "yfinance").Logger(),
		priority:   10,
	}
}

var _ cascade.Adapter = (*Client)(nil)

func (c *Client) Name() string      { return "yfinance" }
func (c *Client) Priority() int     { return c.priority }
func (c *Client) IsAvailable() bool { return true }

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// GetDaily fetches daily bars for a US or HK symbol.
func (c *Client) GetDaily(ctx context.Context, code string, days int) (domain.KLineSeries, errs.Classification, error) {
	market := domain.ClassifyMarket(code)
	if market != domain.MarketUS && market != domain.MarketHK {
		return domain.KLineSeries{}, errs.ClassUnsupported, fmt.Errorf("yfinance: unsupported market for %s", code)
	}
	c.limiter.Wait()

	symbol := yahooSymbol(code, market)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v8/finance/chart/%s?range=%dd&interval=1d", c.baseURL, symbol, days), nil)
	if err != nil {
		return domain.KLineSeries{}, errs.ClassTerminal, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.KLineSeries{}, errs.ClassifyHTTP(0, err), fmt.Errorf("yfinance daily request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.KLineSeries{}, errs.ClassifyHTTP(resp.StatusCode, nil), fmt.Errorf("yfinance daily: status %d", resp.StatusCode)
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.KLineSeries{}, errs.ClassTerminal, fmt.Errorf("yfinance daily decode: %w", err)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		return domain.KLineSeries{}, errs.ClassTransient, fmt.Errorf("yfinance: empty chart result for %s", code)
	}

	result := parsed.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]domain.KLineBar, 0, len(result.Timestamp))
	var prevClose float64
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) {
			break
		}
		close := quote.Close[i]
		var pct *float64
		if prevClose > 0 {
			p := (close - prevClose) / prevClose * 100
			pct = &p
		}
		bars = append(bars, domain.KLineBar{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   valueAt(quote.Open, i),
			High:   valueAt(quote.High, i),
			Low:    valueAt(quote.Low, i),
			Close:  close,
			Volume: valueAt(quote.Volume, i),
			PctChg: pct,
		})
		prevClose = close
	}
	cascade.WithMovingAverages(bars)

	return domain.KLineSeries{Code: code, Source: domain.SourceYfinance, Bars: bars}, errs.ClassSuccess, nil
}

type quoteSummary struct {
	QuoteSummary struct {
		Result []struct {
			Price struct {
				RegularMarketPrice        float64 `json:"regularMarketPrice"`
				RegularMarketChange       float64 `json:"regularMarketChange"`
				RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
				RegularMarketOpen         float64 `json:"regularMarketOpen"`
				RegularMarketDayHigh      float64 `json:"regularMarketDayHigh"`
				RegularMarketDayLow       float64 `json:"regularMarketDayLow"`
				RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
				RegularMarketVolume       float64 `json:"regularMarketVolume"`
				ShortName                 string  `json:"shortName"`
			} `json:"price"`
			SummaryDetail struct {
				FiftyTwoWeekHigh float64 `json:"fiftyTwoWeekHigh"`
				FiftyTwoWeekLow  float64 `json:"fiftyTwoWeekLow"`
				MarketCap        float64 `json:"marketCap"`
				TrailingPE       float64 `json:"trailingPE"`
			} `json:"summaryDetail"`
		} `json:"result"`
	} `json:"quoteSummary"`
}

// GetRealtime fetches a single real-time quote.
func (c *Client) GetRealtime(ctx context.Context, code string) (*domain.UnifiedQuote, errs.Classification, error) {
	market := domain.ClassifyMarket(code)
	if market != domain.MarketUS && market != domain.MarketHK {
		return nil, errs.ClassUnsupported, fmt.Errorf("yfinance: unsupported market for %s", code)
	}
	c.limiter.Wait()

	symbol := yahooSymbol(code, market)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=price,summaryDetail", c.baseURL, symbol), nil)
	if err != nil {
		return nil, errs.ClassTerminal, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.ClassifyHTTP(0, err), fmt.Errorf("yfinance quote request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.ClassifyHTTP(resp.StatusCode, nil), fmt.Errorf("yfinance quote: status %d", resp.StatusCode)
	}

	var parsed quoteSummary
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errs.ClassTerminal, fmt.Errorf("yfinance quote decode: %w", err)
	}
	if len(parsed.QuoteSummary.Result) == 0 {
		return nil, errs.ClassTransient, fmt.Errorf("yfinance: no quote for %s", code)
	}

	p := parsed.QuoteSummary.Result[0].Price
	s := parsed.QuoteSummary.Result[0].SummaryDetail

	q := &domain.UnifiedQuote{Code: code, Name: p.ShortName, Source: domain.SourceYfinance, FetchedAt: time.Now()}
	if p.RegularMarketPrice > 0 {
		q.Price = &p.RegularMarketPrice
	}
	setOptional(&q.ChangeAmt, p.RegularMarketChange)
	setOptional(&q.ChangePct, p.RegularMarketChangePercent)
	setOptionalPositive(&q.Open, p.RegularMarketOpen)
	setOptionalPositive(&q.High, p.RegularMarketDayHigh)
	setOptionalPositive(&q.Low, p.RegularMarketDayLow)
	setOptionalPositive(&q.PrevClose, p.RegularMarketPreviousClose)
	setOptionalPositive(&q.Volume, p.RegularMarketVolume)
	setOptionalPositive(&q.PE, s.TrailingPE)
	setOptionalPositive(&q.TotalMV, s.MarketCap)
	setOptionalPositive(&q.High52Week, s.FiftyTwoWeekHigh)
	setOptionalPositive(&q.Low52Week, s.FiftyTwoWeekLow)

	return q, errs.ClassSuccess, nil
}

// GetChip is unsupported: holder-cost distribution is an A-share-only
// concept with no equivalent on this provider.
func (c *Client) GetChip(ctx context.Context, code string) (*domain.ChipDistribution, errs.Classification, error) {
	return nil, errs.ClassUnsupported, fmt.Errorf("yfinance: chip distribution not applicable")
}

func valueAt(values []float64, i int) float64 {
	if i < 0 || i >= len(values) {
		return 0
	}
	return values[i]
}

func setOptional(dst **float64, v float64) {
	val := v
	*dst = &val
}

func setOptionalPositive(dst **float64, v float64) {
	if v <= 0 {
		return
	}
	val := v
	*dst = &val
}

func yahooSymbol(code string, market domain.Market) string {
	if market == domain.MarketHK {
		digits := code
		if len(digits) >= 2 && digits[:2] == "HK" {
			digits = digits[2:]
		}
		for len(digits) < 4 {
			digits = "0" + digits
		}
		return digits + ".HK"
	}
	return code
}
