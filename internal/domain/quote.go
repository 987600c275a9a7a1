package domain

import "time"

// QuoteSource identifies which provider adapter produced a UnifiedQuote.
type QuoteSource string

const (
	SourceAkshare  QuoteSource = "akshare"
	SourceTushare  QuoteSource = "tushare"
	SourceYfinance QuoteSource = "yfinance"
	SourceEfinance QuoteSource = "efinance"
)

// UnifiedQuote is a point-in-time market snapshot, normalized across
// providers into one canonical shape. Any numeric field may be absent
// (nil); absence is semantically distinct from a stored zero.
type UnifiedQuote struct {
	Code      string
	Name      string
	Source    QuoteSource
	FetchedAt time.Time

	Price      *float64
	ChangeAmt  *float64
	ChangePct  *float64
	Open       *float64
	High       *float64
	Low        *float64
	PrevClose  *float64

	Volume       *float64
	Amount       *float64
	VolumeRatio  *float64
	TurnoverRate *float64
	Amplitude    *float64

	PE     *float64
	PB     *float64
	TotalMV *float64
	CircMV  *float64

	High52Week *float64
	Low52Week  *float64
	Change60d  *float64
}

// HasBasicData reports the data model's invariant: basic data is present
// iff Price is present and strictly positive.
func (q *UnifiedQuote) HasBasicData() bool {
	return q.Price != nil && *q.Price > 0
}

// ChipDistribution is a per-symbol holder-cost snapshot. It is only
// meaningful for A-share symbols; callers asking for non-A-share symbols
// get an absent (nil) result, never an error.
type ChipDistribution struct {
	Code            string
	Date            time.Time
	ProfitRatio     float64 // in [0,1]
	AvgCost         float64
	Cost70Low       float64
	Cost70High      float64
	Cost90Low       float64
	Cost90High      float64
	Concentration70 float64 // in [0,1]
	Concentration90 float64 // in [0,1]
}
