// Package domain provides the canonical types shared across the analysis
// orchestration core: quotes, chip distribution, K-line bars, tasks,
// expert-panel configuration and results, and persisted reports.
package domain

import "regexp"

// Market identifies which upstream market path a symbol routes through.
type Market string

const (
	MarketAShare  Market = "ashare"
	MarketHK      Market = "hk"
	MarketUS      Market = "us"
	MarketETF     Market = "etf"
	MarketUnknown Market = "unknown"
)

var (
	aShareRe = regexp.MustCompile(`^\d{6}$`)
	hkRe     = regexp.MustCompile(`^(HK)?\d{5}$`)
	usRe     = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z])?$`)
)

// etfPrefixes holds the numeric prefixes reserved for ETFs on the A-share
// exchanges (Shanghai/Shenzhen). An ETF code is otherwise indistinguishable
// in shape from an ordinary 6-digit A-share code.
var etfPrefixes = []string{"510", "511", "512", "513", "515", "516", "518", "159"}

// ClassifyMarket derives a symbol's market from its shape. Classification is
// always derived, never stored, per the canonical data model.
func ClassifyMarket(code string) Market {
	switch {
	case aShareRe.MatchString(code):
		for _, prefix := range etfPrefixes {
			if len(code) >= 3 && code[:3] == prefix {
				return MarketETF
			}
		}
		return MarketAShare
	case hkRe.MatchString(code):
		return MarketHK
	case usRe.MatchString(code):
		return MarketUS
	default:
		return MarketUnknown
	}
}
