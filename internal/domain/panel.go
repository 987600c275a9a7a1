package domain

import "time"

// ModelEndpoint is a concrete network target (api_key + base_url +
// options) underneath a logical model. An endpoint with an empty
// APIKey is treated as absent and discarded during parsing.
type ModelEndpoint struct {
	ID          string
	APIKey      string
	BaseURL     string
	Priority    int // higher is preferred
	Enabled     bool
	Temperature *float64
	VerifySSL   *bool
	SourceName  string // display name of the raw config entry that produced this endpoint
}

// ModelConfig is a logical model: an identity that may be served by
// multiple endpoints with ordered failover. Endpoints are kept sorted by
// Priority, descending.
type ModelConfig struct {
	Name      string // logical model_name
	Provider  string // "gemini", "openai-compatible", ...
	Endpoints []ModelEndpoint
}

// ModelResult is the outcome of running one logical model against one
// analysis context.
type ModelResult struct {
	ModelName     string
	Success       bool
	Score         *float64 // 0..100
	Advice        string
	Trend         string
	Summary       string
	Confidence    *float64
	Elapsed       time.Duration
	EndpointTried []string // ordered, a contiguous prefix of the model's enabled endpoints
	EndpointUsed  string   // winning endpoint id, empty if none
	FallbackCount int      // len(EndpointTried) - 1
	Error         string
	Raw           map[string]interface{}
}

// StrategyPoints are the actionable price levels surfaced by a result.
type StrategyPoints struct {
	IdealBuy     string
	SecondaryBuy string
	StopLoss     string
	TakeProfit   string
}

// PanelResult aggregates ModelResults for one symbol plus the consensus
// reduction over them.
type PanelResult struct {
	StockCode  string
	StockName  string
	ModelsUsed []string
	Results    []ModelResult

	ConsensusScore    *float64
	ConsensusAdvice   string
	ConsensusSummary  string
	ConsensusStrategy *StrategyPoints
}
