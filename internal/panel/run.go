package panel

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/errs"
)

// AnalysisInput is the assembled context handed to every logical
// model: the orchestrator's quote/history/chip/news bundle. It is kept
// opaque here (map) since the panel itself has no opinion on context
// shape beyond passing it through to the analyzer.
type AnalysisInput struct {
	StockCode string
	StockName string
	Context   map[string]interface{}
}

// AnalyzerOutput is what one successful endpoint call returns, before
// it is wrapped into a domain.ModelResult.
type AnalyzerOutput struct {
	Score      *float64
	Advice     string
	Trend      string
	Summary    string
	Confidence *float64
	Raw        map[string]interface{}
}

// Analyzer performs one LLM call against a single endpoint. Provider
// selects which underlying client implementation handles the call
// (e.g. "gemini", "openai-compatible"); modelName is the logical
// model's configured identity, passed through as the concrete API
// model string.
type Analyzer interface {
	Analyze(ctx context.Context, provider, modelName string, endpoint domain.ModelEndpoint, input AnalysisInput) (AnalyzerOutput, error)
}

// maxWorkers caps the expert-panel fan-out at min(3, len(selected)),
// per spec.md §4.4/§5 — this bound is per-task and independent of the
// queue's own worker pool size.
const maxWorkers = 3

// Runner executes a panel over a fixed Analyzer implementation.
type Runner struct {
	analyzer Analyzer
	log      zerolog.Logger
}

// NewRunner builds a Runner.
func NewRunner(analyzer Analyzer, log zerolog.Logger) *Runner {
	return &Runner{analyzer: analyzer, log: log.With().Str("component", "expert_panel").Logger()}
}

// Run fans out to every selected logical model (bounded parallel
// workers), performs endpoint-level failover within each model, and
// reduces the results to a consensus. Results are ordered to match the
// originally selected-models order (unknown names sort last — selected
// here is already the filtered+ordered slice from Select).
func (r *Runner) Run(ctx context.Context, input AnalysisInput, selected []domain.ModelConfig) domain.PanelResult {
	workerCap := maxWorkers
	if len(selected) < workerCap {
		workerCap = len(selected)
	}
	if workerCap < 1 {
		workerCap = 1
	}

	results := make([]domain.ModelResult, len(selected))
	sem := make(chan struct{}, workerCap)
	var wg sync.WaitGroup

	for i, cfg := range selected {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, cfg domain.ModelConfig) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.runOne(ctx, input, cfg)
		}(i, cfg)
	}
	wg.Wait()

	modelsUsed := make([]string, len(selected))
	for i, cfg := range selected {
		modelsUsed[i] = cfg.Name
	}

	panelResult := domain.PanelResult{
		StockCode:  input.StockCode,
		StockName:  input.StockName,
		ModelsUsed: modelsUsed,
		Results:    results,
	}
	Consensus(&panelResult)
	return panelResult
}

// runOne iterates cfg's endpoints in priority order, applying the
// switchable/terminal error classification from spec.md §4.4.
func (r *Runner) runOne(ctx context.Context, input AnalysisInput, cfg domain.ModelConfig) domain.ModelResult {
	start := time.Now()
	result := domain.ModelResult{ModelName: cfg.Name}

	for _, ep := range cfg.Endpoints {
		if !ep.Enabled {
			continue
		}
		result.EndpointTried = append(result.EndpointTried, ep.ID)

		out, err := r.analyzer.Analyze(ctx, cfg.Provider, cfg.Name, ep, input)
		if err == nil {
			result.Success = true
			result.Score = out.Score
			result.Advice = out.Advice
			result.Trend = out.Trend
			result.Summary = out.Summary
			result.Confidence = out.Confidence
			result.Raw = out.Raw
			result.EndpointUsed = ep.ID
			result.FallbackCount = len(result.EndpointTried) - 1
			result.Elapsed = time.Since(start)
			return result
		}

		class := errs.ClassifyHTTP(errs.StatusFromText(err.Error()), err)
		r.log.Warn().Str("model", cfg.Name).Str("endpoint", ep.ID).Err(err).Str("class", string(class)).Msg("endpoint failed")
		result.Error = err.Error()
		if !class.Switchable() {
			break
		}
	}

	result.Success = false
	result.FallbackCount = len(result.EndpointTried) - 1
	result.Elapsed = time.Since(start)
	return result
}

// OrderByModelNames reorders results to match the order of names,
// unknown names sorting last, stably.
func OrderByModelNames(results []domain.ModelResult, names []string) []domain.ModelResult {
	rank := make(map[string]int, len(names))
	for i, n := range names {
		rank[n] = i
	}
	out := make([]domain.ModelResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		ri, oki := rank[out[i].ModelName]
		rj, okj := rank[out[j].ModelName]
		if !oki {
			ri = len(names)
		}
		if !okj {
			rj = len(names)
		}
		return ri < rj
	})
	return out
}
