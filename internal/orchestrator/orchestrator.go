// Package orchestrator assembles per-symbol market context from the
// data and search cascades, runs the expert panel over it, and
// composes the resulting AnalysisReport. It is the Executor the task
// queue calls for every task it dequeues.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/stockpanel/sentinel/internal/cascade"
	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/errs"
	"github.com/stockpanel/sentinel/internal/panel"
	"github.com/stockpanel/sentinel/internal/search"
)

// ReportStore persists a completed analysis. Defined here (rather than
// imported from internal/reportstore) to keep the dependency pointing
// inward: reportstore depends on domain, not on orchestrator.
type ReportStore interface {
	Save(ctx context.Context, report *domain.AnalysisReport) error
}

// ModelConfigSource returns the currently configured, already-filtered
// logical models to run for a given report type. Supplied by the
// config service so panel configuration can be reloaded without
// restarting the orchestrator.
type ModelConfigSource func(reportType domain.ReportType) []domain.ModelConfig

// Config tunes the orchestrator's upstream calls.
type Config struct {
	HistoryDays    int
	NewsMaxResults int
	NewsDays       int
}

// DefaultConfig mirrors the teacher's "sane production default"
// pattern: enough daily history for MA20, one week of news.
func DefaultConfig() Config {
	return Config{HistoryDays: 120, NewsMaxResults: 10, NewsDays: 7}
}

// Orchestrator is the queue.Executor implementation for this domain.
type Orchestrator struct {
	cascade *cascade.Manager
	search  *search.Manager
	panel   *panel.Runner
	models  ModelConfigSource
	store   ReportStore
	cfg     Config
	log     zerolog.Logger
}

// New builds an Orchestrator.
func New(cascadeMgr *cascade.Manager, searchMgr *search.Manager, panelRunner *panel.Runner, models ModelConfigSource, store ReportStore, cfg Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cascade: cascadeMgr,
		search:  searchMgr,
		panel:   panelRunner,
		models:  models,
		store:   store,
		cfg:     cfg,
		log:     log.With().Str("component", "orchestrator").Logger(),
	}
}

// Execute matches queue.Executor's signature; cmd/server wires
// o.Execute directly as the queue's executor function.
func (o *Orchestrator) Execute(ctx context.Context, task *domain.Task, report func(progress int, message string)) (*domain.AnalysisReport, error) {
	report(5, "fetching market data")

	quote, _ := o.cascade.GetRealtime(ctx, task.StockCode)
	history, histErr := o.cascade.GetDaily(ctx, task.StockCode, o.cfg.HistoryDays)
	chip, _ := o.cascade.GetChip(ctx, task.StockCode)

	if (quote == nil || !quote.HasBasicData()) && histErr != nil {
		return nil, errs.Wrap(errs.KindAnalysisFailed, "no market data available for "+task.StockCode, histErr)
	}

	report(35, "fetching news")
	newsQuery := task.StockCode
	if task.StockName != "" {
		newsQuery = task.StockName
	}
	newsResp, err := o.search.Search(ctx, newsQuery, o.cfg.NewsMaxResults, o.cfg.NewsDays)
	if err != nil {
		o.log.Warn().Str("stock_code", task.StockCode).Err(err).Msg("news search failed, continuing without news")
	}

	report(55, "running expert panel")
	configs := o.models(task.ReportType)
	selected := panel.Select(configs, nil)
	if len(selected) == 0 {
		return nil, errs.New(errs.KindAnalysisFailed, "no expert models configured")
	}

	analysisCtx := buildContext(quote, history, chip, newsResp)
	panelResult := o.panel.Run(ctx, panel.AnalysisInput{
		StockCode: task.StockCode,
		StockName: task.StockName,
		Context:   analysisCtx,
	}, selected)

	report(90, "composing report")
	return o.composeReport(ctx, task, quote, panelResult, newsResp, analysisCtx)
}

func buildContext(quote *domain.UnifiedQuote, history domain.KLineSeries, chip *domain.ChipDistribution, news search.Response) map[string]interface{} {
	ctx := map[string]interface{}{
		"history_bars": len(history.Bars),
	}
	if quote != nil {
		ctx["quote"] = quote
	}
	if chip != nil {
		ctx["chip_distribution"] = chip
	}
	if len(history.Bars) > 0 {
		tail := history.Bars
		if len(tail) > 30 {
			tail = tail[len(tail)-30:]
		}
		ctx["recent_bars"] = tail
	}
	if !news.Empty() {
		ctx["news"] = news.Results
	}
	return ctx
}

func (o *Orchestrator) composeReport(ctx context.Context, task *domain.Task, quote *domain.UnifiedQuote, panelResult domain.PanelResult, news search.Response, analysisCtx map[string]interface{}) (*domain.AnalysisReport, error) {
	rawBytes, err := msgpack.Marshal(panelResult)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "encoding panel result", err)
	}
	ctxBytes, err := msgpack.Marshal(analysisCtx)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "encoding context snapshot", err)
	}

	r := &domain.AnalysisReport{
		QueryID:         task.TaskID,
		StockCode:       task.StockCode,
		StockName:       task.StockName,
		ReportType:      task.ReportType,
		CreatedAt:       time.Now(),
		AnalysisSummary: panelResult.ConsensusSummary,
		OperationAdvice: panelResult.ConsensusAdvice,
		SentimentScore:  panelResult.ConsensusScore,
		SentimentLabel:  sentimentLabel(panelResult.ConsensusScore),
		NewsContent:     summarizeNews(news),
		RawResult:       rawBytes,
		ContextSnapshot: ctxBytes,
	}
	if panelResult.ConsensusStrategy != nil {
		r.Strategy = *panelResult.ConsensusStrategy
	}
	if quote != nil {
		r.CurrentPrice = quote.Price
		r.ChangePct = quote.ChangePct
	}
	if trend := dominantTrend(panelResult); trend != "" {
		r.TrendPrediction = trend
	}

	if o.store != nil {
		if err := o.store.Save(ctx, r); err != nil {
			return nil, errs.Wrap(errs.KindInternal, "persisting report", err)
		}
	}

	return r, nil
}

func sentimentLabel(score *float64) string {
	if score == nil {
		return ""
	}
	switch {
	case *score >= 70:
		return "positive"
	case *score >= 40:
		return "neutral"
	default:
		return "negative"
	}
}

func dominantTrend(pr domain.PanelResult) string {
	for _, r := range pr.Results {
		if r.Success && r.Advice == pr.ConsensusAdvice && r.Trend != "" {
			return r.Trend
		}
	}
	return ""
}

func summarizeNews(news search.Response) string {
	if news.Empty() {
		return ""
	}
	summary := ""
	for i, r := range news.Results {
		if i >= 5 {
			break
		}
		summary += fmt.Sprintf("- %s (%s)\n", r.Title, r.Source)
	}
	return summary
}
