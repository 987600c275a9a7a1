package orchestrator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpanel/sentinel/internal/breaker"
	"github.com/stockpanel/sentinel/internal/cascade"
	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/errs"
	"github.com/stockpanel/sentinel/internal/panel"
	"github.com/stockpanel/sentinel/internal/search"
)

func floatPtr(v float64) *float64 { return &v }

// fakeAdapter is a single-priority cascade.Adapter stub.
type fakeAdapter struct {
	name    string
	prio    int
	quote   *domain.UnifiedQuote
	history domain.KLineSeries
	chip    *domain.ChipDistribution
	err     error
}

func (a *fakeAdapter) Name() string     { return a.name }
func (a *fakeAdapter) Priority() int    { return a.prio }
func (a *fakeAdapter) IsAvailable() bool { return true }

func (a *fakeAdapter) GetDaily(ctx context.Context, code string, days int) (domain.KLineSeries, errs.Classification, error) {
	if a.err != nil {
		return domain.KLineSeries{}, errs.ClassTerminal, a.err
	}
	return a.history, "", nil
}

func (a *fakeAdapter) GetRealtime(ctx context.Context, code string) (*domain.UnifiedQuote, errs.Classification, error) {
	if a.err != nil {
		return nil, errs.ClassTerminal, a.err
	}
	return a.quote, "", nil
}

func (a *fakeAdapter) GetChip(ctx context.Context, code string) (*domain.ChipDistribution, errs.Classification, error) {
	return a.chip, "", nil
}

// fakeSearchProvider always returns a fixed, non-empty response.
type fakeSearchProvider struct{}

func (fakeSearchProvider) Name() string  { return "fake-search" }
func (fakeSearchProvider) Priority() int { return 1 }
func (fakeSearchProvider) Search(ctx context.Context, query string, maxResults, days int) (search.Response, error) {
	return search.Response{Provider: "fake-search", Results: []search.Result{{Title: "headline", Source: "wire"}}}, nil
}

// fakeAnalyzer returns a fixed score/advice regardless of endpoint.
type fakeAnalyzer struct {
	score  float64
	advice string
	trend  string
}

func (a fakeAnalyzer) Analyze(ctx context.Context, provider, modelName string, endpoint domain.ModelEndpoint, input panel.AnalysisInput) (panel.AnalyzerOutput, error) {
	return panel.AnalyzerOutput{Score: floatPtr(a.score), Advice: a.advice, Trend: a.trend, Summary: "ok"}, nil
}

type fakeReportStore struct {
	saved *domain.AnalysisReport
}

func (s *fakeReportStore) Save(ctx context.Context, r *domain.AnalysisReport) error {
	s.saved = r
	return nil
}

func newOrchestratorForTest(t *testing.T, adapter *fakeAdapter, analyzer panel.Analyzer, store ReportStore) *Orchestrator {
	t.Helper()
	log := zerolog.Nop()

	b := breaker.New(breaker.DefaultConfig())
	cascadeMgr := cascade.NewManager([]cascade.Adapter{adapter}, b, b, log)
	searchMgr := search.NewManager([]search.Provider{fakeSearchProvider{}}, log)
	runner := panel.NewRunner(analyzer, log)

	models := func(domain.ReportType) []domain.ModelConfig {
		return []domain.ModelConfig{{
			Name:     "test-model",
			Provider: "gemini",
			Endpoints: []domain.ModelEndpoint{
				{ID: "ep1", APIKey: "k", Enabled: true, Priority: 1},
			},
		}}
	}

	return New(cascadeMgr, searchMgr, runner, models, store, DefaultConfig(), log)
}

func TestExecute_HappyPathPersistsReport(t *testing.T) {
	adapter := &fakeAdapter{
		name: "fake",
		prio: 1,
		quote: &domain.UnifiedQuote{
			Code: "600519", Price: floatPtr(1680.5), ChangePct: floatPtr(1.2),
		},
		history: domain.KLineSeries{Bars: []domain.KLineBar{{Close: 1680.5}}},
	}
	store := &fakeReportStore{}
	o := newOrchestratorForTest(t, adapter, fakeAnalyzer{score: 82, advice: "buy", trend: "up"}, store)

	task := &domain.Task{TaskID: "task-1", StockCode: "600519", StockName: "Kweichow Moutai", ReportType: domain.ReportSimple}

	var progressSeen []int
	report, err := o.Execute(context.Background(), task, func(progress int, message string) {
		progressSeen = append(progressSeen, progress)
	})

	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "600519", report.StockCode)
	assert.Equal(t, "buy", report.OperationAdvice)
	require.NotNil(t, report.SentimentScore)
	assert.InDelta(t, 82, *report.SentimentScore, 0.001)
	assert.NotEmpty(t, report.NewsContent)
	assert.NotNil(t, store.saved)
	assert.Equal(t, report.QueryID, store.saved.QueryID)
	assert.NotEmpty(t, progressSeen)
}

func TestExecute_NoMarketDataIsFatal(t *testing.T) {
	adapter := &fakeAdapter{name: "fake", prio: 1, err: errs.New(errs.KindInternal, "upstream down")}
	o := newOrchestratorForTest(t, adapter, fakeAnalyzer{score: 50, advice: "hold"}, &fakeReportStore{})

	task := &domain.Task{TaskID: "task-2", StockCode: "000001", ReportType: domain.ReportSimple}
	_, err := o.Execute(context.Background(), task, func(int, string) {})

	require.Error(t, err)
	var qErr *errs.Error
	require.ErrorAs(t, err, &qErr)
	assert.Equal(t, errs.KindAnalysisFailed, qErr.Kind)
}
