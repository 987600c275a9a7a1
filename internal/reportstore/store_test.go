package reportstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpanel/sentinel/internal/database"
	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/errs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "reports.db"), Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	require.NoError(t, err)
	return s
}

func floatPtr(v float64) *float64 { return &v }

func sampleReport(queryID, code string, createdAt time.Time) *domain.AnalysisReport {
	return &domain.AnalysisReport{
		QueryID:         queryID,
		StockCode:       code,
		StockName:       "Kweichow Moutai",
		ReportType:      domain.ReportSimple,
		CreatedAt:       createdAt,
		CurrentPrice:    floatPtr(1680.5),
		ChangePct:       floatPtr(1.2),
		AnalysisSummary: "consensus buy",
		OperationAdvice: "buy",
		SentimentScore:  floatPtr(72),
		SentimentLabel:  "positive",
		Strategy: domain.StrategyPoints{
			IdealBuy: "1650",
			StopLoss: "1600",
		},
		RawResult:       []byte{0x01, 0x02},
		ContextSnapshot: []byte{0x03, 0x04},
	}
}

func TestSave_AndGetByQueryID_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := sampleReport("task-1", "600519", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, s.Save(ctx, r))

	got, err := s.GetByQueryID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, r.StockCode, got.StockCode)
	assert.Equal(t, r.AnalysisSummary, got.AnalysisSummary)
	require.NotNil(t, got.CurrentPrice)
	assert.InDelta(t, *r.CurrentPrice, *got.CurrentPrice, 0.001)
	assert.Equal(t, r.Strategy.IdealBuy, got.Strategy.IdealBuy)
	assert.Equal(t, r.RawResult, got.RawResult)
}

func TestGetByQueryID_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetByQueryID(context.Background(), "missing")

	var qErr *errs.Error
	require.ErrorAs(t, err, &qErr)
	assert.Equal(t, errs.KindNotFound, qErr.Kind)
}

func TestListByCodeRange_OrdersNewestFirstAndFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.Save(ctx, sampleReport("t1", "600519", base.Add(-48*time.Hour))))
	require.NoError(t, s.Save(ctx, sampleReport("t2", "600519", base.Add(-24*time.Hour))))
	require.NoError(t, s.Save(ctx, sampleReport("t3", "600519", base)))
	require.NoError(t, s.Save(ctx, sampleReport("t4", "000001", base)))

	got, err := s.ListByCodeRange(ctx, "600519", base.Add(-36*time.Hour), base.Add(time.Hour), 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t3", got[0].QueryID)
	assert.Equal(t, "t2", got[1].QueryID)
}

func TestListCreatedSince_ReturnsOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.Save(ctx, sampleReport("t1", "600519", base.Add(-2*time.Hour))))
	require.NoError(t, s.Save(ctx, sampleReport("t2", "600519", base.Add(-time.Hour))))
	require.NoError(t, s.Save(ctx, sampleReport("t3", "600519", base.Add(-30*time.Hour))))

	got, err := s.ListCreatedSince(ctx, base.Add(-3*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].QueryID)
	assert.Equal(t, "t2", got[1].QueryID)
}
