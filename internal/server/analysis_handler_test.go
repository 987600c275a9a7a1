package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpanel/sentinel/internal/database"
	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/events"
	"github.com/stockpanel/sentinel/internal/queue"
	"github.com/stockpanel/sentinel/internal/reportstore"
)

func newTestAnalysisHandlers(t *testing.T, executor queue.Executor) (*chi.Mux, *queue.Manager, *reportstore.Store) {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "reports.db"), Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := reportstore.New(db)
	require.NoError(t, err)

	bus := events.NewBus(zerolog.Nop())
	q := queue.New(2, executor, bus, zerolog.Nop())
	q.Start()
	t.Cleanup(q.Stop)

	r := chi.NewRouter()
	NewAnalysisHandlers(q, bus, store, zerolog.Nop()).RegisterRoutes(r)
	return r, q, store
}

func TestHandleAnalyze_AsyncReturns202WithTaskID(t *testing.T) {
	r, _, _ := newTestAnalysisHandlers(t, func(ctx context.Context, task *domain.Task, report queue.Reporter) (*domain.AnalysisReport, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	req := httptest.NewRequest(http.MethodPost, "/analysis/analyze", jsonBody(t, map[string]interface{}{
		"stock_code": "600519",
	}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["task_id"])
	assert.Equal(t, "pending", body["status"])
}

func TestHandleAnalyze_DuplicateReturns409(t *testing.T) {
	block := make(chan struct{})
	r, _, _ := newTestAnalysisHandlers(t, func(ctx context.Context, task *domain.Task, report queue.Reporter) (*domain.AnalysisReport, error) {
		<-block
		return &domain.AnalysisReport{QueryID: task.TaskID, StockCode: task.StockCode}, nil
	})
	defer close(block)

	body := map[string]interface{}{"stock_code": "600519"}
	req1 := httptest.NewRequest(http.MethodPost, "/analysis/analyze", jsonBody(t, body))
	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, req1)
	require.Equal(t, http.StatusAccepted, w1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/analysis/analyze", jsonBody(t, body))
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusConflict, w2.Code)

	var errBody map[string]interface{}
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &errBody))
	assert.Equal(t, "duplicate_task", errBody["error"])
	assert.NotEmpty(t, errBody["existing_task_id"])
}

func TestHandleStatus_UnknownTaskReturns404(t *testing.T) {
	r, _, _ := newTestAnalysisHandlers(t, func(ctx context.Context, task *domain.Task, report queue.Reporter) (*domain.AnalysisReport, error) {
		return nil, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/analysis/status/does-not-exist", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleAnalyze_SyncWaitsForCompletion(t *testing.T) {
	r, _, _ := newTestAnalysisHandlers(t, func(ctx context.Context, task *domain.Task, report queue.Reporter) (*domain.AnalysisReport, error) {
		score := 72.0
		return &domain.AnalysisReport{
			QueryID:         task.TaskID,
			StockCode:       task.StockCode,
			AnalysisSummary: "looks fine",
			SentimentScore:  &score,
		}, nil
	})

	req := httptest.NewRequest(http.MethodPost, "/analysis/analyze", jsonBody(t, map[string]interface{}{
		"stock_code": "600519",
		"async_mode": false,
	}))
	req = req.WithContext(context.Background())
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		r.ServeHTTP(w, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sync analyze did not complete in time")
	}

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, "looks fine", summary["analysis_summary"])
}

func TestHandleGetReport_ReturnsPersistedEnvelope(t *testing.T) {
	r, _, store := newTestAnalysisHandlers(t, func(ctx context.Context, task *domain.Task, report queue.Reporter) (*domain.AnalysisReport, error) {
		return nil, nil
	})

	require.NoError(t, store.Save(context.Background(), &domain.AnalysisReport{
		QueryID:         "q-123",
		StockCode:       "600519",
		ReportType:      domain.ReportFull,
		AnalysisSummary: "steady growth",
		CreatedAt:       time.Now(),
	}))

	req := httptest.NewRequest(http.MethodGet, "/analysis/reports/q-123", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	meta := body["meta"].(map[string]interface{})
	assert.Equal(t, "q-123", meta["query_id"])
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, "steady growth", summary["analysis_summary"])
}

func TestHandleGetReport_UnknownQueryIDReturns404(t *testing.T) {
	r, _, _ := newTestAnalysisHandlers(t, func(ctx context.Context, task *domain.Task, report queue.Reporter) (*domain.AnalysisReport, error) {
		return nil, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/analysis/reports/does-not-exist", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
