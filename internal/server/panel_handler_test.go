package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/panel"
)

type fakePanelAnalyzer struct{}

func (fakePanelAnalyzer) Analyze(ctx context.Context, provider, modelName string, ep domain.ModelEndpoint, input panel.AnalysisInput) (panel.AnalyzerOutput, error) {
	score := 81.0
	return panel.AnalyzerOutput{Score: &score, Advice: "buy", Summary: "strong fundamentals"}, nil
}

func newTestPanelHandlers(t *testing.T) *chi.Mux {
	t.Helper()
	runner := panel.NewRunner(fakePanelAnalyzer{}, zerolog.Nop())
	models := func(domain.ReportType) []domain.ModelConfig {
		return []domain.ModelConfig{{
			Name:     "fake-model",
			Provider: "gemini",
			Endpoints: []domain.ModelEndpoint{{
				ID:      "ep1",
				APIKey:  "key",
				Enabled: true,
			}},
		}}
	}

	r := chi.NewRouter()
	NewPanelHandlers(runner, models, zerolog.Nop()).RegisterRoutes(r)
	return r
}

func TestHandlePanelAnalyze_RunsConfiguredModels(t *testing.T) {
	r := newTestPanelHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/expert-panel/analyze", jsonBody(t, map[string]interface{}{
		"stock_code": "600519",
		"context":    map[string]interface{}{"history_bars": 10},
	}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var result domain.PanelResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "buy", result.ConsensusAdvice)
}

func TestHandlePanelAnalyze_RequiresStockCode(t *testing.T) {
	r := newTestPanelHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/expert-panel/analyze", jsonBody(t, map[string]interface{}{}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePanelModels_ListsConfigured(t *testing.T) {
	r := newTestPanelHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/expert-panel/models", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	models := body["models"].([]interface{})
	require.Len(t, models, 1)
	assert.Equal(t, "fake-model", models[0].(map[string]interface{})["name"])
}
