package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/errs"
	"github.com/stockpanel/sentinel/internal/panel"
)

// PanelHandlers serves the direct expert-panel path (spec.md §6): run
// the panel over caller-supplied context without going through the
// task queue or the data-provider cascade, and list currently
// configured models.
type PanelHandlers struct {
	panel  *panel.Runner
	models ModelsOf
	log    zerolog.Logger
}

// NewPanelHandlers builds the direct expert-panel HTTP surface.
func NewPanelHandlers(p *panel.Runner, models ModelsOf, log zerolog.Logger) *PanelHandlers {
	return &PanelHandlers{panel: p, models: models, log: log.With().Str("component", "panel_handlers").Logger()}
}

// RegisterRoutes mounts this handler group under /expert-panel.
func (h *PanelHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/expert-panel", func(r chi.Router) {
		r.Post("/analyze", h.handleAnalyze)
		r.Get("/models", h.handleModels)
	})
}

type panelAnalyzeRequest struct {
	StockCode  string                 `json:"stock_code"`
	StockName  string                 `json:"stock_name"`
	ReportType string                 `json:"report_type"`
	Context    map[string]interface{} `json:"context"`
	Models     []string               `json:"models"`
}

func (h *PanelHandlers) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req panelAnalyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, errs.Wrap(errs.KindValidation, "malformed request body", err))
		return
	}
	if req.StockCode == "" {
		writeError(w, h.log, errs.New(errs.KindValidation, "stock_code is required"))
		return
	}

	reportType := domain.ReportType(req.ReportType)
	if reportType == "" {
		reportType = domain.ReportFull
	}

	configs := h.models(reportType)
	selected := panel.Select(configs, req.Models)
	if len(selected) == 0 {
		writeError(w, h.log, errs.New(errs.KindValidation, "no expert models available for the requested selection"))
		return
	}

	result := h.panel.Run(r.Context(), panel.AnalysisInput{
		StockCode: req.StockCode,
		StockName: req.StockName,
		Context:   req.Context,
	}, selected)

	writeJSON(w, http.StatusOK, result)
}

func (h *PanelHandlers) handleModels(w http.ResponseWriter, r *http.Request) {
	reportType := domain.ReportType(r.URL.Query().Get("report_type"))
	if reportType == "" {
		reportType = domain.ReportFull
	}

	configs := h.models(reportType)
	out := make([]map[string]interface{}, 0, len(configs))
	for _, c := range configs {
		out = append(out, map[string]interface{}{
			"name":           c.Name,
			"provider":       c.Provider,
			"endpoint_count": len(c.Endpoints),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"models": out})
}
