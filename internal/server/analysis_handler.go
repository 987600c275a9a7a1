package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/errs"
	"github.com/stockpanel/sentinel/internal/events"
	"github.com/stockpanel/sentinel/internal/queue"
	"github.com/stockpanel/sentinel/internal/reportstore"
)

// syncPollInterval is how often the sync analyze path re-checks task
// status while waiting for a worker to finish it.
const syncPollInterval = 250 * time.Millisecond

// AnalysisHandlers serves the task submission/lifecycle surface
// (spec.md §6): analyze, status, tasks listing, and the SSE stream.
type AnalysisHandlers struct {
	queue   *queue.Manager
	bus     *events.Bus
	reports *reportstore.Store
	log     zerolog.Logger
}

// NewAnalysisHandlers builds the analysis HTTP surface.
func NewAnalysisHandlers(q *queue.Manager, bus *events.Bus, reports *reportstore.Store, log zerolog.Logger) *AnalysisHandlers {
	return &AnalysisHandlers{queue: q, bus: bus, reports: reports, log: log.With().Str("component", "analysis_handlers").Logger()}
}

// RegisterRoutes mounts this handler group under /analysis.
func (h *AnalysisHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/analysis", func(r chi.Router) {
		r.Post("/analyze", h.handleAnalyze)
		r.Get("/status/{task_id}", h.handleStatus)
		r.Get("/tasks", h.handleListTasks)
		r.Get("/tasks/stream", NewTaskEventsStream(h.bus, h.log).ServeHTTP)
		r.Get("/reports/{query_id}", h.handleGetReport)
	})
}

// handleGetReport reads a persisted report directly out of the report
// store by query_id, independent of whether the originating task is
// still tracked by the queue (spec.md §3: AnalysisReport is
// retrievable by query_id after the task itself has aged out).
func (h *AnalysisHandlers) handleGetReport(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "query_id")
	report, err := h.reports.GetByQueryID(r.Context(), queryID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, reportEnvelope(report))
}

type analyzeRequest struct {
	StockCode    string   `json:"stock_code"`
	StockCodes   []string `json:"stock_codes"`
	ReportType   string   `json:"report_type"`
	ForceRefresh bool     `json:"force_refresh"`
	AsyncMode    *bool    `json:"async_mode"`
}

func (h *AnalysisHandlers) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, errs.Wrap(errs.KindValidation, "malformed request body", err))
		return
	}

	codes := req.StockCodes
	if req.StockCode != "" {
		codes = append([]string{req.StockCode}, codes...)
	}
	if len(codes) == 0 {
		writeError(w, h.log, errs.New(errs.KindValidation, "stock_code or stock_codes is required"))
		return
	}

	reportType := domain.ReportType(req.ReportType)
	if reportType == "" {
		reportType = domain.ReportFull
	}

	async := true
	if req.AsyncMode != nil {
		async = *req.AsyncMode
	}

	if len(codes) == 1 && !async {
		h.analyzeSync(w, r, codes[0], reportType, req.ForceRefresh)
		return
	}

	if len(codes) == 1 {
		task, err := h.queue.Submit(codes[0], "", reportType, req.ForceRefresh)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"task_id": task.TaskID,
			"status":  string(task.Status),
			"message": "task accepted",
		})
		return
	}

	tasks := make([]map[string]interface{}, 0, len(codes))
	for _, code := range codes {
		task, err := h.queue.Submit(code, "", reportType, req.ForceRefresh)
		if err != nil {
			var qErr *errs.Error
			if asErr, ok := err.(*errs.Error); ok {
				qErr = asErr
			}
			tasks = append(tasks, map[string]interface{}{"stock_code": code, "error": qErr})
			continue
		}
		tasks = append(tasks, map[string]interface{}{"task_id": task.TaskID, "status": string(task.Status), "stock_code": code, "message": "task accepted"})
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"tasks": tasks})
}

// analyzeSync submits a task and blocks (bounded by the request
// context) until it reaches a terminal state, then returns the full
// report envelope rather than a task handle.
func (h *AnalysisHandlers) analyzeSync(w http.ResponseWriter, r *http.Request, code string, reportType domain.ReportType, forceRefresh bool) {
	task, err := h.queue.Submit(code, "", reportType, forceRefresh)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	ticker := time.NewTicker(syncPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			cur, ok := h.queue.Get(task.TaskID)
			if !ok {
				writeError(w, h.log, errs.New(errs.KindNotFound, "task vanished"))
				return
			}
			switch cur.Status {
			case domain.TaskCompleted:
				writeJSON(w, http.StatusOK, reportEnvelope(cur.Result))
				return
			case domain.TaskFailed:
				writeError(w, h.log, errs.New(errs.KindAnalysisFailed, cur.Error))
				return
			}
		}
	}
}

func (h *AnalysisHandlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	task, ok := h.queue.Get(taskID)
	if !ok {
		writeError(w, h.log, errs.New(errs.KindNotFound, "unknown task_id"))
		return
	}

	body := map[string]interface{}{
		"task_id":  task.TaskID,
		"status":   string(task.Status),
		"progress": task.Progress,
	}
	if task.Result != nil {
		body["result"] = reportEnvelope(task.Result)
	}
	if task.Error != "" {
		body["error"] = task.Error
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *AnalysisHandlers) handleListTasks(w http.ResponseWriter, r *http.Request) {
	status := domain.TaskStatus(r.URL.Query().Get("status"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	tasks := h.queue.ListAllTasks(status, limit)
	out := make([]map[string]interface{}, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, map[string]interface{}{
			"task_id":    t.TaskID,
			"stock_code": t.StockCode,
			"status":     string(t.Status),
			"progress":   t.Progress,
			"created_at": t.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": out,
		"counts": h.queue.GetTaskStats(),
	})
}
