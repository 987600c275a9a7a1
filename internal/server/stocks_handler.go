package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stockpanel/sentinel/internal/cascade"
	"github.com/stockpanel/sentinel/internal/errs"
	"github.com/stockpanel/sentinel/internal/reportstore"
)

const defaultHistoryDays = 120
const defaultReportsLimit = 20

// StocksHandlers serves unified quote/history lookups straight off the
// data provider cascade, bypassing the task queue entirely, plus the
// persisted per-symbol report history.
type StocksHandlers struct {
	cascade *cascade.Manager
	reports *reportstore.Store
	log     zerolog.Logger
}

// NewStocksHandlers builds the quote/history HTTP surface.
func NewStocksHandlers(c *cascade.Manager, reports *reportstore.Store, log zerolog.Logger) *StocksHandlers {
	return &StocksHandlers{cascade: c, reports: reports, log: log.With().Str("component", "stocks_handlers").Logger()}
}

// RegisterRoutes mounts this handler group under /stocks.
func (h *StocksHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/stocks/{code}", func(r chi.Router) {
		r.Get("/quote", h.handleQuote)
		r.Get("/history", h.handleHistory)
		r.Get("/reports", h.handleReportHistory)
	})
}

func (h *StocksHandlers) handleQuote(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	quote, err := h.cascade.GetRealtime(r.Context(), code)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if quote == nil {
		writeError(w, h.log, errs.New(errs.KindNotFound, "no quote available for "+code))
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *StocksHandlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if period := r.URL.Query().Get("period"); period != "" && period != "daily" {
		writeError(w, h.log, errs.New(errs.KindUnsupportedPeriod, "only period=daily is supported"))
		return
	}

	days := defaultHistoryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, h.log, errs.New(errs.KindValidation, "days must be a positive integer"))
			return
		}
		days = n
	}

	series, err := h.cascade.GetDaily(r.Context(), code, days)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// handleReportHistory lists previously persisted analysis reports for
// a symbol, newest first, optionally bounded by a date range.
func (h *StocksHandlers) handleReportHistory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	q := r.URL.Query()

	from := time.Unix(0, 0)
	if raw := q.Get("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, h.log, errs.Wrap(errs.KindValidation, "from must be YYYY-MM-DD", err))
			return
		}
		from = parsed
	}

	to := time.Now()
	if raw := q.Get("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, h.log, errs.Wrap(errs.KindValidation, "to must be YYYY-MM-DD", err))
			return
		}
		to = parsed
	}

	limit := defaultReportsLimit
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	reports, err := h.reports.ListByCodeRange(r.Context(), code, from, to, limit, offset)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(reports))
	for _, rep := range reports {
		out = append(out, reportEnvelope(rep))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": out})
}
