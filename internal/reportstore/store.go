// Package reportstore persists completed AnalysisReports to sqlite,
// append-only, queryable by query_id or by (code, date-range).
package reportstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stockpanel/sentinel/internal/database"
	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/errs"
)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_reports (
	query_id         TEXT PRIMARY KEY,
	stock_code       TEXT NOT NULL,
	stock_name       TEXT,
	report_type      TEXT NOT NULL,
	created_at       TIMESTAMP NOT NULL,
	current_price    REAL,
	change_pct       REAL,
	analysis_summary TEXT,
	operation_advice TEXT,
	trend_prediction TEXT,
	sentiment_score  REAL,
	sentiment_label  TEXT,
	ideal_buy        TEXT,
	secondary_buy    TEXT,
	stop_loss        TEXT,
	take_profit      TEXT,
	news_content     TEXT,
	raw_result       BLOB,
	context_snapshot BLOB
);
CREATE INDEX IF NOT EXISTS idx_analysis_reports_code_date ON analysis_reports(stock_code, created_at);
`

// Store is the sqlite-backed report repository.
type Store struct {
	db *database.DB
}

// New opens (and migrates) the report store's schema on db.
func New(db *database.DB) (*Store, error) {
	if err := db.Migrate(schema); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Save inserts report. Reports are immutable once persisted — Save
// never updates an existing query_id.
func (s *Store) Save(ctx context.Context, r *domain.AnalysisReport) error {
	_, err := s.db.Conn().ExecContext(ctx, `
		INSERT INTO analysis_reports (
			query_id, stock_code, stock_name, report_type, created_at,
			current_price, change_pct, analysis_summary, operation_advice,
			trend_prediction, sentiment_score, sentiment_label,
			ideal_buy, secondary_buy, stop_loss, take_profit,
			news_content, raw_result, context_snapshot
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.QueryID, r.StockCode, r.StockName, string(r.ReportType), r.CreatedAt,
		r.CurrentPrice, r.ChangePct, r.AnalysisSummary, r.OperationAdvice,
		r.TrendPrediction, r.SentimentScore, r.SentimentLabel,
		r.Strategy.IdealBuy, r.Strategy.SecondaryBuy, r.Strategy.StopLoss, r.Strategy.TakeProfit,
		r.NewsContent, r.RawResult, r.ContextSnapshot,
	)
	if err != nil {
		return fmt.Errorf("save report %s: %w", r.QueryID, err)
	}
	return nil
}

// GetByQueryID retrieves a single report by its query id.
func (s *Store) GetByQueryID(ctx context.Context, queryID string) (*domain.AnalysisReport, error) {
	row := s.db.Conn().QueryRowContext(ctx, `
		SELECT query_id, stock_code, stock_name, report_type, created_at,
			current_price, change_pct, analysis_summary, operation_advice,
			trend_prediction, sentiment_score, sentiment_label,
			ideal_buy, secondary_buy, stop_loss, take_profit,
			news_content, raw_result, context_snapshot
		FROM analysis_reports WHERE query_id = ?`, queryID)

	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, errs.New(errs.KindNotFound, "report not found: "+queryID)
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", queryID, err)
	}
	return r, nil
}

// ListByCodeRange returns reports for code created within [from, to],
// newest first, paginated by limit/offset.
func (s *Store) ListByCodeRange(ctx context.Context, code string, from, to time.Time, limit, offset int) ([]*domain.AnalysisReport, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT query_id, stock_code, stock_name, report_type, created_at,
			current_price, change_pct, analysis_summary, operation_advice,
			trend_prediction, sentiment_score, sentiment_label,
			ideal_buy, secondary_buy, stop_loss, take_profit,
			news_content, raw_result, context_snapshot
		FROM analysis_reports
		WHERE stock_code = ? AND created_at BETWEEN ? AND ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`, code, from, to, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reports for %s: %w", code, err)
	}
	defer rows.Close()

	var out []*domain.AnalysisReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListCreatedSince returns every report created at or after since,
// oldest first. Used by the periodic archiver to pick up reports
// persisted since its last run.
func (s *Store) ListCreatedSince(ctx context.Context, since time.Time) ([]*domain.AnalysisReport, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `
		SELECT query_id, stock_code, stock_name, report_type, created_at,
			current_price, change_pct, analysis_summary, operation_advice,
			trend_prediction, sentiment_score, sentiment_label,
			ideal_buy, secondary_buy, stop_loss, take_profit,
			news_content, raw_result, context_snapshot
		FROM analysis_reports
		WHERE created_at >= ?
		ORDER BY created_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("list reports since %s: %w", since, err)
	}
	defer rows.Close()

	var out []*domain.AnalysisReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row scanner) (*domain.AnalysisReport, error) {
	var r domain.AnalysisReport
	var reportType string
	if err := row.Scan(
		&r.QueryID, &r.StockCode, &r.StockName, &reportType, &r.CreatedAt,
		&r.CurrentPrice, &r.ChangePct, &r.AnalysisSummary, &r.OperationAdvice,
		&r.TrendPrediction, &r.SentimentScore, &r.SentimentLabel,
		&r.Strategy.IdealBuy, &r.Strategy.SecondaryBuy, &r.Strategy.StopLoss, &r.Strategy.TakeProfit,
		&r.NewsContent, &r.RawResult, &r.ContextSnapshot,
	); err != nil {
		return nil, err
	}
	r.ReportType = domain.ReportType(reportType)
	return &r, nil
}
