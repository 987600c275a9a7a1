package server

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/stockpanel/sentinel/internal/domain"
)

// reportEnvelope builds the persisted report envelope shape (spec.md
// §6): meta/summary/strategy/details sections.
func reportEnvelope(r *domain.AnalysisReport) map[string]interface{} {
	meta := map[string]interface{}{
		"query_id":    r.QueryID,
		"stock_code":  r.StockCode,
		"stock_name":  r.StockName,
		"report_type": r.ReportType,
		"created_at":  r.CreatedAt,
	}
	if r.CurrentPrice != nil {
		meta["current_price"] = *r.CurrentPrice
	}
	if r.ChangePct != nil {
		meta["change_pct"] = *r.ChangePct
	}

	summary := map[string]interface{}{
		"analysis_summary": r.AnalysisSummary,
		"operation_advice": r.OperationAdvice,
		"trend_prediction": r.TrendPrediction,
		"sentiment_label":  r.SentimentLabel,
	}
	if r.SentimentScore != nil {
		summary["sentiment_score"] = *r.SentimentScore
	}

	strategy := map[string]interface{}{
		"ideal_buy":     r.Strategy.IdealBuy,
		"secondary_buy": r.Strategy.SecondaryBuy,
		"stop_loss":     r.Strategy.StopLoss,
		"take_profit":   r.Strategy.TakeProfit,
	}

	details := map[string]interface{}{}
	if r.NewsContent != "" {
		details["news_content"] = r.NewsContent
	}
	if raw := decodeMsgpack(r.RawResult); raw != nil {
		details["raw_result"] = raw
	}
	if snap := decodeMsgpack(r.ContextSnapshot); snap != nil {
		details["context_snapshot"] = snap
	}

	return map[string]interface{}{
		"meta":     meta,
		"summary":  summary,
		"strategy": strategy,
		"details":  details,
	}
}

// decodeMsgpack best-effort-decodes a msgpack blob back into a plain
// JSON-marshalable value; a decode failure just omits the section
// rather than failing the whole response.
func decodeMsgpack(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	var v interface{}
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return nil
	}
	return v
}
