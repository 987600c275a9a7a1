package domain

import "time"

// AnalysisReport is the durable, immutable record of one completed
// analysis. Once persisted it is owned by the report store; the queue
// only ever holds a reference to it via Task.Result.
type AnalysisReport struct {
	QueryID    string
	StockCode  string
	StockName  string
	ReportType ReportType
	CreatedAt  time.Time

	CurrentPrice *float64
	ChangePct    *float64

	AnalysisSummary  string
	OperationAdvice  string
	TrendPrediction  string
	SentimentScore   *float64
	SentimentLabel   string

	Strategy StrategyPoints

	NewsContent     string
	RawResult       []byte // msgpack-encoded PanelResult snapshot
	ContextSnapshot []byte // msgpack-encoded orchestration context snapshot
}
