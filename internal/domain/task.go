package domain

import "time"

// TaskStatus is the lifecycle state of an analysis task. States move
// forward only: pending -> processing -> {completed, failed}.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// ReportType selects how deep an analysis goes.
type ReportType string

const (
	ReportSimple ReportType = "simple"
	ReportFull   ReportType = "full"
)

// Task is the lifecycle record for one analysis request. The queue owns
// a Task for its entire life and mutates it only under its lock.
type Task struct {
	TaskID       string
	StockCode    string
	StockName    string
	ReportType   ReportType
	ForceRefresh bool

	Status   TaskStatus
	Progress int // 0..100

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	Message string
	Error   string

	Result *AnalysisReport
}

// Clone returns a shallow copy suitable for returning to callers without
// exposing the queue's internal pointer under its lock.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
