// Package events defines the task lifecycle event types published by
// the task queue and consumed by the SSE stream handler.
package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the shape of an event's Data payload.
type EventType string

const (
	TaskCreated   EventType = "task_created"
	TaskStarted   EventType = "task_started"
	TaskProgress  EventType = "task_progress"
	TaskCompleted EventType = "task_completed"
	TaskFailed    EventType = "task_failed"
	ErrorOccurred EventType = "error_occurred"
)

// EventData is implemented by every typed event payload.
type EventData interface {
	EventType() EventType
}

// TaskCreatedData is emitted the moment a task is accepted into the
// queue, before a worker has picked it up.
type TaskCreatedData struct {
	TaskID     string `json:"task_id"`
	StockCode  string `json:"stock_code"`
	StockName  string `json:"stock_name,omitempty"`
	ReportType string `json:"report_type"`
	CreatedAt  time.Time `json:"created_at"`
}

func (d *TaskCreatedData) EventType() EventType { return TaskCreated }

// TaskStartedData is emitted when a worker picks a task off the queue.
type TaskStartedData struct {
	TaskID    string    `json:"task_id"`
	StockCode string    `json:"stock_code"`
	StartedAt time.Time `json:"started_at"`
}

func (d *TaskStartedData) EventType() EventType { return TaskStarted }

// TaskProgressData carries an incremental progress update for a running
// task: Progress is a 0..100 percentage and Message an optional
// description of the current step.
type TaskProgressData struct {
	TaskID   string `json:"task_id"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

func (d *TaskProgressData) EventType() EventType { return TaskProgress }

// TaskCompletedData is emitted once a task's analysis report has been
// persisted and is ready to be read back by the caller.
type TaskCompletedData struct {
	TaskID      string    `json:"task_id"`
	StockCode   string    `json:"stock_code"`
	QueryID     string    `json:"query_id,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
	Duration    float64   `json:"duration_seconds,omitempty"`
}

func (d *TaskCompletedData) EventType() EventType { return TaskCompleted }

// TaskFailedData is emitted when a task's executor returns an error.
// Tasks are not retried.
type TaskFailedData struct {
	TaskID    string    `json:"task_id"`
	StockCode string    `json:"stock_code"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
}

func (d *TaskFailedData) EventType() EventType { return TaskFailed }

// ErrorEventData carries an out-of-band error not tied to a specific
// task (e.g. a provider cascade exhausted, a config reload failure).
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (d *ErrorEventData) EventType() EventType { return ErrorOccurred }

// EventWithData is the envelope published on the bus and framed onto
// the SSE stream. Data is serialized through its concrete type so
// subscribers (or a replay log) can round-trip it without a registry.
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

// MarshalJSON serializes Data through its concrete type rather than the
// EventData interface, so json doesn't flatten it to an empty object.
func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON dispatches Data into the concrete struct matching Type,
// falling back to GenericEventData for anything it doesn't recognize.
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) > 0 {
		var eventData EventData
		switch aux.Type {
		case TaskCreated:
			eventData = &TaskCreatedData{}
		case TaskStarted:
			eventData = &TaskStartedData{}
		case TaskProgress:
			eventData = &TaskProgressData{}
		case TaskCompleted:
			eventData = &TaskCompletedData{}
		case TaskFailed:
			eventData = &TaskFailedData{}
		case ErrorOccurred:
			eventData = &ErrorEventData{}
		default:
			var rawData map[string]interface{}
			if err := json.Unmarshal(aux.Data, &rawData); err != nil {
				return err
			}
			eventData = &GenericEventData{Type: aux.Type, Data: rawData}
		}

		if err := json.Unmarshal(aux.Data, eventData); err != nil {
			return err
		}
		e.Data = eventData
	}

	return nil
}

// GenericEventData is a fallback for event types this build doesn't
// know about, e.g. when reading a replay log written by a newer build.
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

func (d *GenericEventData) EventType() EventType { return d.Type }

func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
