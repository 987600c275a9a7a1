package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/events"
)

// runWorker pulls task ids off the dispatch channel FIFO and executes
// them one at a time. Workers never hold mu across I/O: each state
// transition takes the lock just long enough to mutate the map.
func (m *Manager) runWorker(id int) {
	defer m.wg.Done()
	log := m.log.With().Int("worker", id).Logger()

	for {
		select {
		case <-m.stop:
			return
		case taskID := <-m.dispatch:
			m.runTask(taskID, log)
		}
	}
}

func (m *Manager) runTask(taskID string, log zerolog.Logger) {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	if !ok || task.Status != domain.TaskPending {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	task.Status = domain.TaskProcessing
	task.StartedAt = &now
	task.Progress = 0
	m.mu.Unlock()

	m.bus.Emit(&events.TaskStartedData{TaskID: task.TaskID, StockCode: task.StockCode, StartedAt: now})

	reporter := func(progress int, message string) {
		m.mu.Lock()
		if t, ok := m.tasks[taskID]; ok {
			if progress > t.Progress {
				t.Progress = progress
			}
			t.Message = message
		}
		m.mu.Unlock()
		m.bus.Emit(&events.TaskProgressData{TaskID: taskID, Progress: progress, Message: message})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := m.executor(ctx, task.Clone(), reporter)

	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return
	}
	completedAt := time.Now()
	t.CompletedAt = &completedAt
	if err != nil {
		t.Status = domain.TaskFailed
		t.Error = truncateError(err)
	} else {
		t.Status = domain.TaskCompleted
		t.Progress = 100
		t.Result = report
	}
	m.finishLocked(t)
	m.mu.Unlock()

	if err != nil {
		log.Warn().Str("task_id", taskID).Str("stock_code", t.StockCode).Err(err).Msg("task failed")
		m.bus.Emit(&events.TaskFailedData{TaskID: taskID, StockCode: t.StockCode, Error: t.Error, FailedAt: completedAt})
		return
	}

	var queryID string
	if report != nil {
		queryID = report.QueryID
	}
	log.Info().Str("task_id", taskID).Str("stock_code", t.StockCode).Msg("task completed")
	m.bus.Emit(&events.TaskCompletedData{
		TaskID:      taskID,
		StockCode:   t.StockCode,
		QueryID:     queryID,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(*t.StartedAt).Seconds(),
	})
}

// finishLocked removes the task's dedupe entry (so a new submission
// for the same stock code is immediately accepted) and enforces
// terminal retention. Callers must hold mu.
func (m *Manager) finishLocked(t *domain.Task) {
	if id, ok := m.byCode[t.StockCode]; ok && id == t.TaskID {
		delete(m.byCode, t.StockCode)
	}

	m.terminal = append(m.terminal, t.TaskID)
	if len(m.terminal) > MaxTerminalRetention {
		evict := m.terminal[0]
		m.terminal = m.terminal[1:]
		delete(m.tasks, evict)
	}
}
