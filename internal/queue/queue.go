// Package queue implements the analysis task queue: deduplicated
// submission keyed by stock code, a bounded worker pool that executes
// tasks FIFO, lifecycle event publication, and bounded in-memory
// retention of terminal tasks.
package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/errs"
	"github.com/stockpanel/sentinel/internal/events"
)

// MaxTerminalRetention caps how many completed/failed tasks stay
// queryable in memory before the oldest is evicted.
const MaxTerminalRetention = 1000

// maxPending bounds the dispatch channel; a submission beyond this
// depth is handed to a goroutine that waits for room, so Submit itself
// does not block. In practice the dedupe check keeps outstanding work
// well under this.
const maxPending = 4096

// maxErrorLen truncates a task's terminal error text before it is
// attached to its lifecycle event or status response.
const maxErrorLen = 200

// Reporter lets an in-flight task report incremental progress.
type Reporter = func(progress int, message string)

// Executor performs the actual analysis work for one task: context
// assembly, expert panel, report persistence. It is supplied by the
// orchestrator wiring, not the queue itself.
type Executor func(ctx context.Context, task *domain.Task, report Reporter) (*domain.AnalysisReport, error)

// Manager is the task queue. It owns every Task's state transitions
// under mu; the worker pool executes task bodies outside the lock.
type Manager struct {
	mu       sync.Mutex
	tasks    map[string]*domain.Task
	byCode   map[string]string // stock_code -> task_id, present only while pending/processing
	terminal []string          // task ids in completion order, oldest first

	dispatch chan string
	executor Executor
	workers  int

	bus *events.Bus
	log zerolog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}
}

// New builds a Manager with the given worker pool size. Start must be
// called before tasks are dispatched.
func New(workers int, executor Executor, bus *events.Bus, log zerolog.Logger) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{
		tasks:    make(map[string]*domain.Task),
		byCode:   make(map[string]string),
		dispatch: make(chan string, maxPending),
		executor: executor,
		workers:  workers,
		bus:      bus,
		log:      log.With().Str("component", "task_queue").Logger(),
		stop:     make(chan struct{}),
	}
}

// Start launches the worker pool. Call once.
func (m *Manager) Start() {
	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.runWorker(i)
	}
	m.log.Info().Int("workers", m.workers).Msg("task queue started")
}

// Stop closes the stop channel and waits for the workers to return. It
// does not cancel a worker mid-task: each worker finishes its current
// task and then stops pulling new ones.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.wg.Wait()
}

// Submit enqueues a new analysis task, failing with errs.DuplicateTask
// if stock_code already has a pending or processing task.
func (m *Manager) Submit(stockCode, stockName string, reportType domain.ReportType, forceRefresh bool) (*domain.Task, error) {
	m.mu.Lock()
	if existingID, ok := m.byCode[stockCode]; ok {
		m.mu.Unlock()
		return nil, errs.DuplicateTask(stockCode, existingID)
	}

	task := &domain.Task{
		TaskID:       generateTaskID(stockCode),
		StockCode:    stockCode,
		StockName:    stockName,
		ReportType:   reportType,
		ForceRefresh: forceRefresh,
		Status:       domain.TaskPending,
		CreatedAt:    time.Now(),
	}
	m.tasks[task.TaskID] = task
	m.byCode[stockCode] = task.TaskID
	m.mu.Unlock()

	m.bus.Emit(&events.TaskCreatedData{
		TaskID:     task.TaskID,
		StockCode:  task.StockCode,
		StockName:  task.StockName,
		ReportType: string(task.ReportType),
		CreatedAt:  task.CreatedAt,
	})

	select {
	case m.dispatch <- task.TaskID:
	default:
		m.log.Warn().Str("task_id", task.TaskID).Msg("dispatch channel full, task will wait")
		go func() { m.dispatch <- task.TaskID }()
	}

	return task.Clone(), nil
}

// Get returns a snapshot of one task by id.
func (m *Manager) Get(taskID string) (*domain.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// ListAllTasks returns up to limit tasks, most recently created first.
// limit <= 0 means unbounded.
func (m *Manager) ListAllTasks(status domain.TaskStatus, limit int) []*domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ListPendingTasks returns every task currently in state pending, FIFO
// (oldest first — the order workers will pick them up).
func (m *Manager) ListPendingTasks() []*domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Task, 0)
	for _, t := range m.tasks {
		if t.Status == domain.TaskPending {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetTaskStats returns a count of tasks per status.
func (m *Manager) GetTaskStats() map[domain.TaskStatus]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := map[domain.TaskStatus]int{
		domain.TaskPending:    0,
		domain.TaskProcessing: 0,
		domain.TaskCompleted:  0,
		domain.TaskFailed:     0,
	}
	for _, t := range m.tasks {
		stats[t.Status]++
	}
	return stats
}

func generateTaskID(stockCode string) string {
	ts := time.Now().UTC().Format("20060102T150405.000000")
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s", stockCode, ts, suffix)
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if len(s) > maxErrorLen {
		return s[:maxErrorLen]
	}
	return s
}
