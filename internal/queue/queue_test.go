package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/errs"
	"github.com/stockpanel/sentinel/internal/events"
)

func newTestManager(t *testing.T, executor Executor) *Manager {
	t.Helper()
	bus := events.NewBus(zerolog.Nop())
	m := New(2, executor, bus, zerolog.Nop())
	m.Start()
	t.Cleanup(m.Stop)
	return m
}

func blockingExecutor(release chan struct{}) Executor {
	return func(ctx context.Context, task *domain.Task, report Reporter) (*domain.AnalysisReport, error) {
		<-release
		return &domain.AnalysisReport{QueryID: task.TaskID, StockCode: task.StockCode}, nil
	}
}

func TestSubmit_DedupesPendingTask(t *testing.T) {
	release := make(chan struct{})
	m := newTestManager(t, blockingExecutor(release))
	defer close(release)

	task1, err := m.Submit("600519", "Kweichow Moutai", domain.ReportSimple, false)
	require.NoError(t, err)

	_, err = m.Submit("600519", "", domain.ReportSimple, false)
	require.Error(t, err)

	var qErr *errs.Error
	require.ErrorAs(t, err, &qErr)
	assert.Equal(t, errs.KindDuplicateTask, qErr.Kind)
	assert.Equal(t, task1.TaskID, qErr.Extra["existing_task_id"])
}

func TestSubmit_AllowsResubmitAfterCompletion(t *testing.T) {
	release := make(chan struct{})
	m := newTestManager(t, blockingExecutor(release))

	task1, err := m.Submit("600519", "", domain.ReportSimple, false)
	require.NoError(t, err)
	close(release)

	require.Eventually(t, func() bool {
		got, ok := m.Get(task1.TaskID)
		return ok && got.Status == domain.TaskCompleted
	}, time.Second, 10*time.Millisecond)

	_, err = m.Submit("600519", "", domain.ReportSimple, false)
	assert.NoError(t, err)
}

func TestGetTaskStats_CountsByStatus(t *testing.T) {
	release := make(chan struct{})
	m := newTestManager(t, blockingExecutor(release))

	_, err := m.Submit("600519", "", domain.ReportSimple, false)
	require.NoError(t, err)
	_, err = m.Submit("000001", "", domain.ReportSimple, false)
	require.NoError(t, err)
	close(release)

	require.Eventually(t, func() bool {
		stats := m.GetTaskStats()
		return stats[domain.TaskCompleted] == 2
	}, time.Second, 10*time.Millisecond)
}

func TestTaskFailed_RecordsTruncatedError(t *testing.T) {
	longMsg := ""
	for i := 0; i < 50; i++ {
		longMsg += "0123456789"
	}
	executor := func(ctx context.Context, task *domain.Task, report Reporter) (*domain.AnalysisReport, error) {
		return nil, fmt.Errorf("%s", longMsg)
	}
	m := newTestManager(t, executor)

	task, err := m.Submit("600519", "", domain.ReportSimple, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := m.Get(task.TaskID)
		return ok && got.Status == domain.TaskFailed
	}, time.Second, 10*time.Millisecond)

	got, _ := m.Get(task.TaskID)
	assert.LessOrEqual(t, len(got.Error), maxErrorLen)
}

func TestBus_PublishesLifecycleEvents(t *testing.T) {
	release := make(chan struct{})
	bus := events.NewBus(zerolog.Nop())
	m := New(1, blockingExecutor(release), bus, zerolog.Nop())
	m.Start()
	t.Cleanup(m.Stop)

	var mu sync.Mutex
	var seen []events.EventType
	bus.Subscribe(func(e *events.EventWithData) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	})

	_, err := m.Submit("600519", "", domain.ReportSimple, false)
	require.NoError(t, err)
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 3
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, events.TaskCreated, seen[0])
	assert.Equal(t, events.TaskStarted, seen[1])
	assert.Equal(t, events.TaskCompleted, seen[2])
}
