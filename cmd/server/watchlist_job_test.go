package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpanel/sentinel/internal/configsvc"
	"github.com/stockpanel/sentinel/internal/domain"
	"github.com/stockpanel/sentinel/internal/events"
	"github.com/stockpanel/sentinel/internal/queue"
)

func noopExecutor(ctx context.Context, task *domain.Task, report queue.Reporter) (*domain.AnalysisReport, error) {
	return &domain.AnalysisReport{QueryID: task.TaskID}, nil
}

func TestWatchlistJob_SubmitsOneTaskPerSymbol(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	q := queue.New(1, noopExecutor, bus, zerolog.Nop())

	job := &watchlistJob{
		queue: q,
		config: func(ctx context.Context) configsvc.ConfigMap {
			return configsvc.ConfigMap{"STOCK_LIST": "600519, 300750"}
		},
		log: zerolog.Nop(),
	}
	job.Run()

	stats := q.GetTaskStats()
	total := stats[domain.TaskPending] + stats[domain.TaskProcessing] + stats[domain.TaskCompleted] + stats[domain.TaskFailed]
	assert.Equal(t, 2, total)
}

func TestWatchlistJob_EmptyListSubmitsNothing(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	q := queue.New(1, noopExecutor, bus, zerolog.Nop())

	job := &watchlistJob{
		queue:  q,
		config: func(ctx context.Context) configsvc.ConfigMap { return configsvc.ConfigMap{} },
		log:    zerolog.Nop(),
	}
	job.Run()

	stats := q.GetTaskStats()
	assert.Zero(t, stats[domain.TaskPending]+stats[domain.TaskProcessing]+stats[domain.TaskCompleted])
}

func TestCronSpecFromHHMM(t *testing.T) {
	spec, err := cronSpecFromHHMM("09:30")
	require.NoError(t, err)
	assert.Equal(t, "30 9 * * *", spec)

	_, err = cronSpecFromHHMM("not-a-time")
	assert.Error(t, err)

	_, err = cronSpecFromHHMM("24:00")
	assert.Error(t, err)

	_, err = cronSpecFromHHMM("09:60")
	assert.Error(t, err)
}
