package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs int32
}

func (j *countingJob) Name() string { return j.name }
func (j *countingJob) Run()         { atomic.AddInt32(&j.runs, 1) }

func TestScheduler_RunsRegisteredJobOnSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "every-second"}

	require.NoError(t, s.AddJob("@every 10ms", job))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&job.runs) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_AddJobRejectsInvalidSpec(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a cron spec", &countingJob{name: "bad"})
	assert.Error(t, err)
}

func TestScheduler_NoRunsAfterStop(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "quick"}
	require.NoError(t, s.AddJob("@every 10ms", job))
	s.Start()

	time.Sleep(50 * time.Millisecond)
	s.Stop()

	runsAtStop := atomic.LoadInt32(&job.runs)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, runsAtStop, atomic.LoadInt32(&job.runs), "no further runs after Stop returns")
}
