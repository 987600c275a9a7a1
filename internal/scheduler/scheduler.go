// Package scheduler runs the daily watchlist batch analysis on a cron
// schedule, independent of the on-demand task queue.
package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one schedulable unit of work.
type Job interface {
	Run()
	Name() string
}

// Scheduler wraps a cron.Cron, logging job start/failure.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New builds a Scheduler with minute-level granularity (no seconds
// field), matching SCHEDULE_TIME's HH:MM precision.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop waits for in-flight job runs to finish, then returns.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers job against a standard 5-field cron spec (minute
// hour dom month dow).
func (s *Scheduler) AddJob(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.log.Info().Str("job", job.Name()).Msg("running scheduled job")
		job.Run()
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("schedule", spec).Str("job", job.Name()).Msg("job registered")
	return nil
}
