// Package cron runs periodic maintenance jobs on standard 5-field cron
// schedules.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// cronParser parses standard 5-field cron expressions and @-descriptors.
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Job is a named unit of periodic work.
type Job struct {
	Name string
	Expr string
	Run  func(ctx context.Context)
}

// Config holds the dependencies for the cron scheduler.
type Config struct {
	Jobs     []Job
	Logger   *slog.Logger
	Interval time.Duration // tick interval; defaults to 1 minute if zero
	Now      func() time.Time
}

type scheduled struct {
	job     Job
	sched   cronlib.Schedule
	nextRun time.Time
}

// Scheduler checks its jobs on every tick and runs the ones that are due.
type Scheduler struct {
	jobs     []*scheduled
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler validates every job expression up front.
func NewScheduler(cfg Config) (*Scheduler, error) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	s := &Scheduler{logger: logger, interval: interval, now: now}
	start := now()
	for _, job := range cfg.Jobs {
		sched, err := cronParser.Parse(job.Expr)
		if err != nil {
			return nil, fmt.Errorf("job %s: parse %q: %w", job.Name, job.Expr, err)
		}
		s.jobs = append(s.jobs, &scheduled{job: job, sched: sched, nextRun: sched.Next(start)})
	}
	return s, nil
}

// Start begins the scheduler loop. It runs in a background goroutine
// and respects the provided context for shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("cron scheduler started", "interval", s.interval, "jobs", len(s.jobs))
}

// Stop cancels the scheduler loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs every job whose next run time has passed. A job that fell
// several periods behind runs once.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	for _, j := range s.jobs {
		if now.Before(j.nextRun) {
			continue
		}
		s.fire(ctx, j, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, j *scheduled, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cron: job panicked", "job", j.job.Name, "panic", fmt.Sprint(r))
		}
		j.nextRun = j.sched.Next(now)
	}()
	j.job.Run(ctx)
	s.logger.Debug("cron: job fired", "job", j.job.Name, "next_run_at", j.sched.Next(now))
}

// NextRunTime parses the cron expression and returns the next run time after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
