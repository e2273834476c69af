// Package scheduler runs the feed import on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"eventdesk/internal/log"
)

// ErrBusy is returned by RunNow while a run is in progress.
var ErrBusy = errors.New("job already running")

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner with a single job. Runs never overlap: a
// tick that fires while the previous run is still busy is skipped.
type Scheduler struct {
	name    string
	job     Job
	timeout time.Duration
	running atomic.Bool

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	spec    string
	baseCtx context.Context
}

// New creates a scheduler for job. timeout bounds a single run; zero means
// no limit beyond the scheduler's own context.
func New(name string, job Job, timeout time.Duration) *Scheduler {
	return &Scheduler{name: name, job: job, timeout: timeout}
}

// Start schedules the job using a standard five-field cron spec and returns
// immediately. The scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{}),
		cron.SkipIfStillRunning(cronLogger{}),
	))

	s.mu.Lock()
	if s.cron != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler %s already started", s.name)
	}
	s.cron = c
	s.spec = spec
	s.baseCtx = ctx
	s.entry = c.Schedule(schedule, cron.FuncJob(s.run))
	s.mu.Unlock()

	c.Start()
	log.Info("scheduler started", "name", s.name, "schedule", spec)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Reschedule swaps the cron spec without restarting the runner.
func (s *Scheduler) Reschedule(spec string) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return fmt.Errorf("scheduler %s not started", s.name)
	}
	if spec == s.spec {
		return nil
	}
	s.cron.Remove(s.entry)
	s.entry = s.cron.Schedule(schedule, cron.FuncJob(s.run))
	log.Info("scheduler rescheduled", "name", s.name, "from", s.spec, "to", spec)
	s.spec = spec
	return nil
}

// Next reports when the job runs next. The zero time means not scheduled.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Stop stops the runner and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

// RunNow executes the job synchronously, outside the cron schedule. It
// fails with ErrBusy instead of overlapping a run already in progress.
func (s *Scheduler) RunNow(ctx context.Context) error {
	return s.runWith(ctx)
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if err := s.runWith(ctx); err != nil && !errors.Is(err, ErrBusy) {
		log.Error("scheduled job failed", err, "name", s.name)
	}
}

func (s *Scheduler) runWith(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		log.Debug("scheduled job skipped, still running", "name", s.name)
		return ErrBusy
	}
	defer s.running.Store(false)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	started := time.Now()
	err := s.job(ctx)
	log.Debug("scheduled job finished", "name", s.name, "took", time.Since(started).Round(time.Millisecond), "ok", err == nil)
	return err
}

// cronLogger routes robfig/cron's internal logging through our logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error("cron: "+msg, err, keysAndValues...)
}
