// Package scheduler triggers the escalation jobs on their cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Shivanand-hulikatti/regflow/internal/config"
	"github.com/Shivanand-hulikatti/regflow/internal/escalation"
	"github.com/Shivanand-hulikatti/regflow/internal/logging"
)

// Runner executes a named job.
type Runner interface {
	Run(ctx context.Context, name string) (*escalation.RunResult, error)
}

// Scheduler runs each escalation job on its own cron entry. Overlapping
// firings of the same job are skipped.
type Scheduler struct {
	cron     *cron.Cron
	runner   Runner
	cfg      config.SchedulerConfig
	logger   *slog.Logger
	mu       sync.Mutex
	entryIDs map[string]cron.EntryID // job name → cron entry
	ctx      context.Context
	stopped  chan struct{}
	stopOnce sync.Once
}

// New creates a Scheduler. Nothing runs until Start.
func New(cfg config.SchedulerConfig, runner Runner, logger *slog.Logger) *Scheduler {
	logger = logging.OrDiscard(logger).With("component", "scheduler")
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:   runner,
		cfg:      cfg,
		logger:   logger,
		entryIDs: make(map[string]cron.EntryID),
		ctx:      context.Background(),
		stopped:  make(chan struct{}),
	}
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Start registers every job with a non-empty schedule and starts the cron
// loop. The scheduler stops when ctx is cancelled; running jobs see the
// cancellation too.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info("scheduler disabled by config")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	for _, name := range escalation.Names() {
		if err := s.register(name, scheduleFor(s.cfg.Schedules, name)); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.entryIDs))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop stops the cron loop and waits for running jobs. Safe to call
// multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
		close(s.stopped)
		s.logger.Info("scheduler stopped")
	})
}

// Done is closed once Stop has returned.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// JobNames lists the registered jobs.
func (s *Scheduler) JobNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entryIDs))
	for name := range s.entryIDs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// register adds one job. Must be called with s.mu held.
func (s *Scheduler) register(name, schedule string) error {
	if schedule == "" {
		s.logger.Info("job has no schedule, not registered", "job", name)
		return nil
	}
	entryID, err := s.cron.AddFunc(schedule, func() {
		s.execute(name)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression for %q: %w", name, err)
	}
	s.entryIDs[name] = entryID
	s.logger.Info("job registered", "job", name, "schedule", schedule)
	return nil
}

func (s *Scheduler) execute(name string) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := s.runner.Run(ctx, name)
	if err != nil {
		s.logger.Error("scheduled job failed", "job", name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("scheduled job done", "job", name, "matched", len(res.Matched), "duration", time.Since(start))
}

func scheduleFor(s config.Schedules, name string) string {
	switch name {
	case escalation.JobReminderPending:
		return s.ReminderPending
	case escalation.JobLastNoticePending:
		return s.LastNoticePending
	case escalation.JobExpirePending:
		return s.ExpirePending
	case escalation.JobExpireWaitinglist:
		return s.ExpireWaitinglist
	}
	return ""
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
