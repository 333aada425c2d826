// Package scheduler runs the daemon's periodic discovery and dispatch ticks on
// cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"faceomatic/internal/logging"
)

// Task is one periodic unit of work. The context is cancelled when the
// scheduler stops.
type Task func(ctx context.Context) error

// Scheduler wraps a cron runner whose entries never overlap themselves.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

// New constructs a scheduler that evaluates schedules in UTC.
func New(logger *slog.Logger) *Scheduler {
	logger = logging.NewComponentLogger(logger, "scheduler")
	adapter := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers task under name with a standard five-field cron expression.
func (s *Scheduler) Add(name, expr string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[name]; dup {
		return fmt.Errorf("schedule %q already registered", name)
	}
	id, err := s.cron.AddFunc(expr, func() { s.runTask(name, task) })
	if err != nil {
		return fmt.Errorf("schedule %q (%s): %w", name, expr, err)
	}
	s.entries[name] = id
	s.logger.Info("task scheduled", logging.String("task", name), logging.String("schedule", expr))
	return nil
}

func (s *Scheduler) runTask(name string, task Task) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := task(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.WarnWithContext(s.logger, "scheduled task failed", "task_failed",
			logging.String("task", name),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the task runs again at its next tick"),
		)
		return
	}
	s.logger.Debug("scheduled task finished", logging.String("task", name), logging.Duration("duration", time.Since(start)))
}

// Start begins firing entries.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts new ticks, cancels running tasks, and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	<-s.cron.Stop().Done()
}

// Next returns the next fire time of each entry by name.
func (s *Scheduler) Next() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

// cronLogger adapts slog to cron.Logger. cron's Info output is per-tick
// chatter, so it goes to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{logging.Error(err)}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
