package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"faceomatic/internal/config"
	"faceomatic/internal/deps"
	"faceomatic/internal/discovery"
	"faceomatic/internal/jobs"
	"faceomatic/internal/ledger"
	"faceomatic/internal/logging"
	"faceomatic/internal/notifications"
	"faceomatic/internal/preflight"
	"faceomatic/internal/scheduler"
	"faceomatic/internal/workflow"
)

const (
	scheduleDiscovery = "discovery"
	scheduleDispatch  = "dispatch"
)

// Registrar is the discovery entry point the daemon schedules.
type Registrar interface {
	Run(ctx context.Context) (discovery.Summary, error)
}

// Options bundles the collaborators a daemon drives.
type Options struct {
	Jobs      *jobs.Store
	Ledger    *ledger.Store
	Workflow  *workflow.Manager
	Registrar Registrar
	Registry  *notifications.Registry
	Logger    *slog.Logger
	// LogPath is reported in status output.
	LogPath string
}

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	jobs      *jobs.Store
	ledger    *ledger.Store
	workflow  *workflow.Manager
	registrar Registrar
	registry  *notifications.Registry
	logPath   string

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	scheduler *scheduler.Scheduler
	api       *apiServer
	running   atomic.Bool
	cancel    context.CancelFunc
	startedAt time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	LockFilePath string                 `json:"lock_file"`
	LogPath      string                 `json:"log_path,omitempty"`
	APIAddress   string                 `json:"api_address,omitempty"`
	NextRuns     map[string]time.Time   `json:"next_runs,omitempty"`
	Workflow     workflow.StatusSummary `json:"workflow"`
	Dependencies []deps.Status          `json:"dependencies"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil || opts.Jobs == nil || opts.Ledger == nil || opts.Workflow == nil || opts.Registrar == nil {
		return nil, errors.New("daemon requires config, job store, ledger, workflow manager, and registrar")
	}
	lockPath := filepath.Join(cfg.Paths.DataDir, "faceomatic.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(opts.Logger, "daemon"),
		jobs:      opts.Jobs,
		ledger:    opts.Ledger,
		workflow:  opts.Workflow,
		registrar: opts.Registrar,
		registry:  opts.Registry,
		logPath:   opts.LogPath,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the data directory lock, recovers interrupted runs, and
// starts the schedules and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another faceomatic daemon holds %s", d.lockPath)
	}

	for _, failed := range preflight.Failed(preflight.RunLocal(ctx, d.cfg, d.registry)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldImpact, "jobs may fail until this is fixed"),
			logging.String(logging.FieldErrorHint, "run faceomatic preflight"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}

	sched := scheduler.New(d.logger)
	if err := d.registerSchedules(sched); err != nil {
		cancel()
		d.workflow.Stop()
		_ = d.lock.Unlock()
		return err
	}

	api := newAPIServer(d.cfg, d, d.logger)
	if err := api.start(runCtx); err != nil {
		cancel()
		d.workflow.Stop()
		_ = d.lock.Unlock()
		return err
	}
	sched.Start()

	d.scheduler = sched
	d.api = api
	d.cancel = cancel
	d.startedAt = time.Now().UTC()
	d.running.Store(true)
	d.logger.Info("faceomatic daemon started",
		logging.String("lock", d.lockPath),
		logging.String("discovery_schedule", d.cfg.Workflow.DiscoverySchedule),
		logging.String("dispatch_schedule", d.cfg.Workflow.DispatchSchedule),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) registerSchedules(sched *scheduler.Scheduler) error {
	if err := sched.Add(scheduleDiscovery, d.cfg.Workflow.DiscoverySchedule, func(ctx context.Context) error {
		_, err := d.Discover(ctx)
		return err
	}); err != nil {
		return err
	}
	return sched.Add(scheduleDispatch, d.cfg.Workflow.DispatchSchedule, func(ctx context.Context) error {
		_, err := d.Dispatch(ctx)
		return err
	})
}

// Stop halts the schedules and the API, cancels in-flight runs, and releases
// the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.scheduler.Stop()
	d.api.stop()
	d.workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("faceomatic daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.ledger.Close()
}

// Discover runs one discovery pass.
func (d *Daemon) Discover(ctx context.Context) (discovery.Summary, error) {
	return d.registrar.Run(ctx)
}

// Dispatch starts runs for waiting jobs.
func (d *Daemon) Dispatch(ctx context.Context) (workflow.DispatchSummary, error) {
	return d.workflow.Dispatch(ctx)
}

// Job returns a job, its state, and its most recent runs.
func (d *Daemon) Job(ctx context.Context, id string) (JobDetail, error) {
	job, state, err := d.jobs.Load(id)
	if err != nil {
		return JobDetail{}, err
	}
	runs, err := d.ledger.List(ctx, ledger.Filter{JobID: id, Limit: 20})
	if err != nil {
		return JobDetail{}, err
	}
	return JobDetail{Job: job, State: state, Runs: runs}, nil
}

// Jobs lists jobs, optionally restricted to one state.
func (d *Daemon) Jobs(state jobs.State) ([]jobs.Entry, error) {
	entries, err := d.jobs.List()
	if err != nil || state == "" {
		return entries, err
	}
	filtered := entries[:0]
	for _, entry := range entries {
		if entry.State == state {
			filtered = append(filtered, entry)
		}
	}
	return filtered, nil
}

// Runs lists ledger records.
func (d *Daemon) Runs(ctx context.Context, filter ledger.Filter) ([]*ledger.Run, error) {
	return d.ledger.List(ctx, filter)
}

// LockPath returns the data directory lock file.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Workflow:     d.workflow.Status(ctx),
		Dependencies: preflight.CheckSystemDeps(ctx, d.cfg),
	}
	d.mu.Lock()
	if status.Running {
		started := d.startedAt
		status.StartedAt = &started
		if d.scheduler != nil {
			status.NextRuns = d.scheduler.Next()
		}
		if d.api != nil {
			status.APIAddress = d.api.address()
		}
	}
	d.mu.Unlock()
	return status
}

// JobDetail is a job with its ledger history, newest run first.
type JobDetail struct {
	Job   jobs.Job      `json:"job"`
	State jobs.State    `json:"state"`
	Runs  []*ledger.Run `json:"runs"`
}
