package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"faceomatic/internal/config"
	"faceomatic/internal/jobs"
	"faceomatic/internal/ledger"
	"faceomatic/internal/logging"
	"faceomatic/internal/stage"
)

// Manager coordinates job runs using registered stage handlers.
type Manager struct {
	cfg    *config.Config
	jobs   *jobs.Store
	ledger *ledger.Store
	layout jobs.Layout
	logger *slog.Logger

	slots      *semaphore.Weighted
	retryDelay time.Duration

	mu       sync.RWMutex
	stages   []stage.Handler
	running  bool
	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	active   map[string]string
	retries  map[string]*time.Timer
	lastErr  error
	lastDone string
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, jobStore *jobs.Store, ledgerStore *ledger.Store, logger *slog.Logger) *Manager {
	parallel := cfg.Workflow.MaxParallelJobs
	if parallel <= 0 {
		parallel = 1
	}
	return &Manager{
		cfg:        cfg,
		jobs:       jobStore,
		ledger:     ledgerStore,
		layout:     jobs.LayoutFromConfig(cfg),
		logger:     logging.NewComponentLogger(logger, "workflow"),
		slots:      semaphore.NewWeighted(int64(parallel)),
		retryDelay: cfg.DownloadRetryDelay(),
		active:     make(map[string]string),
		retries:    make(map[string]*time.Timer),
	}
}

// ConfigureStages registers the concrete stage handlers the workflow will run.
func (m *Manager) ConfigureStages(set StageSet) {
	m.mu.Lock()
	m.stages = set.ordered()
	m.mu.Unlock()
}

// SetRetryDelay overrides the delay before a transient failure is retried.
func (m *Manager) SetRetryDelay(d time.Duration) {
	m.mu.Lock()
	m.retryDelay = d
	m.mu.Unlock()
}

func (m *Manager) stageList() []stage.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]stage.Handler(nil), m.stages...)
}

func (m *Manager) setActive(id, stageName string) {
	m.mu.Lock()
	if stageName == "" {
		delete(m.active, id)
	} else {
		m.active[id] = stageName
	}
	m.mu.Unlock()
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastDone(id string) {
	m.mu.Lock()
	m.lastDone = id
	m.mu.Unlock()
}
