package daemonrun

import (
	"fmt"
	"log/slog"

	"faceomatic/internal/archive"
	"faceomatic/internal/classify"
	"faceomatic/internal/config"
	"faceomatic/internal/detection"
	"faceomatic/internal/discovery"
	"faceomatic/internal/download"
	"faceomatic/internal/jobs"
	"faceomatic/internal/ledger"
	"faceomatic/internal/notifications"
	"faceomatic/internal/reporting"
	"faceomatic/internal/splitting"
	"faceomatic/internal/workflow"
)

// Pipeline holds the wired collaborators shared by the daemon and the
// one-shot CLI commands.
type Pipeline struct {
	Jobs      *jobs.Store
	Ledger    *ledger.Store
	Archive   *archive.Client
	Registrar *discovery.Registrar
	Registry  *notifications.Registry
	Notifier  notifications.Service
	Workflow  *workflow.Manager
}

// NewPipeline opens the stores and builds every stage. The classifier
// credentials must be configured.
func NewPipeline(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	classifier, err := classify.New(cfg, classify.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	store, err := jobs.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	runs, err := ledger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}

	archiveClient := archive.New(cfg, archive.WithLogger(logger))
	registry := notifications.NewRegistry(cfg.Paths.WebhooksFile)
	notifier := notifications.NewService(cfg, registry, logger)

	mgr := workflow.NewManager(cfg, store, runs, logger)
	mgr.ConfigureStages(workflow.StageSet{
		Downloader: download.NewDownloader(cfg, archiveClient, logger),
		Splitter:   splitting.NewSplitter(cfg, logger),
		Detector:   detection.NewDetector(cfg, classifier, logger),
		Reporter:   reporting.NewReporter(cfg, notifier, registry, logger),
	})

	return &Pipeline{
		Jobs:      store,
		Ledger:    runs,
		Archive:   archiveClient,
		Registrar: discovery.NewRegistrar(cfg, archiveClient, store, logger),
		Registry:  registry,
		Notifier:  notifier,
		Workflow:  mgr,
	}, nil
}

// Close releases the ledger database.
func (p *Pipeline) Close() error {
	if p == nil || p.Ledger == nil {
		return nil
	}
	return p.Ledger.Close()
}
