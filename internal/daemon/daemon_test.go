package daemon_test

import (
	"context"
	"testing"

	"faceomatic/internal/config"
	"faceomatic/internal/daemon"
	"faceomatic/internal/discovery"
	"faceomatic/internal/stage"
	"faceomatic/internal/testsupport"
	"faceomatic/internal/workflow"
)

type noopStage struct{}

func (noopStage) Name() string                              { return "noop" }
func (noopStage) Execute(context.Context, *stage.Run) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health  { return stage.Healthy("noop") }

type emptyRegistrar struct{}

func (emptyRegistrar) Run(context.Context) (discovery.Summary, error) { return discovery.Summary{}, nil }

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenJobs(t, cfg)
	runs := testsupport.MustOpenLedger(t, cfg)
	mgr := workflow.NewManager(cfg, store, runs, nil)
	mgr.ConfigureStages(workflow.StageSet{Downloader: noopStage{}})
	d, err := daemon.New(cfg, daemon.Options{Jobs: store, Ledger: runs, Workflow: mgr, Registrar: emptyRegistrar{}})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.APIAddress == "" {
		t.Fatal("expected api address while running")
	}
	if _, ok := status.NextRuns["dispatch"]; !ok {
		t.Fatalf("expected dispatch schedule, got %v", status.NextRuns)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondDaemonOnSameDataDirIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	first := newDaemon(t, cfg)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	second := newDaemon(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected lock contention error")
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("expected start after release, got %v", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(cfg, daemon.Options{}); err == nil {
		t.Fatal("expected error for missing collaborators")
	}
}
