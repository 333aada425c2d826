package download

import (
	"context"
	"errors"
	"testing"

	"faceomatic/internal/archive"
	"faceomatic/internal/jobs"
	"faceomatic/internal/ledger"
	"faceomatic/internal/services"
	"faceomatic/internal/stage"
	"faceomatic/internal/testsupport"
)

type fakeFetcher struct {
	dest string
	err  error
}

func (f *fakeFetcher) Download(_ context.Context, _ string, dest string, progress archive.ProgressFunc) (int64, error) {
	f.dest = dest
	if f.err != nil {
		return 0, f.err
	}
	progress(10, 20)
	progress(20, 20)
	return 20, nil
}

func TestExecuteRecordsVideoPathAndProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	layout := jobs.LayoutFromConfig(cfg)
	var updates []ledger.Progress
	run := stage.NewRun(jobs.Job{ID: "CNNW_20240301100000_News"}, layout, func(p ledger.Progress) {
		updates = append(updates, p)
	})

	fetcher := &fakeFetcher{}
	if err := NewDownloader(cfg, fetcher, nil).Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.VideoPath != layout.VideoPath(run.Job.ID) || fetcher.dest != run.VideoPath {
		t.Fatalf("unexpected video path %q (fetcher %q)", run.VideoPath, fetcher.dest)
	}
	if run.Bytes != 20 {
		t.Fatalf("unexpected byte count %d", run.Bytes)
	}
	last := updates[len(updates)-1]
	if last.BytesDownloaded != 20 {
		t.Fatalf("expected final progress update, got %+v", updates)
	}
}

func TestExecutePropagatesTransientFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cause := services.Wrap(services.ErrTransient, "download", "request recording", "status 503", nil)
	run := stage.NewRun(jobs.Job{ID: "X"}, jobs.LayoutFromConfig(cfg), nil)
	err := NewDownloader(cfg, &fakeFetcher{err: cause}, nil).Execute(context.Background(), run)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if run.VideoPath != "" {
		t.Fatal("video path must stay empty on failure")
	}
}

func TestHealthCheckNeedsCredentials(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := NewDownloader(cfg, &fakeFetcher{}, nil)
	if !d.HealthCheck(context.Background()).Ready {
		t.Fatal("expected ready with credentials")
	}
	cfg.Archive.Signature = ""
	if d.HealthCheck(context.Background()).Ready {
		t.Fatal("expected unhealthy without signature")
	}
}
