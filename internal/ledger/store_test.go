package ledger_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"faceomatic/internal/ledger"
)

func openLedger(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.OpenPath(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBeginRunNumbersAttempts(t *testing.T) {
	store := openLedger(t)
	ctx := context.Background()

	first, err := store.BeginRun(ctx, "CNNW_20230101123000_MorningShow", "req-1")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if first.Attempt != 1 || first.Status != ledger.StatusRunning || first.RequestID != "req-1" {
		t.Fatalf("unexpected first run: %+v", first)
	}
	if err := store.Finish(ctx, first.ID, ledger.StatusRetryPending, errors.New("download failed")); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	second, err := store.BeginRun(ctx, "CNNW_20230101123000_MorningShow", "req-2")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if second.Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", second.Attempt)
	}

	other, err := store.BeginRun(ctx, "BBCNEWS_20230101123000_Other", "")
	if err != nil {
		t.Fatalf("BeginRun other: %v", err)
	}
	if other.Attempt != 1 {
		t.Fatalf("attempts are per job, got %d", other.Attempt)
	}

	count, err := store.CountRuns(ctx, "CNNW_20230101123000_MorningShow", ledger.StatusRetryPending)
	if err != nil {
		t.Fatalf("CountRuns: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one retry-pending run, got %d", count)
	}
}

func TestProgressAndFinish(t *testing.T) {
	store := openLedger(t)
	ctx := context.Background()

	run, err := store.BeginRun(ctx, "MSNBCW_20230101123000_Show", "req")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateProgress(ctx, run.ID, ledger.Progress{Stage: "classify", Segments: 3, Message: "submitting"}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := store.UpdateProgress(ctx, run.ID, ledger.Progress{SegmentsDone: 2}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, err := store.Get(ctx, run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Stage != "classify" || got.Segments != 3 || got.SegmentsDone != 2 || got.Message != "submitting" {
		t.Fatalf("unexpected progress: %+v", got)
	}

	if err := store.Finish(ctx, run.ID, ledger.StatusCompleted, nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := store.Finish(ctx, run.ID, ledger.StatusFailed, nil); err == nil {
		t.Fatal("finishing a finished run should fail")
	}
	if err := store.Finish(ctx, run.ID, ledger.StatusRunning, nil); err == nil {
		t.Fatal("running is not a terminal status")
	}

	latest, err := store.LatestForJob(ctx, "MSNBCW_20230101123000_Show")
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.Status != ledger.StatusCompleted || latest.FinishedAt == nil {
		t.Fatalf("unexpected latest run: %+v", latest)
	}
	missing, err := store.LatestForJob(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown job, got %+v err=%v", missing, err)
	}
}

func TestRecoverInterrupted(t *testing.T) {
	store := openLedger(t)
	ctx := context.Background()

	running, err := store.BeginRun(ctx, "CNNW_1_A", "")
	if err != nil {
		t.Fatal(err)
	}
	waiting, err := store.BeginRun(ctx, "CNNW_2_B", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Finish(ctx, waiting.ID, ledger.StatusRetryPending, errors.New("timeout")); err != nil {
		t.Fatal(err)
	}
	done, err := store.BeginRun(ctx, "CNNW_3_C", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Finish(ctx, done.ID, ledger.StatusCompleted, nil); err != nil {
		t.Fatal(err)
	}

	recovered, err := store.RecoverInterrupted(ctx)
	if err != nil {
		t.Fatalf("RecoverInterrupted: %v", err)
	}
	if len(recovered) != 2 {
		t.Fatalf("expected two recovered runs, got %d", len(recovered))
	}
	byJob := map[string]ledger.Status{}
	for _, run := range recovered {
		byJob[run.JobID] = run.Status
	}
	if byJob["CNNW_1_A"] != ledger.StatusInterrupted || byJob["CNNW_2_B"] != ledger.StatusRetryPending {
		t.Fatalf("unexpected recovered statuses: %v", byJob)
	}
	got, err := store.Get(ctx, running.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != ledger.StatusInterrupted {
		t.Fatalf("expected persisted interrupted status, got %s", got.Status)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 || stats.ByStatus[ledger.StatusCompleted] != 1 || stats.LastRun == nil {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	runs, err := store.List(ctx, ledger.Filter{JobID: "CNNW_3_C"})
	if err != nil || len(runs) != 1 {
		t.Fatalf("List by job: %v %v", runs, err)
	}
	limited, err := store.List(ctx, ledger.Filter{Limit: 2})
	if err != nil || len(limited) != 2 || limited[0].ID != done.ID {
		t.Fatalf("List with limit should return newest first: %v %v", limited, err)
	}

	health := store.CheckHealth(ctx)
	if !health.Integrity || health.Runs != 3 || health.SchemaVersion != 1 {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := ledger.OpenPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.BeginRun(context.Background(), "CNNW_1_A", ""); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	reopened, err := ledger.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	stats, err := reopened.Stats(context.Background())
	if err != nil || stats.Total != 1 {
		t.Fatalf("expected persisted run, got %+v err=%v", stats, err)
	}
}
