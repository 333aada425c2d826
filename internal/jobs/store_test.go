package jobs_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"faceomatic/internal/jobs"
)

func newStore(t *testing.T) *jobs.Store {
	t.Helper()
	store, err := jobs.NewStore(filepath.Join(t.TempDir(), "programs"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func sampleJob(id string) jobs.Job {
	return jobs.Job{
		ID:      id,
		Network: "CNNW",
		Airtime: time.Date(2023, 1, 1, 12, 30, 0, 0, time.UTC),
		Program: "MorningShow",
	}
}

func markerFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func assertOnlyMarker(t *testing.T, store *jobs.Store, want string) {
	t.Helper()
	names := markerFiles(t, store.Dir())
	if len(names) != 1 || names[0] != want {
		t.Fatalf("expected only %q, found %v", want, names)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	store := newStore(t)
	id := "CNNW_20230101123000_MorningShow"

	created, err := store.Register(sampleJob(id))
	if err != nil || !created {
		t.Fatalf("first register: created=%v err=%v", created, err)
	}
	created, err = store.Register(sampleJob(id))
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if created {
		t.Fatal("second register should be a no-op")
	}
	assertOnlyMarker(t, store, "_"+id+".json")
}

func TestRegisterSkipsJobsInAnyState(t *testing.T) {
	store := newStore(t)
	id := "MSNBCW_20230101123000_Show"
	if _, err := store.Register(sampleJob(id)); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkProcessing(id); err != nil {
		t.Fatal(err)
	}
	if created, err := store.Register(sampleJob(id)); err != nil || created {
		t.Fatalf("register during processing: created=%v err=%v", created, err)
	}
	if err := store.MarkProcessed(id); err != nil {
		t.Fatal(err)
	}
	if created, err := store.Register(sampleJob(id)); err != nil || created {
		t.Fatalf("register after processed: created=%v err=%v", created, err)
	}
	assertOnlyMarker(t, store, id+".json")
}

func TestConcurrentRegisterCreatesOneMarker(t *testing.T) {
	store := newStore(t)
	id := "BBCNEWS_20230101123000_Show"

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := store.Register(sampleJob(id))
			if err != nil {
				t.Errorf("register: %v", err)
				return
			}
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if createdCount != 1 {
		t.Fatalf("expected exactly one successful register, got %d", createdCount)
	}
	assertOnlyMarker(t, store, "_"+id+".json")
}

func TestLifecycleKeepsSingleMarker(t *testing.T) {
	store := newStore(t)
	id := "CNNW_20230101123000_MorningShow"

	if _, err := store.Register(sampleJob(id)); err != nil {
		t.Fatal(err)
	}
	assertOnlyMarker(t, store, "_"+id+".json")

	if err := store.MarkProcessing(id); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	assertOnlyMarker(t, store, "~"+id+".json")

	if err := store.MarkProcessed(id); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	assertOnlyMarker(t, store, id+".json")

	job, state, err := store.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state != jobs.StateProcessed || job.Network != "CNNW" || job.Program != "MorningShow" {
		t.Fatalf("unexpected loaded job: %+v state=%s", job, state)
	}
	if !job.Airtime.Equal(time.Date(2023, 1, 1, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected airtime %s", job.Airtime)
	}
}

func TestRevertAndFail(t *testing.T) {
	store := newStore(t)
	id := "FOXNEWSW_20230101123000_Show"
	if _, err := store.Register(sampleJob(id)); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkProcessing(id); err != nil {
		t.Fatal(err)
	}
	if err := store.RevertToUnprocessed(id); err != nil {
		t.Fatalf("RevertToUnprocessed: %v", err)
	}
	assertOnlyMarker(t, store, "_"+id+".json")

	if err := store.MarkProcessing(id); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkFailed(id); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	assertOnlyMarker(t, store, "!"+id+".json")

	prev, err := store.Reset(id)
	if err != nil || prev != jobs.StateFailed {
		t.Fatalf("Reset: prev=%s err=%v", prev, err)
	}
	assertOnlyMarker(t, store, "_"+id+".json")
}

func TestInvalidTransitionsFail(t *testing.T) {
	store := newStore(t)
	id := "CNNW_20230101123000_MorningShow"

	err := store.MarkProcessing(id)
	if !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("MarkProcessing on unregistered: expected invalid transition, got %v", err)
	}
	var stateErr *jobs.StateError
	if !errors.As(err, &stateErr) || stateErr.Current != jobs.StateUnregistered {
		t.Fatalf("expected StateError with unregistered current state, got %v", err)
	}

	if _, err := store.Register(sampleJob(id)); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkProcessed(id); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("MarkProcessed from unprocessed: got %v", err)
	}
	if err := store.RevertToUnprocessed(id); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("Revert from unprocessed: got %v", err)
	}
	if err := store.MarkProcessing(id); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkProcessing(id); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("double MarkProcessing: got %v", err)
	}
	if err := store.MarkProcessed(id); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Reset(id); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("Reset of processed job: got %v", err)
	}
	assertOnlyMarker(t, store, id+".json")
}

func TestListUnprocessedIsRestartable(t *testing.T) {
	store := newStore(t)
	ids := []string{"CNNW_20230101010000_A", "CNNW_20230101020000_B", "CNNW_20230101030000_C"}
	for _, id := range ids {
		if _, err := store.Register(sampleJob(id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.MarkProcessing(ids[1]); err != nil {
		t.Fatal(err)
	}

	seq := store.ListUnprocessed()
	collect := func() []string {
		var out []string
		for id, err := range seq {
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			out = append(out, id)
		}
		sort.Strings(out)
		return out
	}
	first := collect()
	second := collect()
	want := []string{ids[0], ids[2]}
	for _, got := range [][]string{first, second} {
		if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("unexpected unprocessed ids: %v", got)
		}
	}

	count := 0
	for range seq {
		count++
		break
	}
	if count != 1 {
		t.Fatalf("expected early break to stop after one id, got %d", count)
	}
}

func TestListAndCounts(t *testing.T) {
	store := newStore(t)
	for _, id := range []string{"CNNW_1_A", "CNNW_2_B"} {
		if _, err := store.Register(sampleJob(id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.MarkProcessing("CNNW_2_B"); err != nil {
		t.Fatal(err)
	}
	entries, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].State != jobs.StateUnprocessed || entries[1].State != jobs.StateProcessing {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	counts, err := store.Counts()
	if err != nil {
		t.Fatal(err)
	}
	if counts[jobs.StateUnprocessed] != 1 || counts[jobs.StateProcessing] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestValidateIDRejectsUnsafeNames(t *testing.T) {
	for _, id := range []string{"", " padded", "../escape", "a/b", "_hidden", "~x", "!x"} {
		if err := jobs.ValidateID(id); !errors.Is(err, jobs.ErrInvalidID) {
			t.Fatalf("expected %q to be rejected, got %v", id, err)
		}
	}
	if err := jobs.ValidateID("CNNW_20230101123000_MorningShow"); err != nil {
		t.Fatalf("valid id rejected: %v", err)
	}
}

func TestParseManifestResolvesRelativeEntries(t *testing.T) {
	data := []byte("a.mp4_OUTPUT0.mp4\r\n\n/abs/seg1.mp4\n")
	got := jobs.ParseManifest(data, "/videos")
	if len(got) != 2 || got[0] != "/videos/a.mp4_OUTPUT0.mp4" || got[1] != "/abs/seg1.mp4" {
		t.Fatalf("unexpected manifest parse: %v", got)
	}
}

func TestLayoutCleanupRemovesArtifacts(t *testing.T) {
	dir := t.TempDir()
	layout := jobs.Layout{VideosDir: dir, ResultsDir: dir}
	id := "CNNW_20230101123000_MorningShow"
	for _, p := range []string{layout.VideoPath(id), layout.ManifestPath(id), layout.VideoPath(id) + "_OUTPUT3.mp4"} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := layout.Cleanup(id); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if names := markerFiles(t, dir); len(names) != 0 {
		t.Fatalf("expected empty dir, found %v", names)
	}
}

func TestSegmentPatternEscapesPercent(t *testing.T) {
	layout := jobs.Layout{VideosDir: "/videos/50%", ResultsDir: "/results"}
	for _, id := range []string{"CNNW_20230101123000_MorningShow", "CNNW_20230101123000_100%News"} {
		pattern := layout.SegmentPattern(id)
		if got, want := fmt.Sprintf(pattern, 2), layout.VideoPath(id)+"_OUTPUT2.mp4"; got != want {
			t.Fatalf("pattern %q expands to %q, want %q", pattern, got, want)
		}
	}
}
