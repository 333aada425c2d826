package testsupport

import (
	"testing"
	"time"

	"faceomatic/internal/config"
	"faceomatic/internal/jobs"
	"faceomatic/internal/ledger"
)

// MustOpenLedger opens the run ledger for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenJobs opens the marker-file job store for tests.
func MustOpenJobs(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	return store
}

// RegisterJob registers an unprocessed job with the given id.
func RegisterJob(t testing.TB, store *jobs.Store, id string) jobs.Job {
	t.Helper()

	job := jobs.Job{ID: id, Network: "CNNW", Program: "Test_Program", Airtime: time.Now().UTC(), RegisteredAt: time.Now().UTC()}
	if _, err := store.Register(job); err != nil {
		t.Fatalf("store.Register: %v", err)
	}
	return job
}
