package discovery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"faceomatic/internal/discovery"
	"faceomatic/internal/jobs"
	"faceomatic/internal/testsupport"
)

func TestParseCompactAndSplitTimestamps(t *testing.T) {
	cases := []struct {
		id      string
		network string
		airtime time.Time
		program string
	}{
		{"CNNW_20230101123000_MorningShow", "CNNW", time.Date(2023, 1, 1, 12, 30, 0, 0, time.UTC), "MorningShow"},
		{"BBCNEWS_20240215_053000_BBC_News_at_Five", "BBCNEWS", time.Date(2024, 2, 15, 5, 30, 0, 0, time.UTC), "BBC_News_at_Five"},
	}
	for _, tc := range cases {
		job, err := discovery.Parse(tc.id)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.id, err)
		}
		if job.Network != tc.network || !job.Airtime.Equal(tc.airtime) || job.Program != tc.program {
			t.Fatalf("Parse(%q) = %+v", tc.id, job)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "CNNW", "CNNW_2023", "CNNW_20231301123000_Show", "CNNW_20230101123000_", "_CNNW_20230101123000_x"} {
		_, err := discovery.Parse(id)
		var perr *discovery.ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("Parse(%q): expected ParseError, got %v", id, err)
		}
	}
}

func TestFilterAppliesWindowAllowListAndRegistry(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mk := func(network string, age time.Duration, id string) jobs.Job {
		return jobs.Job{ID: id, Network: network, Airtime: now.Add(-age)}
	}
	candidates := []jobs.Job{
		mk("CNNW", 30*time.Hour, "old"),
		mk("CNNW", 2*time.Hour, "fresh"),
		mk("KQED", 2*time.Hour, "local"),
		mk("MSNBCW", -time.Hour, "future"),
		mk("FOXNEWSW", time.Hour, "seen"),
	}
	kept := discovery.Filter(candidates, discovery.Criteria{
		Now:      now,
		Window:   24 * time.Hour,
		Networks: []string{"CNNW", "FOXNEWSW", "MSNBCW", "BBCNEWS"},
		IsRegistered: func(id string) (bool, error) {
			return id == "seen", nil
		},
	})
	if len(kept) != 2 || kept[0].ID != "fresh" || kept[1].ID != "future" {
		t.Fatalf("unexpected survivors: %+v", kept)
	}
}

func TestAllowListMatchesNetworkCaseExactly(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	criteria := discovery.Criteria{Now: now, Window: 24 * time.Hour, Networks: []string{"CNNW"}}

	verdict, err := criteria.Judge(jobs.Job{ID: "cnnw_20240301100000_Show", Network: "cnnw", Airtime: now})
	if err != nil || verdict != discovery.Disallowed {
		t.Fatalf("lower-case network should be disallowed, got verdict=%v err=%v", verdict, err)
	}
	verdict, err = criteria.Judge(jobs.Job{ID: "CNNW_20240301100000_Show", Network: "CNNW", Airtime: now})
	if err != nil || verdict != discovery.Keep {
		t.Fatalf("exact network should be kept, got verdict=%v err=%v", verdict, err)
	}
}

type staticSource []string

func (s staticSource) FetchIDs(context.Context) ([]string, error) { return s, nil }

func TestRegistrarIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJobs(t, cfg)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	source := staticSource{
		"CNNW_20240301100000_Newsroom",
		"CNNW_20240227100000_Archive",
		"KQED_20240301100000_Local",
		"garbage",
	}
	registrar := discovery.NewRegistrar(cfg, source, store, nil)
	registrar.SetClock(func() time.Time { return now })

	preview, err := registrar.Preview(context.Background())
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if preview.Registered != 1 {
		t.Fatalf("preview should count one candidate: %+v", preview)
	}
	if known, _ := store.IsRegistered("CNNW_20240301100000_Newsroom"); known {
		t.Fatal("preview must not register")
	}

	first, err := registrar.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := discovery.Summary{Fetched: 4, Malformed: 1, Stale: 1, Disallowed: 1, Registered: 1, IDs: []string{"CNNW_20240301100000_Newsroom"}}
	if first.Fetched != want.Fetched || first.Malformed != want.Malformed || first.Stale != want.Stale ||
		first.Disallowed != want.Disallowed || first.Registered != want.Registered || first.Known != 0 {
		t.Fatalf("unexpected first summary: %+v", first)
	}

	second, err := registrar.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Registered != 0 || second.Known != 1 {
		t.Fatalf("second tick should register nothing: %+v", second)
	}

	job, state, err := store.Load("CNNW_20240301100000_Newsroom")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state != jobs.StateUnprocessed || job.Program != "Newsroom" || job.Network != "CNNW" {
		t.Fatalf("unexpected job %+v in %s", job, state)
	}
}
