package stage

import (
	"testing"

	"faceomatic/internal/jobs"
	"faceomatic/internal/ledger"
)

func TestRunProgressForwardsToSink(t *testing.T) {
	var got []ledger.Progress
	run := NewRun(jobs.Job{ID: "A"}, jobs.Layout{}, func(p ledger.Progress) { got = append(got, p) })
	run.Progress(ledger.Progress{Stage: "download"})
	if len(got) != 1 || got[0].Stage != "download" {
		t.Fatalf("unexpected progress: %+v", got)
	}

	var nilRun *Run
	nilRun.Progress(ledger.Progress{Stage: "ignored"})
	NewRun(jobs.Job{}, jobs.Layout{}, nil).Progress(ledger.Progress{Stage: "ignored"})
}

func TestHealthConstructors(t *testing.T) {
	if h := Healthy("download"); !h.Ready || h.Name != "download" {
		t.Fatalf("unexpected healthy record %+v", h)
	}
	if h := Unhealthy("split", "ffmpeg missing"); h.Ready || h.Detail != "ffmpeg missing" {
		t.Fatalf("unexpected unhealthy record %+v", h)
	}
}
