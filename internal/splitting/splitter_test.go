package splitting

import (
	"context"
	"errors"
	"os"
	"testing"

	"faceomatic/internal/jobs"
	"faceomatic/internal/services"
	"faceomatic/internal/stage"
	"faceomatic/internal/testsupport"
)

// twoSegmentFFmpeg emulates the segment muxer by writing two segments and a
// manifest that lists them by base name.
const twoSegmentFFmpeg = `manifest=""
pattern=""
while [ $# -gt 0 ]; do
  case "$1" in
    -segment_list) manifest="$2"; shift ;;
  esac
  pattern="$1"
  shift
done
a=$(printf "$pattern" 0)
b=$(printf "$pattern" 1)
echo seg > "$a"
echo seg > "$b"
printf '%s\n%s\n' "$(basename "$a")" "$(basename "$b")" > "$manifest"`

const probeByName = `case "$2" in
  *OUTPUT0.mp4) echo 1200.0 ;;
  *) echo 37.5 ;;
esac`

func newRun(t *testing.T, layout jobs.Layout) *stage.Run {
	t.Helper()
	run := stage.NewRun(jobs.Job{ID: "CNNW_20240301100000_News"}, layout, nil)
	run.VideoPath = layout.VideoPath(run.Job.ID)
	testsupport.WriteFile(t, run.VideoPath, 64)
	return run
}

func TestExecuteSplitsAndProbes(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithFFmpegScript(twoSegmentFFmpeg),
		testsupport.WithFFprobeScript(probeByName),
	)
	layout := jobs.LayoutFromConfig(cfg)
	run := newRun(t, layout)

	if err := NewSplitter(cfg, nil).Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(run.SegmentPaths) != 2 {
		t.Fatalf("expected two segments, got %v", run.SegmentPaths)
	}
	if run.SegmentPaths[0] != run.VideoPath+"_OUTPUT0.mp4" {
		t.Fatalf("unexpected first segment %q", run.SegmentPaths[0])
	}
	if run.Durations[0] != 1200 || run.Durations[1] != 37.5 {
		t.Fatalf("unexpected durations %v", run.Durations)
	}
	if _, err := os.Stat(layout.ManifestPath(run.Job.ID)); err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
}

func TestToolFailuresAreExternalToolErrors(t *testing.T) {
	cases := map[string][]testsupport.ConfigOption{
		"split": {testsupport.WithFFmpegScript("exit 1"), testsupport.WithFFprobeScript("echo 1")},
		"probe": {testsupport.WithFFmpegScript(twoSegmentFFmpeg), testsupport.WithFFprobeScript("exit 2")},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, opts...)
			run := newRun(t, jobs.LayoutFromConfig(cfg))
			err := NewSplitter(cfg, nil).Execute(context.Background(), run)
			if !errors.Is(err, services.ErrExternalTool) {
				t.Fatalf("expected external tool error, got %v", err)
			}
			if services.FailureState(err) != jobs.StateProcessing {
				t.Fatalf("tool failures must leave the job processing")
			}
		})
	}
}
