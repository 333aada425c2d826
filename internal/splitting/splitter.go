// Package splitting implements the stage that cuts a recording into
// fixed-length segments and measures each one.
package splitting

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"faceomatic/internal/config"
	"faceomatic/internal/deps"
	"faceomatic/internal/ledger"
	"faceomatic/internal/logging"
	"faceomatic/internal/media/ffprobe"
	"faceomatic/internal/media/segment"
	"faceomatic/internal/services"
	"faceomatic/internal/stage"
)

// Splitter is the split-and-probe stage. Any tool failure is fatal for the
// run and leaves the job for an operator.
type Splitter struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewSplitter builds the stage.
func NewSplitter(cfg *config.Config, logger *slog.Logger) *Splitter {
	return &Splitter{cfg: cfg, logger: logging.NewComponentLogger(logger, "split")}
}

// Name implements stage.Handler.
func (s *Splitter) Name() string { return "split" }

// Execute splits run.VideoPath and probes every segment's duration.
func (s *Splitter) Execute(ctx context.Context, run *stage.Run) error {
	id := run.Job.ID
	paths, err := segment.Split(ctx, segment.Request{
		Binary:   s.cfg.Split.FFmpegBinary,
		Input:    run.VideoPath,
		Manifest: run.Layout.ManifestPath(id),
		Pattern:  run.Layout.SegmentPattern(id),
		Seconds:  s.cfg.Split.SegmentSeconds,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "split", "ffmpeg segment", "reset the job once ffmpeg is fixed", err)
	}
	run.SegmentPaths = paths
	run.Progress(ledger.Progress{Stage: "probe", Segments: len(paths)})

	durations := make([]float64, len(paths))
	total := 0.0
	for i, path := range paths {
		d, err := ffprobe.Duration(ctx, s.cfg.Split.FFprobeBinary, path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return services.Wrap(services.ErrExternalTool, "split", "ffprobe duration",
				fmt.Sprintf("segment %d (%s)", i, filepath.Base(path)), err)
		}
		durations[i] = d
		total += d
	}
	run.Durations = durations

	s.logger.Info("recording split",
		logging.JobID(id),
		logging.Int("segments", len(paths)),
		logging.Float64("duration_seconds", total),
		logging.EventType("split_completed"),
	)
	return nil
}

// HealthCheck reports whether ffmpeg and ffprobe resolve.
func (s *Splitter) HealthCheck(ctx context.Context) stage.Health {
	statuses := deps.CheckBinaries(ctx, deps.Requirements(s.cfg))
	if missing := deps.Missing(statuses); len(missing) > 0 {
		return stage.Unhealthy(s.Name(), "missing "+strings.Join(missing, ", "))
	}
	return stage.Healthy(s.Name())
}
