// Package detection implements the stage that classifies every segment of a
// job and gathers the results back into playback order.
package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"faceomatic/internal/aggregate"
	"faceomatic/internal/classify"
	"faceomatic/internal/config"
	"faceomatic/internal/ledger"
	"faceomatic/internal/logging"
	"faceomatic/internal/stage"
)

// Classifier classifies one segment file.
type Classifier interface {
	Classify(ctx context.Context, path string) (classify.Result, error)
}

// Detector fans segments out to the classifier, at most maxConcurrent at a
// time, and fans results into an index-addressed slot array.
type Detector struct {
	cfg           *config.Config
	client        Classifier
	maxConcurrent int
	logger        *slog.Logger
}

// NewDetector builds the stage.
func NewDetector(cfg *config.Config, client Classifier, logger *slog.Logger) *Detector {
	limit := cfg.Classifier.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	return &Detector{
		cfg:           cfg,
		client:        client,
		maxConcurrent: limit,
		logger:        logging.NewComponentLogger(logger, "detect"),
	}
}

// Name implements stage.Handler.
func (d *Detector) Name() string { return "classify" }

// Execute classifies run.SegmentPaths. Each segment file is deleted as soon
// as its result is captured. The first error cancels the remaining segments.
func (d *Detector) Execute(ctx context.Context, run *stage.Run) error {
	paths := run.SegmentPaths
	if len(paths) != len(run.Durations) {
		return fmt.Errorf("classify: %d segments but %d durations", len(paths), len(run.Durations))
	}
	total := len(paths)
	slots := make([]aggregate.Segment, total)
	var remaining atomic.Int64
	remaining.Store(int64(total))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxConcurrent)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := d.client.Classify(gctx, path)
			if err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}
			slots[i] = aggregate.Segment{Index: i, Duration: run.Durations[i], Result: result}
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				d.logger.Debug("segment cleanup failed", logging.Segment(i), logging.Error(err))
			}
			left := remaining.Add(-1)
			done := total - int(left)
			run.Progress(ledger.Progress{SegmentsDone: done})
			d.logger.Info("segment classified",
				logging.JobID(run.Job.ID),
				logging.Segment(i),
				logging.Int("remaining", int(left)),
				logging.String("video_id", result.VideoID),
				logging.EventType("segment_classified"),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	run.Segments = slots
	return nil
}

// HealthCheck reports whether classifier credentials are configured.
func (d *Detector) HealthCheck(context.Context) stage.Health {
	if err := d.cfg.RequireClassifier(); err != nil {
		return stage.Unhealthy(d.Name(), strings.TrimPrefix(err.Error(), "missing classifier settings: "))
	}
	if d.client == nil {
		return stage.Unhealthy(d.Name(), "classifier client unavailable")
	}
	return stage.Healthy(d.Name())
}
