// Package reporting implements the final pipeline stage: it archives the raw
// classifier output, aggregates detections into intervals, stores them, and
// publishes the report to the webhook registry.
package reporting

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"faceomatic/internal/aggregate"
	"faceomatic/internal/config"
	"faceomatic/internal/fileutil"
	"faceomatic/internal/jobs"
	"faceomatic/internal/ledger"
	"faceomatic/internal/logging"
	"faceomatic/internal/notifications"
	"faceomatic/internal/services"
	"faceomatic/internal/stage"
)

// RawSegment is one entry of the raw results file.
type RawSegment struct {
	Index    int             `json:"index"`
	Duration float64         `json:"duration"`
	Results  json.RawMessage `json:"results"`
}

// Processed is the aggregated results file.
type Processed struct {
	Job         jobs.Job         `json:"job"`
	GeneratedAt time.Time        `json:"generated_at"`
	Threshold   float64          `json:"threshold"`
	Gap         int              `json:"gap_tolerance"`
	Report      aggregate.Report `json:"report"`
}

// Reporter is the reporting stage.
type Reporter struct {
	cfg      *config.Config
	notifier notifications.Service
	registry *notifications.Registry
	logger   *slog.Logger
}

// NewReporter builds the stage.
func NewReporter(cfg *config.Config, notifier notifications.Service, registry *notifications.Registry, logger *slog.Logger) *Reporter {
	return &Reporter{
		cfg:      cfg,
		notifier: notifier,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "report"),
	}
}

// Name implements stage.Handler.
func (r *Reporter) Name() string { return "report" }

// Execute writes both result files and publishes the report. Delivery
// problems are logged by the notifier and never fail the stage.
func (r *Reporter) Execute(ctx context.Context, run *stage.Run) error {
	id := run.Job.ID
	raw := make([]RawSegment, len(run.Segments))
	for i, seg := range run.Segments {
		payload := seg.Result.Raw
		if len(payload) == 0 {
			encoded, err := json.Marshal(seg.Result)
			if err != nil {
				return services.Wrap(services.ErrValidation, "report", "encode raw results", "", err)
			}
			payload = encoded
		}
		raw[i] = RawSegment{Index: seg.Index, Duration: seg.Duration, Results: payload}
	}
	if err := fileutil.WriteJSONAtomic(run.Layout.RawResultsPath(id), raw, 0o644); err != nil {
		return services.Wrap(services.ErrConfiguration, "report", "write raw results", "", err)
	}

	opts := aggregate.Options{
		Threshold:    r.cfg.Classifier.ConfidenceThreshold,
		GapTolerance: r.cfg.Classifier.GapTolerance,
	}
	report := aggregate.Aggregate(run.Segments, opts)
	run.Report = report

	processed := Processed{
		Job:         run.Job,
		GeneratedAt: time.Now().UTC(),
		Threshold:   opts.Threshold,
		Gap:         opts.GapTolerance,
		Report:      report,
	}
	if err := fileutil.WriteJSONAtomic(run.Layout.ProcessedResultsPath(id), processed, 0o644); err != nil {
		return services.Wrap(services.ErrConfiguration, "report", "write processed results", "", err)
	}

	found := 0
	for _, label := range report.Labels {
		if label.Found() {
			found++
		}
	}
	run.ReportText = notifications.FormatReport(r.cfg.Archive.DetailsBaseURL, run.Job, report)
	delivery := r.notifier.Publish(ctx, run.ReportText)
	run.Progress(ledger.Progress{Message: "report published"})

	r.logger.Info("job report ready",
		logging.JobID(id),
		logging.Int("labels", len(report.Labels)),
		logging.Int("labels_found", found),
		logging.Int("webhooks", delivery.Targets),
		logging.Int("delivered", delivery.Delivered),
		logging.EventType("report_ready"),
	)
	return nil
}

// HealthCheck warns when there is nobody to notify.
func (r *Reporter) HealthCheck(context.Context) stage.Health {
	if !r.cfg.Notifications.Enabled {
		return stage.Unhealthy(r.Name(), "notifications disabled")
	}
	if r.registry == nil {
		return stage.Healthy(r.Name())
	}
	urls, err := r.registry.List()
	if err != nil {
		return stage.Unhealthy(r.Name(), err.Error())
	}
	if len(urls) == 0 {
		return stage.Unhealthy(r.Name(), "no webhooks registered")
	}
	return stage.Healthy(r.Name())
}
