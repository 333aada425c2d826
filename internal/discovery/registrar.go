package discovery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"faceomatic/internal/config"
	"faceomatic/internal/jobs"
	"faceomatic/internal/logging"
)

// Source lists candidate program ids.
type Source interface {
	FetchIDs(ctx context.Context) ([]string, error)
}

// Summary counts what one registrar tick did with the listing.
type Summary struct {
	Fetched    int      `json:"fetched"`
	Malformed  int      `json:"malformed"`
	Stale      int      `json:"stale"`
	Disallowed int      `json:"disallowed"`
	Known      int      `json:"known"`
	Registered int      `json:"registered"`
	IDs        []string `json:"ids,omitempty"`
}

// Registrar registers newly discovered programs as Unprocessed jobs.
type Registrar struct {
	source   Source
	store    *jobs.Store
	networks []string
	window   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewRegistrar constructs a registrar from configuration.
func NewRegistrar(cfg *config.Config, source Source, store *jobs.Store, logger *slog.Logger) *Registrar {
	return &Registrar{
		source:   source,
		store:    store,
		networks: append([]string(nil), cfg.Archive.Networks...),
		window:   cfg.RecencyWindow(),
		logger:   logging.NewComponentLogger(logger, "discovery"),
		now:      time.Now,
	}
}

// SetClock overrides the clock used for the recency window.
func (r *Registrar) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Run performs one discovery tick.
func (r *Registrar) Run(ctx context.Context) (Summary, error) {
	return r.run(ctx, false)
}

// Preview reports what Run would register without writing any marker.
func (r *Registrar) Preview(ctx context.Context) (Summary, error) {
	return r.run(ctx, true)
}

func (r *Registrar) run(ctx context.Context, dryRun bool) (Summary, error) {
	var summary Summary
	ids, err := r.source.FetchIDs(ctx)
	if err != nil {
		return summary, err
	}
	summary.Fetched = len(ids)

	criteria := Criteria{
		Now:          r.now().UTC(),
		Window:       r.window,
		Networks:     r.networks,
		IsRegistered: r.store.IsRegistered,
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		job, err := Parse(id)
		if err != nil {
			summary.Malformed++
			r.logger.Debug("skipping malformed program id", logging.String("id", id), logging.Error(err))
			continue
		}
		verdict, err := criteria.Judge(job)
		if err != nil {
			logging.WarnWithContext(r.logger, "registry lookup failed", "discovery_lookup_failed",
				logging.JobID(id),
				logging.Error(err),
				logging.String(logging.FieldImpact, "program reconsidered next tick"),
			)
			continue
		}
		switch verdict {
		case Stale:
			summary.Stale++
			continue
		case Disallowed:
			summary.Disallowed++
			continue
		case Known:
			summary.Known++
			continue
		}

		if dryRun {
			summary.Registered++
			summary.IDs = append(summary.IDs, id)
			continue
		}
		job.RegisteredAt = time.Now().UTC()
		created, err := r.store.Register(job)
		if err != nil {
			if errors.Is(err, jobs.ErrInvalidID) {
				summary.Malformed++
				continue
			}
			return summary, err
		}
		if !created {
			summary.Known++
			continue
		}
		summary.Registered++
		summary.IDs = append(summary.IDs, id)
		r.logger.Info("program registered",
			logging.JobID(id),
			logging.String("network", job.Network),
			logging.String("program", job.Program),
			logging.String("airtime", job.Airtime.Format(time.RFC3339)),
			logging.EventType("job_registered"),
		)
	}

	if summary.Registered > 0 || summary.Malformed > 0 {
		r.logger.Info("discovery tick complete",
			logging.Int("fetched", summary.Fetched),
			logging.Int("registered", summary.Registered),
			logging.Int("known", summary.Known),
			logging.Int("stale", summary.Stale),
			logging.Int("disallowed", summary.Disallowed),
			logging.Int("malformed", summary.Malformed),
			logging.Bool("dry_run", dryRun),
		)
	}
	return summary, nil
}
