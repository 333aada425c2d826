// Package stage defines the contract between the workflow manager and the
// pipeline stages, and the per-job state passed from one stage to the next.
package stage

import (
	"faceomatic/internal/aggregate"
	"faceomatic/internal/jobs"
	"faceomatic/internal/ledger"
)

// ProgressFunc records stage progress in the run ledger.
type ProgressFunc func(ledger.Progress)

// Run carries one job through the stages. Each stage fills in the fields the
// next one reads.
type Run struct {
	Job    jobs.Job
	Layout jobs.Layout

	// Download output.
	VideoPath string
	Bytes     int64

	// Split output, in playback order.
	SegmentPaths []string
	Durations    []float64

	// Detection output, index-aligned with SegmentPaths.
	Segments []aggregate.Segment

	// Reporting output.
	Report     aggregate.Report
	ReportText string

	progress ProgressFunc
}

// NewRun prepares the carrier for job.
func NewRun(job jobs.Job, layout jobs.Layout, progress ProgressFunc) *Run {
	return &Run{Job: job, Layout: layout, progress: progress}
}

// Progress forwards a ledger update; it is a no-op without a sink.
func (r *Run) Progress(p ledger.Progress) {
	if r != nil && r.progress != nil {
		r.progress(p)
	}
}
