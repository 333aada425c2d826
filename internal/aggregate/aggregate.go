// Package aggregate turns per-segment classification results into
// job-absolute detection intervals per label.
package aggregate

import (
	"math"
	"sort"

	"faceomatic/internal/classify"
)

// Segment is one classified piece of a job, in playback order.
type Segment struct {
	Index    int             `json:"index"`
	Duration float64         `json:"duration"`
	Result   classify.Result `json:"results"`
}

// Options tune hit selection and interval merging.
type Options struct {
	// Threshold is exclusive: a second counts only when its best score is above it.
	Threshold float64
	// GapTolerance joins hits whose distance from the current interval end is
	// at most this many seconds.
	GapTolerance int
}

// Interval is an inclusive range of job-absolute seconds.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Seconds is the interval length as reported to users.
func (i Interval) Seconds() int {
	return i.End - i.Start
}

// Label is the aggregated outcome for one recognised face.
type Label struct {
	Name string `json:"label"`
	// Hits maps absolute second to best score above the threshold.
	Hits      map[int]float64 `json:"hits"`
	Intervals []Interval      `json:"intervals"`
}

// Found reports whether the label was detected anywhere in the job.
func (l Label) Found() bool {
	return len(l.Intervals) > 0
}

// Report is the aggregation output for a whole job.
type Report struct {
	Labels   []Label `json:"labels"`
	Duration float64 `json:"duration"`
}

// Aggregate maps every segment's detections onto the job timeline. Segments
// must already be in playback order; each one advances the cursor by its own
// duration. Labels are the union of all label dictionaries, sorted by name,
// and a label with no hits is kept with an empty interval list.
func Aggregate(segments []Segment, opts Options) Report {
	hits := make(map[string]map[int]float64)
	cursor := 0.0

	for _, seg := range segments {
		labels := seg.Result.LabelDict
		for _, name := range labels {
			if _, ok := hits[name]; !ok {
				hits[name] = make(map[int]float64)
			}
		}
		for key, byLabel := range seg.Result.Detections {
			local, err := classify.LocalSecond(key)
			if err != nil {
				continue
			}
			second := int(math.Floor(cursor + local))
			for labelID, candidates := range byLabel {
				name, ok := labels[labelID]
				if !ok {
					continue
				}
				best := maxScore(candidates)
				if best <= opts.Threshold {
					continue
				}
				if prev, seen := hits[name][second]; !seen || best > prev {
					hits[name][second] = best
				}
			}
		}
		cursor += seg.Duration
	}

	report := Report{Labels: make([]Label, 0, len(hits)), Duration: cursor}
	for name, byLabel := range hits {
		seconds := make([]int, 0, len(byLabel))
		for s := range byLabel {
			seconds = append(seconds, s)
		}
		report.Labels = append(report.Labels, Label{
			Name:      name,
			Hits:      byLabel,
			Intervals: Merge(seconds, opts.GapTolerance),
		})
	}
	sort.Slice(report.Labels, func(i, j int) bool {
		return report.Labels[i].Name < report.Labels[j].Name
	})
	return report
}

// Merge sorts and deduplicates seconds and joins them into intervals. A hit
// extends the current interval when it is at most gap seconds past its end.
func Merge(seconds []int, gap int) []Interval {
	if len(seconds) == 0 {
		return []Interval{}
	}
	sorted := append([]int(nil), seconds...)
	sort.Ints(sorted)

	intervals := []Interval{{Start: sorted[0], End: sorted[0]}}
	for _, s := range sorted[1:] {
		last := &intervals[len(intervals)-1]
		if s == last.End {
			continue
		}
		if s-last.End <= gap {
			last.End = s
			continue
		}
		intervals = append(intervals, Interval{Start: s, End: s})
	}
	return intervals
}

func maxScore(candidates []classify.Score) float64 {
	best := math.Inf(-1)
	for _, c := range candidates {
		if c.Score > best {
			best = c.Score
		}
	}
	return best
}
