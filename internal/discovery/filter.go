package discovery

import (
	"slices"
	"time"

	"faceomatic/internal/jobs"
)

// Verdict explains why Filter kept or dropped a candidate.
type Verdict int

const (
	Keep Verdict = iota
	Stale
	Disallowed
	Known
)

// Criteria decide which parsed candidates are registered.
type Criteria struct {
	Now      time.Time
	Window   time.Duration
	Networks []string
	// IsRegistered reports whether any state marker exists for the id.
	IsRegistered func(id string) (bool, error)
}

// Judge classifies one candidate. Recency is an absolute difference, so
// listings stamped slightly in the future still qualify.
func (c Criteria) Judge(job jobs.Job) (Verdict, error) {
	diff := c.Now.Sub(job.Airtime)
	if diff < 0 {
		diff = -diff
	}
	if diff > c.Window {
		return Stale, nil
	}
	if !c.allowed(job.Network) {
		return Disallowed, nil
	}
	if c.IsRegistered != nil {
		known, err := c.IsRegistered(job.ID)
		if err != nil {
			return Known, err
		}
		if known {
			return Known, nil
		}
	}
	return Keep, nil
}

// Filter returns the candidates that pass Judge. Lookup errors drop the
// candidate; it is reconsidered on the next tick.
func Filter(candidates []jobs.Job, criteria Criteria) []jobs.Job {
	kept := make([]jobs.Job, 0, len(candidates))
	for _, job := range candidates {
		verdict, err := criteria.Judge(job)
		if err == nil && verdict == Keep {
			kept = append(kept, job)
		}
	}
	return kept
}

// allowed matches the network exactly; config upper-cases the allow-list
// but a listing id's case is taken as-is.
func (c Criteria) allowed(network string) bool {
	return slices.Contains(c.Networks, network)
}
