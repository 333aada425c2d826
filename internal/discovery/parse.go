package discovery

import (
	"fmt"
	"strings"
	"time"

	"faceomatic/internal/jobs"
)

const (
	compactLayout = "20060102150405"
	dateLayout    = "20060102"
	timeLayout    = "150405"
)

// ParseError reports a program id that does not follow
// NETWORK_YYYYMMDDHHMMSS_program or NETWORK_YYYYMMDD_HHMMSS_program.
type ParseError struct {
	ID     string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed program id %q: %s", e.ID, e.Reason)
}

// Parse decodes a program id. The airtime is interpreted as UTC and the
// program name is everything after the timestamp, underscores included.
func Parse(id string) (jobs.Job, error) {
	if err := jobs.ValidateID(id); err != nil {
		return jobs.Job{}, &ParseError{ID: id, Reason: err.Error()}
	}
	parts := strings.Split(id, "_")
	if len(parts) < 3 {
		return jobs.Job{}, &ParseError{ID: id, Reason: "expected network, airtime, and program"}
	}
	network := parts[0]
	if network == "" {
		return jobs.Job{}, &ParseError{ID: id, Reason: "empty network"}
	}

	var (
		airtime time.Time
		rest    []string
		err     error
	)
	switch {
	case len(parts[1]) == len(compactLayout):
		airtime, err = time.Parse(compactLayout, parts[1])
		rest = parts[2:]
	case len(parts[1]) == len(dateLayout) && len(parts) >= 4 && len(parts[2]) == len(timeLayout):
		airtime, err = time.Parse(dateLayout+timeLayout, parts[1]+parts[2])
		rest = parts[3:]
	default:
		return jobs.Job{}, &ParseError{ID: id, Reason: "unrecognised airtime " + parts[1]}
	}
	if err != nil {
		return jobs.Job{}, &ParseError{ID: id, Reason: "invalid airtime: " + err.Error()}
	}

	program := strings.Join(rest, "_")
	if strings.Trim(program, "_") == "" {
		return jobs.Job{}, &ParseError{ID: id, Reason: "empty program"}
	}
	return jobs.Job{
		ID:      id,
		Network: network,
		Airtime: airtime.UTC(),
		Program: program,
	}, nil
}
