package classify

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Score is one candidate detection for a label at a given second.
type Score struct {
	Score float64 `json:"score"`
}

// Result is a completed classification for one segment. Detections map a
// segment-local second to label id to candidate scores.
type Result struct {
	VideoID    string                        `json:"video_id,omitempty"`
	Progress   float64                       `json:"classification_progress"`
	LabelDict  map[string]string             `json:"label_dict"`
	Detections map[string]map[string][]Score `json:"detections"`
	// Raw is the payload exactly as the service returned it.
	Raw json.RawMessage `json:"-"`
}

type statusPayload struct {
	Progress   *float64                      `json:"classification_progress"`
	LabelDict  map[string]string             `json:"label_dict"`
	Detections map[string]map[string][]Score `json:"detections"`
}

// decodeStatus parses a status response. done reports whether classification
// has finished; a finished payload is fully validated.
func decodeStatus(data []byte) (Result, bool, error) {
	var payload statusPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Result{}, false, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if payload.Progress == nil {
		return Result{}, false, fmt.Errorf("%w: missing classification_progress", ErrMalformedResponse)
	}
	result := Result{
		Progress:   *payload.Progress,
		LabelDict:  payload.LabelDict,
		Detections: payload.Detections,
		Raw:        append(json.RawMessage(nil), data...),
	}
	if result.Progress < 100 {
		return result, false, nil
	}
	if err := result.Validate(); err != nil {
		return Result{}, true, err
	}
	return result, true, nil
}

// Validate checks that a finished result can be aggregated: a label
// dictionary and detection map are present, every second parses as a
// non-negative number, and every detected label id is named.
func (r Result) Validate() error {
	if r.LabelDict == nil {
		return fmt.Errorf("%w: missing label_dict", ErrMalformedResponse)
	}
	if r.Detections == nil {
		return fmt.Errorf("%w: missing detections", ErrMalformedResponse)
	}
	for second, labels := range r.Detections {
		if _, err := LocalSecond(second); err != nil {
			return err
		}
		for labelID := range labels {
			if _, ok := r.LabelDict[labelID]; !ok {
				return fmt.Errorf("%w: detection references unknown label %q", ErrMalformedResponse, labelID)
			}
		}
	}
	return nil
}

// LocalSecond parses a detections key.
func LocalSecond(key string) (float64, error) {
	value, err := strconv.ParseFloat(key, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, fmt.Errorf("%w: invalid detection second %q", ErrMalformedResponse, key)
	}
	return value, nil
}
