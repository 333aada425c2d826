package workflow

import (
	"faceomatic/internal/stage"
)

// StageSet bundles the concrete stage handlers the manager runs, in order.
type StageSet struct {
	Downloader stage.Handler
	Splitter   stage.Handler
	Detector   stage.Handler
	Reporter   stage.Handler
}

func (s StageSet) ordered() []stage.Handler {
	out := make([]stage.Handler, 0, 4)
	for _, h := range []stage.Handler{s.Downloader, s.Splitter, s.Detector, s.Reporter} {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

// DispatchSummary describes one dispatch tick.
type DispatchSummary struct {
	Started []string `json:"started"`
	// Deferred counts Unprocessed jobs left for a later tick because every
	// run slot was busy.
	Deferred int `json:"deferred"`
}
