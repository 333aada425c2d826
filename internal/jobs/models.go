package jobs

import (
	"strings"
	"time"
)

// State is the lifecycle position of a job.
type State string

const (
	StateUnregistered State = "unregistered"
	StateUnprocessed  State = "unprocessed"
	StateProcessing   State = "processing"
	StateProcessed    State = "processed"
	StateFailed       State = "failed"
)

// markerStates lists every persisted state in lookup order.
var markerStates = []State{StateUnprocessed, StateProcessing, StateProcessed, StateFailed}

var markerPrefix = map[State]string{
	StateUnprocessed: "_",
	StateProcessing:  "~",
	StateProcessed:   "",
	StateFailed:      "!",
}

type transition struct {
	from State
	to   State
}

// allowed enumerates every valid marker rename. Reset-from-failed is the only
// way out of a terminal state and is reserved for operators.
var allowed = map[transition]struct{}{
	{StateUnprocessed, StateProcessing}: {},
	{StateProcessing, StateProcessed}:   {},
	{StateProcessing, StateUnprocessed}: {},
	{StateProcessing, StateFailed}:      {},
	{StateFailed, StateUnprocessed}:     {},
}

// AllStates returns the persisted states in display order.
func AllStates() []State {
	return append([]State(nil), markerStates...)
}

// ParseState converts user input into a State.
func ParseState(value string) (State, bool) {
	candidate := State(strings.ToLower(strings.TrimSpace(value)))
	for _, state := range markerStates {
		if state == candidate {
			return state, true
		}
	}
	return "", false
}

// Job describes one broadcast to process.
type Job struct {
	ID           string    `json:"id"`
	Network      string    `json:"network"`
	Airtime      time.Time `json:"airtime"`
	Program      string    `json:"program"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Entry is a job id together with its current state, as listed from disk.
type Entry struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}
