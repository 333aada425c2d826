package ledger

import "time"

// Status is the outcome of a pipeline run.
type Status string

const (
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusRetryPending Status = "retry_pending"
	StatusStalled      Status = "stalled"
	StatusInterrupted  Status = "interrupted"
)

var allStatuses = []Status{
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusRetryPending,
	StatusStalled,
	StatusInterrupted,
}

// AllStatuses returns the known run statuses in display order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// Terminal reports whether a run has finished.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// Run is one attempt at driving a job through the pipeline.
type Run struct {
	ID              int64      `json:"id"`
	JobID           string     `json:"job_id"`
	Attempt         int        `json:"attempt"`
	RequestID       string     `json:"request_id,omitempty"`
	Status          Status     `json:"status"`
	Stage           string     `json:"stage,omitempty"`
	Segments        int        `json:"segments"`
	SegmentsDone    int        `json:"segments_done"`
	BytesDownloaded int64      `json:"bytes_downloaded"`
	Message         string     `json:"message,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// Progress is a partial update applied to a running run. Zero fields are left unchanged.
type Progress struct {
	Stage           string
	Segments        int
	SegmentsDone    int
	BytesDownloaded int64
	Message         string
}

// Filter narrows List results.
type Filter struct {
	JobID    string
	Statuses []Status
	Limit    int
}

// Stats summarises the ledger.
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
	LastRun  *time.Time     `json:"last_run,omitempty"`
}

// Health captures diagnostic information about the ledger database.
type Health struct {
	Path          string `json:"path"`
	SchemaVersion int    `json:"schema_version"`
	Integrity     bool   `json:"integrity"`
	Runs          int    `json:"runs"`
	Error         string `json:"error,omitempty"`
}
