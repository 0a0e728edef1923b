package models

import (
	"time"
)

// Run statuses.
const (
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusFailure = "failure"
)

// RunLog is the append-only audit record of one source run.
type RunLog struct {
	ID              int64     `json:"id"`
	RunID           string    `json:"run_id"`
	SourceName      string    `json:"source_name"`
	Status          string    `json:"status"`
	Found           int       `json:"properties_found"`
	Added           int       `json:"properties_added"`
	Updated         int       `json:"properties_updated"`
	Errors          int       `json:"errors"`
	ErrorText       *string   `json:"error_text,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// ResolveStatus derives the run status from the counters: failure when the
// run aborted, partial when any record errored, success otherwise.
func (r *RunLog) ResolveStatus(aborted bool) {
	switch {
	case aborted:
		r.Status = RunStatusFailure
	case r.Errors > 0:
		r.Status = RunStatusPartial
	default:
		r.Status = RunStatusSuccess
	}
}
