package domain

import (
	"errors"
	"time"
)

// JobStatus is the lifecycle state of an ingestion job. Transitions are
// monotonic: QUEUED → RUNNING → {SUCCESS, FAILED}, with no way out of a
// terminal state.
type JobStatus string

const (
	StatusQueued  JobStatus = "QUEUED"
	StatusRunning JobStatus = "RUNNING"
	StatusSuccess JobStatus = "SUCCESS"
	StatusFailed  JobStatus = "FAILED"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// JobRun is one submitted ingestion request and its observable state.
// The log is append-only text: every pipeline stage appends human-readable
// progress lines used for both UI display and post-mortem debugging.
type JobRun struct {
	JobID              string     `db:"job_id" json:"job_id"`
	StartedBy          string     `db:"started_by" json:"started_by"`
	Status             JobStatus  `db:"status" json:"status"`
	ReadyForPrediction bool       `db:"ready_for_prediction" json:"ready_for_prediction"`
	StartedAt          *time.Time `db:"started_at" json:"started_at"`
	FinishedAt         *time.Time `db:"finished_at" json:"finished_at"`
	Log                string     `db:"log" json:"log"`
	CreatedAt          time.Time  `db:"created_at" json:"-"`
}

// ErrUnknownJob is returned by job lookups for identifiers that were never
// submitted.
var ErrUnknownJob = errors.New("unknown job")

// ErrInvalidTransition is returned when a status update would move a job
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid job status transition")
