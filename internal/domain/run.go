package domain

import "time"

// Run statuses as stored in segregation_runs.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusSkipped   = "skipped"
)

// SegregationRun is one recorded run of the segregation job.
type SegregationRun struct {
	ID           int64      `db:"id" json:"id"`
	SourcePrefix string     `db:"source_prefix" json:"source_prefix"`
	ProcessDate  time.Time  `db:"process_date" json:"process_date"`
	Status       string     `db:"status" json:"status"`
	DryRun       bool       `db:"dry_run" json:"dry_run"`
	Pages        int        `db:"pages" json:"pages"`
	ObjectsSeen  int        `db:"objects_seen" json:"objects_seen"`
	Moved        int        `db:"moved" json:"moved"`
	Errored      int        `db:"errored" json:"errored"`
	Failed       int        `db:"failed" json:"failed"`
	StartedAt    time.Time  `db:"started_at" json:"started_at"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
}

// Finished reports whether the run reached a terminal status.
func (r *SegregationRun) Finished() bool {
	return r.Status != RunStatusRunning
}
