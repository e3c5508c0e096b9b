package segregation

import (
	"runtime"
	"time"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/storage"
)

const (
	DefaultTimeDelay = 86400 * time.Second
	DefaultPageSize  = 500
	DefaultMaxPages  = 10
)

// DefaultWorkers is half the available CPUs, never less than one.
func DefaultWorkers() int {
	if n := runtime.NumCPU() / 2; n > 0 {
		return n
	}
	return 1
}

// Config holds the settings of one segregation run. It is built once per
// invocation and never mutated afterwards.
type Config struct {
	SourcePrefix       string // s3://bucket/prefix/ to scan
	SegregatedTemplate string // strftime template, e.g. s3://bucket/out/%Y/%m/%d/
	ErrorPrefix        string // destination for unclassifiable objects
	MatchPattern       string // optional; empty routes everything to the default date
	TimeFormat         string // strftime layout for the concatenated capture groups
	TimeDelay          time.Duration
	PageSize           int
	MaxPages           int
	Workers            int

	// ProcessDate overrides now-TimeDelay as the default timestamp.
	ProcessDate time.Time
}

// Classification is the outcome of matching a filename: either a timestamp
// (Dated) or nothing (unclassified).
type Classification struct {
	Time  time.Time
	Dated bool
}

// Dated returns a classification carrying ts.
func Dated(ts time.Time) Classification {
	return Classification{Time: ts, Dated: true}
}

// Unclassified is the classification of names that do not map to a date.
var Unclassified = Classification{}

// Page is one listing call's worth of real files.
type Page struct {
	Number  int
	Listed  int // entries returned by the listing, markers included
	Objects []storage.Locator
}

// MoveTask relocates Source under DestinationPrefix.
type MoveTask struct {
	Source            storage.Locator
	DestinationPrefix string
	Unclassified      bool
}

// MoveStatus is the result of a MoveTask.
type MoveStatus string

const (
	MoveSucceeded MoveStatus = "succeeded"
	MoveFailed    MoveStatus = "failed"
)

// MoveOutcome records what happened to one MoveTask.
type MoveOutcome struct {
	Task        MoveTask
	Destination storage.Locator
	Status      MoveStatus
	Err         error
}

// RunStatus is the overall result of a run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// RunSummary aggregates the outcome of a run.
type RunSummary struct {
	SourcePrefix string
	ProcessDate  time.Time
	Status       RunStatus
	Pages        int
	Seen         int // real files discovered
	Moved        int // moved to a dated destination
	Errored      int // moved to the error prefix
	Failed       int // copy or delete failed
	StartedAt    time.Time
	CompletedAt  time.Time
	Err          error
}

// Duration is the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	if s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

func (s *RunSummary) add(o MoveOutcome) {
	switch {
	case o.Status == MoveFailed:
		s.Failed++
	case o.Task.Unclassified:
		s.Errored++
	default:
		s.Moved++
	}
}
