package models

import "time"

type JobState string

const (
	StateDone      JobState = "Done"
	StateAborted   JobState = "Aborted"
	StateCancelled JobState = "Cancelled"
)

// ErrorEntry is one failed fetch attempt. Retried tells whether another
// attempt followed it.
type ErrorEntry struct {
	Cursor  string
	Kind    ErrorKind
	Retried bool
	Attempt int
	Message string
	At      time.Time
}

type RunResult struct {
	JobID          string
	SiteID         string
	State          JobState
	RecordsWritten int
	PagesVisited   int
	Malformed      int
	MissingFields  map[string]int
	Errors         []ErrorEntry
	AbortReason    string
	StartedAt      time.Time
	FinishedAt     time.Time
}

func (r RunResult) Aborted() bool {
	return r.State == StateAborted
}

// RunSummary aggregates every job of one invocation.
type RunSummary struct {
	Results   []RunResult
	OutputErr error
}

func (s RunSummary) RecordsWritten() int {
	total := 0
	for _, r := range s.Results {
		total += r.RecordsWritten
	}
	return total
}

func (s RunSummary) AbortedCount() int {
	n := 0
	for _, r := range s.Results {
		if r.Aborted() {
			n++
		}
	}
	return n
}

// ExitCode is 1 when persistence failed or when no job finished; partial
// success still exits 0.
func (s RunSummary) ExitCode() int {
	if s.OutputErr != nil {
		return 1
	}
	finished := 0
	for _, r := range s.Results {
		if r.State == StateDone {
			finished++
		}
	}
	if len(s.Results) > 0 && finished == 0 {
		return 1
	}
	return 0
}
