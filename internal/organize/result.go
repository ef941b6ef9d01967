package organize

import (
	"time"
)

// Status is the coarse outcome of one unit
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Reason codes for results that are not plain failures. Failures carry
// util.Reason of their error instead.
const (
	ReasonMoved            = "moved"
	ReasonPlanned          = "planned"
	ReasonAlreadyOrganized = "already_organized"
	ReasonDuplicate        = "duplicate_content"
	ReasonSlotConflict     = "slot_conflict"
	ReasonDestination      = "destination_exists"
	ReasonInterrupted      = "interrupted"
)

// UnitResult is what happened to one audio file
type UnitResult struct {
	Path       string
	Hash       string
	Target     string
	Status     Status
	Reason     string
	Err        error
	Bytes      int64
	Companions int
	Warnings   []string
	Parked     bool
}

func (r *UnitResult) done() bool {
	return r.Status != ""
}

// Summary aggregates the unit results of a run
type Summary struct {
	Results []*UnitResult

	Succeeded        int
	AlreadyOrganized int
	Skipped          int
	Failed           int
	Parked           int
	Interrupted      bool
	DryRun           bool

	Bytes      int64
	Companions int
	Warnings   int
	Duration   time.Duration
}

// OK reports whether the run finished without failed units
func (s *Summary) OK() bool {
	return s.Failed == 0 && !s.Interrupted
}

// Total returns the number of units accounted for
func (s *Summary) Total() int {
	return len(s.Results)
}

func (s *Summary) add(r *UnitResult) {
	s.Results = append(s.Results, r)
	switch r.Status {
	case StatusSuccess:
		if r.Reason == ReasonAlreadyOrganized {
			s.AlreadyOrganized++
		} else {
			s.Succeeded++
		}
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
	if r.Parked {
		s.Parked++
	}
	s.Bytes += r.Bytes
	s.Companions += r.Companions
	s.Warnings += len(r.Warnings)
}

// ByStatus returns the results with the given status, in input order
func (s *Summary) ByStatus(status Status) []*UnitResult {
	var out []*UnitResult
	for _, r := range s.Results {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}
