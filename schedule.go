package recurrence

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is a schedule's lifecycle state. Only Active schedules are evaluated.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// Schedule is one recurring task: a work order or invoice template plus the
// state needed to decide when it next fires.
//
// NextExecution carries the time of day and location every occurrence keeps;
// a schedule created for 09:00 local fires at 09:00 local forever.
type Schedule struct {
	ID string

	// Kind of artifact each firing creates.
	Kind ArtifactKind

	Pattern Pattern

	// NextExecution is when the schedule is next due. Status reaches
	// Cancelled either explicitly or when the pattern's end conditions are
	// met; cancelled schedules never advance again.
	NextExecution   time.Time
	LastExecution   *time.Time
	OccurrenceCount int
	Status          Status

	// LastError holds the most recent evaluation or dispatch failure so an
	// operator can find schedules stuck on unresolvable patterns.
	LastError string

	// Data carries caller-defined template fields copied onto every artifact
	// the schedule creates.
	Data map[string]interface{}
}

// NewSchedule creates an Active schedule whose first occurrence is start.
func NewSchedule(kind ArtifactKind, pattern Pattern, start time.Time) (*Schedule, error) {
	if err := pattern.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return &Schedule{
		ID:            uuid.NewString(),
		Kind:          kind,
		Pattern:       pattern,
		NextExecution: start,
		Status:        StatusActive,
	}, nil
}

// Pause suspends evaluation. Cancelled schedules stay cancelled.
func (s *Schedule) Pause() {
	if s.Status == StatusActive {
		s.Status = StatusPaused
	}
}

// Cancel terminates the schedule. Preferred over deletion: execution history
// keeps referencing the schedule by ID.
func (s *Schedule) Cancel() {
	s.Status = StatusCancelled
}

// Resume reactivates a paused schedule. The next occurrence is recomputed
// from now rather than the stale anchor so a long pause does not produce a
// burst of catch-up firings.
func (s *Schedule) Resume(now time.Time) error {
	if s.Status != StatusPaused {
		return fmt.Errorf("cannot resume schedule in status %q", s.Status)
	}
	s.Status = StatusActive
	return s.Reanchor(now)
}

// Reanchor recomputes NextExecution from now, keeping the schedule's time of
// day and location. Callers use it after editing the pattern and on resume.
func (s *Schedule) Reanchor(now time.Time) error {
	prev := s.NextExecution
	anchor := time.Date(now.Year(), now.Month(), now.Day(),
		prev.Hour(), prev.Minute(), prev.Second(), prev.Nanosecond(), prev.Location())

	// Today's slot may still be ahead of us.
	if anchor.After(now) {
		s.NextExecution = anchor
		return nil
	}

	next, err := Advance(anchor, s.Pattern)
	if err != nil {
		return err
	}
	s.NextExecution = next
	return nil
}
