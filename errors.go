package recurrence

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPatternLabel is returned by Normalize for labels outside the
	// fixed business set. Callers that cannot fail should use NormalizeDefault.
	ErrInvalidPatternLabel = errors.New("invalid recurrence label")

	// ErrUnresolvedCustomPattern is returned when a schedule uses a custom
	// pattern and no CustomResolver was supplied. The engine never guesses a
	// date for an expression it cannot interpret.
	ErrUnresolvedCustomPattern = errors.New("custom pattern has no resolver")

	// ErrStateConflict is returned by guarded store commits when the stored
	// schedule no longer matches the snapshot the update was computed from.
	// It means another dispatcher fired the same occurrence first. Transient;
	// safe to retry the whole evaluate/dispatch cycle.
	ErrStateConflict = errors.New("schedule state conflict")

	// ErrArtifactExists is returned by ArtifactStore.Create when an artifact
	// with the same (scheduleID, occurrence) key already exists.
	ErrArtifactExists = errors.New("artifact already exists for occurrence")

	// ErrScheduleNotFound is returned by store operations on unknown IDs.
	ErrScheduleNotFound = errors.New("schedule not found")
)

// DispatchError wraps a failure to dispatch one schedule's due occurrence.
// It never aborts the dispatch of other schedules.
type DispatchError struct {
	ScheduleID string
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch for schedule %s failed: %v", e.ScheduleID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
