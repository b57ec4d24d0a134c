package recurrence

import (
	"context"
	"time"
)

// ArtifactKind names what a schedule's firings produce.
type ArtifactKind string

const (
	ArtifactWorkOrder ArtifactKind = "work_order"
	ArtifactInvoice   ArtifactKind = "invoice"
)

// Artifact is the document one due occurrence produces: a concrete work
// order or invoice instantiated from the schedule's template data.
type Artifact struct {
	ID         string
	ScheduleID string

	// Occurrence is the 1-based occurrence number. Together with ScheduleID
	// it forms the idempotency key: a retry after a partial failure finds
	// the artifact it already created instead of duplicating it.
	Occurrence int

	Kind      ArtifactKind
	CreatedAt time.Time

	// PaymentLink is set on invoice artifacts when a PaymentLinker is wired.
	PaymentLink string

	Data map[string]interface{}
}

// FiringUpdate carries the state transition committed after a firing,
// together with the snapshot it was computed from. Stores must reject the
// commit with ErrStateConflict when the stored record no longer matches the
// snapshot, so two dispatchers can never both fire the same occurrence.
type FiringUpdate struct {
	ExpectedNextExecution   time.Time
	ExpectedOccurrenceCount int

	NextExecution   time.Time
	LastExecution   time.Time
	OccurrenceCount int
	Status          Status
}

// ScheduleStore is the document-store abstraction the engine runs against.
// Any database can implement it; see the mongodb package for a reference
// implementation.
//
// Implementations must make CommitFiring atomic: check-and-update in one
// step, not a read followed by a write.
type ScheduleStore interface {
	Create(ctx context.Context, s *Schedule) error

	// Get returns the schedule or ErrScheduleNotFound.
	Get(ctx context.Context, id string) (*Schedule, error)

	// ListDue returns Active schedules whose NextExecution is at or before
	// now. Paused and cancelled schedules are never returned.
	ListDue(ctx context.Context, now time.Time) ([]*Schedule, error)

	// CommitFiring applies the update iff the stored record still matches
	// the expected snapshot; otherwise it returns ErrStateConflict.
	CommitFiring(ctx context.Context, id string, update FiringUpdate) error

	// SetStatus applies pause/resume/cancel transitions.
	SetStatus(ctx context.Context, id string, status Status) error

	// RecordError notes a dispatch failure on the schedule so operators can
	// find schedules needing manual attention.
	RecordError(ctx context.Context, id string, msg string) error

	Delete(ctx context.Context, id string) error
}

// ArtifactStore persists the documents created by due occurrences.
type ArtifactStore interface {
	// Create inserts the artifact. It must enforce uniqueness of the
	// (ScheduleID, Occurrence) key and return ErrArtifactExists on a
	// duplicate, so concurrent dispatchers cannot double-create.
	Create(ctx context.Context, a *Artifact) error

	// FindByOccurrence returns the artifact for (scheduleID, occurrence), or
	// nil with no error when none exists yet.
	FindByOccurrence(ctx context.Context, scheduleID string, occurrence int) (*Artifact, error)
}
