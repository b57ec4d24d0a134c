package recurrence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notifier sends a notification for a created artifact. Fire-and-forget:
// failures are reported on the ExecutionResult but never roll back the
// artifact or the schedule state.
type Notifier interface {
	Notify(ctx context.Context, a *Artifact) error
}

// PaymentLinker creates a hosted payment link for an invoice artifact.
// Fire-and-forget, like Notifier: the invoice still goes out without a link.
type PaymentLinker interface {
	CreateLink(ctx context.Context, a *Artifact) (string, error)
}

// ExecutionResult reports the outcome of one schedule's dispatch.
type ExecutionResult struct {
	ScheduleID string
	Fired      bool
	ArtifactID string
	Err        error
}

// DispatcherConfig holds the configuration for a Dispatcher.
type DispatcherConfig struct {
	// Schedules is the required schedule store.
	Schedules ScheduleStore

	// Artifacts is the required artifact store.
	Artifacts ArtifactStore

	// Resolver interprets custom patterns. Optional; without it, schedules
	// with Unit == Custom fail evaluation with ErrUnresolvedCustomPattern
	// and are flagged via RecordError rather than silently skipped.
	Resolver CustomResolver

	// Notifier is called after each successful firing. Optional.
	Notifier Notifier

	// Payments creates payment links for invoice artifacts. Optional.
	Payments PaymentLinker

	// OnError is called for per-schedule dispatch failures. Optional; if not
	// set, failures are still recorded on the ExecutionResult and logged.
	OnError func(ctx context.Context, err error)

	// Logger defaults to the zero logger, which writes nothing.
	Logger zerolog.Logger
}

// Dispatcher walks due schedules, creates one artifact per due occurrence,
// and commits the advanced schedule state.
//
// Dispatch for one schedule is at-most-once per occurrence: the artifact is
// keyed by (scheduleID, occurrence) and the state commit is guarded by a
// compare-and-swap, so concurrent dispatch runs cannot both fire the same
// occurrence, and a retry after a partial failure reuses the artifact the
// failed run already created.
type Dispatcher struct {
	config DispatcherConfig
}

// NewDispatcher creates a new Dispatcher with the given configuration.
// Returns an error if the configuration is invalid.
func NewDispatcher(config DispatcherConfig) (*Dispatcher, error) {
	if config.Schedules == nil {
		return nil, errors.New("schedule store is required")
	}
	if config.Artifacts == nil {
		return nil, errors.New("artifact store is required")
	}
	return &Dispatcher{config: config}, nil
}

// DispatchDue evaluates every schedule due at now and fires the due ones.
// One schedule's failure never blocks the others; per-schedule outcomes are
// reported in the returned results. The returned error covers only the due
// listing itself.
func (d *Dispatcher) DispatchDue(ctx context.Context, now time.Time) ([]ExecutionResult, error) {
	due, err := d.config.Schedules.ListDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due schedules: %w", err)
	}

	results := make([]ExecutionResult, 0, len(due))
	for _, s := range due {
		results = append(results, d.dispatchOne(ctx, s, now))
	}
	return results, nil
}

// dispatchOne runs the evaluate → create-artifact → commit-state cycle for a
// single schedule.
func (d *Dispatcher) dispatchOne(ctx context.Context, s *Schedule, now time.Time) ExecutionResult {
	result := ExecutionResult{ScheduleID: s.ID}

	eval, err := EvaluateWith(*s, now, d.config.Resolver)
	if err != nil {
		// No next occurrence can be computed (unresolved custom pattern or a
		// broken resolver). Flag the schedule for manual attention instead
		// of skipping it silently.
		if recErr := d.config.Schedules.RecordError(ctx, s.ID, err.Error()); recErr != nil {
			d.config.Logger.Error().Err(recErr).Str("schedule", s.ID).Msg("failed to record schedule error")
		}
		return d.fail(ctx, result, s.ID, err)
	}

	if !eval.Due {
		// Evaluation may still have discovered a terminal transition (end
		// date passed, occurrence cap reached).
		if eval.State.Status != s.Status {
			if err := d.config.Schedules.SetStatus(ctx, s.ID, eval.State.Status); err != nil {
				return d.fail(ctx, result, s.ID, err)
			}
			d.config.Logger.Info().Str("schedule", s.ID).Str("status", string(eval.State.Status)).
				Msg("schedule reached terminal state")
		}
		return result
	}

	occurrence := eval.State.OccurrenceCount

	// A previous run may have created the artifact and then crashed before
	// committing the schedule state. Reuse it rather than duplicating.
	artifact, err := d.config.Artifacts.FindByOccurrence(ctx, s.ID, occurrence)
	if err != nil {
		return d.fail(ctx, result, s.ID, err)
	}
	if artifact == nil {
		artifact = d.buildArtifact(s, occurrence, now)

		if d.config.Payments != nil && artifact.Kind == ArtifactInvoice {
			link, err := d.config.Payments.CreateLink(ctx, artifact)
			if err != nil {
				d.config.Logger.Warn().Err(err).Str("schedule", s.ID).Msg("payment link creation failed")
			} else {
				artifact.PaymentLink = link
			}
		}

		if err := d.config.Artifacts.Create(ctx, artifact); err != nil {
			if errors.Is(err, ErrArtifactExists) {
				// A concurrent dispatcher beat us to the occurrence between
				// the lookup and the insert. Use its artifact.
				existing, findErr := d.config.Artifacts.FindByOccurrence(ctx, s.ID, occurrence)
				if findErr != nil || existing == nil {
					return d.fail(ctx, result, s.ID, err)
				}
				artifact = existing
			} else {
				// The schedule state is untouched, so the occurrence stays
				// due and is retried on the next invocation.
				if recErr := d.config.Schedules.RecordError(ctx, s.ID, err.Error()); recErr != nil {
					d.config.Logger.Error().Err(recErr).Str("schedule", s.ID).Msg("failed to record schedule error")
				}
				return d.fail(ctx, result, s.ID, err)
			}
		}
	}

	update := FiringUpdate{
		ExpectedNextExecution:   s.NextExecution,
		ExpectedOccurrenceCount: s.OccurrenceCount,
		NextExecution:           eval.State.NextExecution,
		LastExecution:           *eval.State.LastExecution,
		OccurrenceCount:         eval.State.OccurrenceCount,
		Status:                  eval.State.Status,
	}
	if err := d.config.Schedules.CommitFiring(ctx, s.ID, update); err != nil {
		if errors.Is(err, ErrStateConflict) {
			// Another dispatcher won the race for this occurrence and has
			// already advanced the schedule. Its firing stands; ours didn't
			// happen. The artifact is shared via the occurrence key either
			// way, so nothing was duplicated.
			result.Err = err
			return result
		}
		return d.fail(ctx, result, s.ID, err)
	}

	result.Fired = true
	result.ArtifactID = artifact.ID
	d.config.Logger.Info().
		Str("schedule", s.ID).
		Int("occurrence", occurrence).
		Str("artifact", artifact.ID).
		Time("next", eval.State.NextExecution).
		Msg("schedule fired")

	if d.config.Notifier != nil {
		if err := d.config.Notifier.Notify(ctx, artifact); err != nil {
			d.config.Logger.Warn().Err(err).Str("schedule", s.ID).Msg("notification failed")
		}
	}
	return result
}

// buildArtifact instantiates the schedule's template into a new artifact.
func (d *Dispatcher) buildArtifact(s *Schedule, occurrence int, now time.Time) *Artifact {
	data := make(map[string]interface{}, len(s.Data))
	for k, v := range s.Data {
		data[k] = v
	}
	return &Artifact{
		ID:         uuid.NewString(),
		ScheduleID: s.ID,
		Occurrence: occurrence,
		Kind:       s.Kind,
		CreatedAt:  now,
		Data:       data,
	}
}

func (d *Dispatcher) fail(ctx context.Context, result ExecutionResult, scheduleID string, err error) ExecutionResult {
	derr := &DispatchError{ScheduleID: scheduleID, Err: err}
	result.Err = derr
	d.config.Logger.Error().Err(err).Str("schedule", scheduleID).Msg("dispatch failed")
	if d.config.OnError != nil {
		d.config.OnError(ctx, derr)
	}
	return result
}
