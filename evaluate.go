package recurrence

import "time"

// Evaluation is the outcome of evaluating one schedule at one instant.
// State is the record the schedule should transition to; the caller commits
// it (together with creating the occurrence's artifact) exactly once.
type Evaluation struct {
	Due   bool
	State Schedule
}

// Evaluate decides whether a schedule is due at now.
//
// It is pure: it never touches a store or a clock, and calling it repeatedly
// with the same inputs returns the same outcome until the caller actually
// commits the returned state. Custom patterns fail with
// ErrUnresolvedCustomPattern; use EvaluateWith to supply a resolver.
func Evaluate(s Schedule, now time.Time) (Evaluation, error) {
	return EvaluateWith(s, now, nil)
}

// EvaluateWith is Evaluate with a resolver for custom patterns.
func EvaluateWith(s Schedule, now time.Time, resolver CustomResolver) (Evaluation, error) {
	out := Evaluation{State: s}

	if s.Status != StatusActive {
		return out, nil
	}

	if end := s.Pattern.EndDate; end != nil && now.After(*end) {
		out.State.Status = StatusCancelled
		return out, nil
	}

	if max := s.Pattern.MaxOccurrences; max > 0 && s.OccurrenceCount >= max {
		out.State.Status = StatusCancelled
		return out, nil
	}

	if now.Before(s.NextExecution) {
		return out, nil
	}

	// Advance from the scheduled instant, not from now: late evaluation must
	// not drift the occurrence grid. If evaluation is so late that the next
	// slot is also behind us, keep stepping along the grid; the backlog
	// collapses into this one firing.
	next, err := advanceWith(s.NextExecution, s.Pattern, resolver)
	if err != nil {
		return Evaluation{State: s}, err
	}
	for !next.After(now) {
		next, err = advanceWith(next, s.Pattern, resolver)
		if err != nil {
			return Evaluation{State: s}, err
		}
	}

	fired := now
	out.Due = true
	out.State.LastExecution = &fired
	out.State.OccurrenceCount = s.OccurrenceCount + 1
	out.State.NextExecution = next
	out.State.LastError = ""

	// The firing that reaches the cap also terminates the schedule, so the
	// record never sits at the cap while still Active.
	if max := s.Pattern.MaxOccurrences; max > 0 && out.State.OccurrenceCount >= max {
		out.State.Status = StatusCancelled
	}
	return out, nil
}
