package recurrence

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CustomResolver computes the next occurrence for patterns the engine
// refuses to interpret itself (Unit == Custom). Implementations must return
// a time strictly after anchor.
type CustomResolver interface {
	Resolve(anchor time.Time, expr string) (time.Time, error)
}

// CronResolver interprets custom pattern expressions as cron schedules.
// Supports the six-field format "second minute hour day month weekday".
//
// This is the one custom-pattern grammar shipped with the engine; anything
// else needs a caller-supplied CustomResolver.
type CronResolver struct {
	parser cron.Parser
}

// NewCronResolver creates a resolver for six-field cron expressions.
func NewCronResolver() *CronResolver {
	return &CronResolver{
		parser: cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Resolve returns the first occurrence of expr strictly after anchor.
func (r *CronResolver) Resolve(anchor time.Time, expr string) (time.Time, error) {
	schedule, err := r.parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	next := schedule.Next(anchor)
	if next.IsZero() || !next.After(anchor) {
		return time.Time{}, fmt.Errorf("cron expression %q has no occurrence after %v", expr, anchor)
	}
	return next, nil
}
