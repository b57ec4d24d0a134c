package recurrence

import (
	"fmt"
	"time"
)

// Advance computes the occurrence that follows anchor under the pattern.
//
// The result keeps the anchor's clock time and location; a schedule always
// fires at the same local time. The result is strictly after anchor, even for
// degenerate intervals. Custom patterns are not interpreted here; callers
// must go through a CustomResolver for those.
func Advance(anchor time.Time, p Pattern) (time.Time, error) {
	var next time.Time

	switch p.Unit {
	case Daily:
		next = anchor.AddDate(0, 0, p.interval())
	case Weekly:
		if len(p.DaysOfWeek) == 0 {
			next = anchor.AddDate(0, 0, 7*p.interval())
		} else {
			next = nextWeekday(anchor, p.DaysOfWeek)
		}
	case Monthly:
		next = addMonths(anchor, p.interval(), p.DayOfMonth)
	case Yearly:
		next = addYears(anchor, p.interval(), p.MonthOfYear, p.DayOfMonth)
	case Custom:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnresolvedCustomPattern, p.CustomExpr)
	default:
		return time.Time{}, fmt.Errorf("unknown recurrence unit %d", int(p.Unit))
	}

	if !next.After(anchor) {
		// Cannot happen for well-formed patterns; keep the strictly-after
		// guarantee regardless.
		next = anchor.AddDate(0, 0, 1)
	}
	return next, nil
}

// advanceWith routes custom patterns through the resolver and everything else
// through Advance. Resolver results are held to the same strictly-after rule.
func advanceWith(anchor time.Time, p Pattern, resolver CustomResolver) (time.Time, error) {
	if p.Unit != Custom || resolver == nil {
		return Advance(anchor, p)
	}
	next, err := resolver.Resolve(anchor, p.CustomExpr)
	if err != nil {
		return time.Time{}, err
	}
	if !next.After(anchor) {
		return time.Time{}, fmt.Errorf("resolver returned %v for %q, not after %v", next, p.CustomExpr, anchor)
	}
	return next, nil
}

// nextWeekday returns the first date strictly after anchor whose weekday is
// in set, keeping the anchor's clock time.
func nextWeekday(anchor time.Time, set []time.Weekday) time.Time {
	allowed := make(map[time.Weekday]bool, len(set))
	for _, d := range set {
		allowed[d] = true
	}

	next := anchor.AddDate(0, 0, 1)
	for !allowed[next.Weekday()] {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// addMonths moves anchor forward by the given number of months with the day
// clamped to the target month's length. Jan 31 plus one month lands on
// Feb 28/29, never Mar 3.
func addMonths(anchor time.Time, months, day int) time.Time {
	if day == 0 {
		day = anchor.Day()
	}

	// Normalize via the first of the target month so a short month can't
	// overflow into the one after it.
	first := time.Date(anchor.Year(), anchor.Month()+time.Month(months), 1,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

// addYears moves anchor forward by whole years, optionally pinning the month,
// with the same day clamping as addMonths (Feb 29 anchors land on Feb 28 in
// non-leap years).
func addYears(anchor time.Time, years int, month time.Month, day int) time.Time {
	if month == 0 {
		month = anchor.Month()
	}
	if day == 0 {
		day = anchor.Day()
	}

	year := anchor.Year() + years
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
}

func daysIn(year int, month time.Month) int {
	// Day zero of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
