package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Unit is the base period a pattern repeats on.
type Unit int

const (
	Daily Unit = iota
	Weekly
	Monthly
	Yearly
	Custom
)

func (u Unit) String() string {
	switch u {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Yearly:
		return "yearly"
	case Custom:
		return "custom"
	}
	return fmt.Sprintf("unit(%d)", int(u))
}

// ParseUnit is the inverse of Unit.String. Store adapters use it to decode
// persisted schedules.
func ParseUnit(s string) (Unit, error) {
	switch s {
	case "daily":
		return Daily, nil
	case "weekly":
		return Weekly, nil
	case "monthly":
		return Monthly, nil
	case "yearly":
		return Yearly, nil
	case "custom":
		return Custom, nil
	}
	return 0, fmt.Errorf("unknown recurrence unit %q", s)
}

// Pattern describes how a schedule recurs. It is a value type; once attached
// to a schedule it is only replaced, never mutated.
type Pattern struct {
	Unit Unit

	// Interval multiplies Unit: interval 2 with Weekly means every two weeks.
	// Values below 1 are treated as 1.
	Interval int

	// DayOfMonth pins monthly and yearly occurrences to a day, 1-31. When the
	// target month is shorter the day is clamped to the month's last day.
	// Zero means "keep the anchor's day".
	DayOfMonth int

	// DaysOfWeek restricts weekly occurrences to these weekdays. Empty means
	// plain weekly stepping.
	DaysOfWeek []time.Weekday

	// MonthOfYear pins yearly occurrences to a month. Zero means "keep the
	// anchor's month".
	MonthOfYear time.Month

	// CustomExpr is an opaque expression for Unit == Custom. The engine does
	// not interpret it; a CustomResolver must (see CronResolver).
	CustomExpr string

	// EndDate, when set, makes the schedule terminal once evaluation observes
	// a time past it.
	EndDate *time.Time

	// MaxOccurrences caps total firings. Zero means unlimited.
	MaxOccurrences int
}

// Recurrence labels accepted by Normalize. The unit/interval each maps to is
// business-fixed, not derived from the label text.
const (
	LabelSemiannually = "SEMIANNUALLY"
	LabelQuarterly    = "QUARTERLY"
	LabelMonthly      = "MONTHLY"
	LabelBiMonthly    = "BI-MONTHLY"
	LabelBiWeekly     = "BI-WEEKLY"
)

var labelPatterns = map[string]Pattern{
	LabelSemiannually: {Unit: Monthly, Interval: 6},
	LabelQuarterly:    {Unit: Monthly, Interval: 3},
	LabelMonthly:      {Unit: Monthly, Interval: 1},
	LabelBiMonthly:    {Unit: Monthly, Interval: 2},
	LabelBiWeekly:     {Unit: Weekly, Interval: 2},
}

// Normalize maps a recurrence label to its canonical pattern. Labels are
// matched case-insensitively after trimming whitespace. Unknown labels
// return ErrInvalidPatternLabel.
func Normalize(label string) (Pattern, error) {
	p, ok := labelPatterns[strings.ToUpper(strings.TrimSpace(label))]
	if !ok {
		return Pattern{}, fmt.Errorf("%w: %q", ErrInvalidPatternLabel, label)
	}
	return p, nil
}

// NormalizeDefault is Normalize with the monthly fallback: an unrecognized
// label yields a plain monthly pattern instead of an error. The fallback is
// logged so misconfigured schedules stay visible to operators.
func NormalizeDefault(label string, logger zerolog.Logger) Pattern {
	p, err := Normalize(label)
	if err != nil {
		logger.Warn().Str("label", label).Msg("unrecognized recurrence label, defaulting to monthly")
		return Pattern{Unit: Monthly, Interval: 1}
	}
	return p
}

// Validate checks field ranges. A zero optional field is always valid.
func (p Pattern) Validate() error {
	if p.DayOfMonth < 0 || p.DayOfMonth > 31 {
		return fmt.Errorf("day of month %d out of range", p.DayOfMonth)
	}
	if p.MonthOfYear < 0 || p.MonthOfYear > 12 {
		return fmt.Errorf("month of year %d out of range", int(p.MonthOfYear))
	}
	for _, d := range p.DaysOfWeek {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("weekday %d out of range", int(d))
		}
	}
	if p.Unit == Custom && p.CustomExpr == "" {
		return fmt.Errorf("custom pattern requires an expression")
	}
	if p.MaxOccurrences < 0 {
		return fmt.Errorf("max occurrences %d out of range", p.MaxOccurrences)
	}
	return nil
}

// interval returns the effective multiplier, coercing degenerate values to 1
// so a pattern can never stand still.
func (p Pattern) interval() int {
	if p.Interval < 1 {
		return 1
	}
	return p.Interval
}
