package recurrence

import (
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestAdvance(t *testing.T) {
	t.Run("daily adds interval days", func(t *testing.T) {
		next, err := Advance(date(2024, time.March, 10, 9, 0), Pattern{Unit: Daily, Interval: 3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := date(2024, time.March, 13, 9, 0); !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("weekly without day set adds whole weeks", func(t *testing.T) {
		next, err := Advance(date(2024, time.March, 10, 9, 0), Pattern{Unit: Weekly, Interval: 2})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := date(2024, time.March, 24, 9, 0); !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("weekly with day set moves to next allowed weekday", func(t *testing.T) {
		// 2024-03-11 is a Monday.
		anchor := date(2024, time.March, 11, 9, 0)
		pattern := Pattern{Unit: Weekly, Interval: 1, DaysOfWeek: []time.Weekday{time.Monday, time.Thursday}}

		next, err := Advance(anchor, pattern)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := date(2024, time.March, 14, 9, 0); !next.Equal(want) {
			t.Errorf("expected Thursday %v, got %v", want, next)
		}

		// From Thursday the next allowed day is the following Monday.
		next, err = Advance(next, pattern)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := date(2024, time.March, 18, 9, 0); !next.Equal(want) {
			t.Errorf("expected Monday %v, got %v", want, next)
		}
	})

	t.Run("weekly with same-day set is strictly after anchor", func(t *testing.T) {
		// Anchor is a Monday and Monday is the only allowed day; the result
		// must be next Monday, not the anchor itself.
		anchor := date(2024, time.March, 11, 9, 0)
		next, err := Advance(anchor, Pattern{Unit: Weekly, Interval: 1, DaysOfWeek: []time.Weekday{time.Monday}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := date(2024, time.March, 18, 9, 0); !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("monthly clamps to leap February", func(t *testing.T) {
		next, err := Advance(date(2024, time.January, 31, 9, 0), Pattern{Unit: Monthly, Interval: 1, DayOfMonth: 31})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := date(2024, time.February, 29, 9, 0); !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("monthly clamps to non-leap February", func(t *testing.T) {
		next, err := Advance(date(2023, time.January, 31, 9, 0), Pattern{Unit: Monthly, Interval: 1, DayOfMonth: 31})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := date(2023, time.February, 28, 9, 0); !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("monthly recovers the pinned day after a short month", func(t *testing.T) {
		next, err := Advance(date(2023, time.February, 28, 9, 0), Pattern{Unit: Monthly, Interval: 1, DayOfMonth: 31})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := date(2023, time.March, 31, 9, 0); !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("monthly without pinned day keeps anchor day", func(t *testing.T) {
		next, err := Advance(date(2024, time.January, 15, 9, 0), Pattern{Unit: Monthly, Interval: 3})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := date(2024, time.April, 15, 9, 0); !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("monthly never lands past the target month", func(t *testing.T) {
		// Walk a 31st-pinned monthly pattern through five years; each hop
		// must move exactly interval months and stay within the month.
		pattern := Pattern{Unit: Monthly, Interval: 1, DayOfMonth: 31}
		anchor := date(2023, time.January, 31, 9, 0)
		for i := 0; i < 60; i++ {
			next, err := Advance(anchor, pattern)
			if err != nil {
				t.Fatalf("unexpected error at step %d: %v", i, err)
			}
			want := time.Month((int(anchor.Month()) % 12) + 1)
			if next.Month() != want {
				t.Fatalf("step %d: expected month %v, got %v", i, want, next.Month())
			}
			if next.Day() > daysIn(next.Year(), next.Month()) {
				t.Fatalf("step %d: day %d exceeds month length", i, next.Day())
			}
			anchor = next
		}
	})

	t.Run("yearly pins month and clamps day", func(t *testing.T) {
		next, err := Advance(date(2024, time.February, 29, 9, 0), Pattern{Unit: Yearly, Interval: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := date(2025, time.February, 28, 9, 0); !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}

		next, err = Advance(date(2024, time.June, 10, 9, 0), Pattern{Unit: Yearly, Interval: 2, MonthOfYear: time.January, DayOfMonth: 5})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := date(2026, time.January, 5, 9, 0); !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("zero interval is coerced to one", func(t *testing.T) {
		anchor := date(2024, time.March, 10, 9, 0)
		next, err := Advance(anchor, Pattern{Unit: Daily, Interval: 0})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !next.After(anchor) {
			t.Errorf("expected result after anchor, got %v", next)
		}
		if want := date(2024, time.March, 11, 9, 0); !next.Equal(want) {
			t.Errorf("expected %v, got %v", want, next)
		}
	})

	t.Run("custom pattern is refused without a resolver", func(t *testing.T) {
		_, err := Advance(date(2024, time.March, 10, 9, 0), Pattern{Unit: Custom, CustomExpr: "opaque"})
		if !errors.Is(err, ErrUnresolvedCustomPattern) {
			t.Errorf("expected ErrUnresolvedCustomPattern, got %v", err)
		}
	})

	t.Run("preserves clock time and location", func(t *testing.T) {
		loc := time.FixedZone("UTC+5", 5*3600)
		anchor := time.Date(2024, time.January, 31, 14, 30, 0, 0, loc)

		next, err := Advance(anchor, Pattern{Unit: Monthly, Interval: 1, DayOfMonth: 31})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if next.Hour() != 14 || next.Minute() != 30 {
			t.Errorf("clock time not preserved: %v", next)
		}
		if next.Location() != loc {
			t.Errorf("location not preserved: %v", next.Location())
		}
	})
}
