package recurrence

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNormalize(t *testing.T) {
	t.Run("maps the fixed label table", func(t *testing.T) {
		tests := []struct {
			label    string
			unit     Unit
			interval int
		}{
			{"SEMIANNUALLY", Monthly, 6},
			{"QUARTERLY", Monthly, 3},
			{"MONTHLY", Monthly, 1},
			{"BI-MONTHLY", Monthly, 2},
			{"BI-WEEKLY", Weekly, 2},
		}

		for _, tt := range tests {
			t.Run(tt.label, func(t *testing.T) {
				p, err := Normalize(tt.label)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p.Unit != tt.unit {
					t.Errorf("expected unit %v, got %v", tt.unit, p.Unit)
				}
				if p.Interval != tt.interval {
					t.Errorf("expected interval %d, got %d", tt.interval, p.Interval)
				}
			})
		}
	})

	t.Run("is case and whitespace insensitive", func(t *testing.T) {
		p, err := Normalize("  quarterly ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Unit != Monthly || p.Interval != 3 {
			t.Errorf("expected monthly/3, got %v/%d", p.Unit, p.Interval)
		}
	})

	t.Run("unknown label returns ErrInvalidPatternLabel", func(t *testing.T) {
		_, err := Normalize("FORTNIGHTLY-ISH")
		if !errors.Is(err, ErrInvalidPatternLabel) {
			t.Errorf("expected ErrInvalidPatternLabel, got %v", err)
		}
	})

	t.Run("is deterministic", func(t *testing.T) {
		first, _ := Normalize("BI-WEEKLY")
		second, _ := Normalize("BI-WEEKLY")
		if first.Unit != second.Unit || first.Interval != second.Interval {
			t.Error("repeated calls disagree")
		}
	})
}

func TestNormalizeDefault(t *testing.T) {
	t.Run("falls back to monthly and logs", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)

		p := NormalizeDefault("NO-SUCH-LABEL", logger)
		if p.Unit != Monthly || p.Interval != 1 {
			t.Errorf("expected monthly/1 fallback, got %v/%d", p.Unit, p.Interval)
		}
		if !strings.Contains(buf.String(), "NO-SUCH-LABEL") {
			t.Error("fallback was not logged")
		}
	})

	t.Run("valid label passes through without logging", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)

		p := NormalizeDefault("QUARTERLY", logger)
		if p.Unit != Monthly || p.Interval != 3 {
			t.Errorf("expected monthly/3, got %v/%d", p.Unit, p.Interval)
		}
		if buf.Len() != 0 {
			t.Errorf("unexpected log output: %s", buf.String())
		}
	})
}

func TestPatternValidate(t *testing.T) {
	tests := []struct {
		name    string
		pattern Pattern
		wantErr bool
	}{
		{"plain monthly", Pattern{Unit: Monthly, Interval: 1}, false},
		{"day of month in range", Pattern{Unit: Monthly, Interval: 1, DayOfMonth: 31}, false},
		{"day of month too large", Pattern{Unit: Monthly, Interval: 1, DayOfMonth: 32}, true},
		{"month of year too large", Pattern{Unit: Yearly, Interval: 1, MonthOfYear: 13}, true},
		{"weekday out of range", Pattern{Unit: Weekly, Interval: 1, DaysOfWeek: []time.Weekday{7}}, true},
		{"custom without expression", Pattern{Unit: Custom, Interval: 1}, true},
		{"custom with expression", Pattern{Unit: Custom, Interval: 1, CustomExpr: "0 0 9 * * 1"}, false},
		{"negative max occurrences", Pattern{Unit: Daily, Interval: 1, MaxOccurrences: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pattern.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseUnit(t *testing.T) {
	for _, u := range []Unit{Daily, Weekly, Monthly, Yearly, Custom} {
		parsed, err := ParseUnit(u.String())
		if err != nil {
			t.Fatalf("round trip of %v failed: %v", u, err)
		}
		if parsed != u {
			t.Errorf("round trip of %v produced %v", u, parsed)
		}
	}

	if _, err := ParseUnit("hourly"); err == nil {
		t.Error("expected error for unknown unit")
	}
}
