package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"reward-engine/internal/config"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	gate, err := New(config.CalendarConfig{
		RestWeekday: int(time.Sunday),
		Holidays: map[string][]config.Holiday{
			"2026": {
				{Date: "2026-01-01", Name: "New Year"},
				{Date: "2026-12-25", Name: "Christmas"},
			},
		},
	})
	require.NoError(t, err)
	return gate
}

func TestGate_RestDay(t *testing.T) {
	gate := newTestGate(t)

	// 2026-03-01 is a Sunday
	r := gate.Check(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	assert.True(t, r.Restricted)
	assert.Equal(t, ReasonRestDay, r.Reason)

	// 2026-03-02 is a Monday
	r = gate.Check(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	assert.False(t, r.Restricted)
}

func TestGate_Holiday(t *testing.T) {
	gate := newTestGate(t)

	// 2026-12-25 is a Friday in the holiday table; the holiday rule wins
	// over the audit-day rule because it is checked first.
	r := gate.Check(time.Date(2026, 12, 25, 9, 0, 0, 0, time.UTC))
	assert.True(t, r.Restricted)
	assert.Equal(t, ReasonHoliday, r.Reason)
	assert.Equal(t, "Christmas", r.Detail)

	// Same calendar date in another year is not a holiday.
	r = gate.Check(time.Date(2025, 12, 25, 9, 0, 0, 0, time.UTC))
	assert.NotEqual(t, ReasonHoliday, r.Reason)
}

func TestGate_AuditDay(t *testing.T) {
	gate := newTestGate(t)

	// 2026-03-27 is the 4th Friday of March 2026, day-of-month 27.
	r := gate.Check(time.Date(2026, 3, 27, 12, 0, 0, 0, time.UTC))
	assert.True(t, r.Restricted)
	assert.Equal(t, ReasonAuditDay, r.Reason)

	// 2026-03-20 is the 3rd Friday, day 20: not an audit day.
	r = gate.Check(time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC))
	assert.False(t, r.Restricted)

	// 2026-05-29 is the 5th Friday of May, day 29: outside [22,28].
	r = gate.Check(time.Date(2026, 5, 29, 12, 0, 0, 0, time.UTC))
	assert.False(t, r.Restricted)
}

func TestNew_RejectsBadHolidayDate(t *testing.T) {
	_, err := New(config.CalendarConfig{
		Holidays: map[string][]config.Holiday{
			"2026": {{Date: "not-a-date", Name: "Broken"}},
		},
	})
	assert.Error(t, err)
}

// TestAuditDayProperty checks the audit-day rule against a direct count of
// Fridays: for any date, isAuditDay holds exactly when the date is a
// Friday, its day-of-month is in [22,28], and exactly three Fridays
// precede it in the month.
func TestAuditDayProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		year := rapid.IntRange(2020, 2035).Draw(t, "year")
		month := rapid.IntRange(1, 12).Draw(t, "month")
		day := rapid.IntRange(1, 28).Draw(t, "day")
		date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)

		fridaysBefore := 0
		for d := 1; d < day; d++ {
			if time.Date(year, time.Month(month), d, 0, 0, 0, 0, time.UTC).Weekday() == time.Friday {
				fridaysBefore++
			}
		}
		expected := date.Weekday() == time.Friday && day >= 22 && day <= 28 && fridaysBefore == 3

		if got := isAuditDay(date); got != expected {
			t.Fatalf("isAuditDay(%s) = %v, want %v (fridaysBefore=%d)",
				date.Format("2006-01-02"), got, expected, fridaysBefore)
		}
	})
}

// TestGatePurityProperty checks that the gate is a pure function: repeated
// calls with the same date always agree, and only one reason is ever set.
func TestGatePurityProperty(t *testing.T) {
	gate := newTestGate(t)
	rapid.Check(t, func(t *rapid.T) {
		year := rapid.IntRange(2024, 2030).Draw(t, "year")
		yday := rapid.IntRange(0, 364).Draw(t, "yday")
		date := time.Date(year, 1, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, yday)

		first := gate.Check(date)
		second := gate.Check(date)
		if first != second {
			t.Fatalf("gate not pure for %s: %+v vs %+v", date.Format("2006-01-02"), first, second)
		}
		if first.Restricted && first.Reason == ReasonNone {
			t.Fatalf("restricted without reason for %s", date.Format("2006-01-02"))
		}
		if !first.Restricted && first.Reason != ReasonNone {
			t.Fatalf("reason without restriction for %s", date.Format("2006-01-02"))
		}
	})
}
