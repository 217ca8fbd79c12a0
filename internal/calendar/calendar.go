// Package calendar implements the access gate that blocks tasks and
// withdrawals on rest days, public holidays, and the monthly audit day.
// The gate is a pure function over a date; it holds no mutable state and
// is safe to call unsynchronized from any engine.
package calendar

import (
	"fmt"
	"time"

	"reward-engine/internal/config"
)

// Reason classifies why a date is restricted.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonRestDay  Reason = "rest_day"
	ReasonHoliday  Reason = "holiday"
	ReasonAuditDay Reason = "audit_day"
)

// Restriction is the gate's verdict for one date.
type Restriction struct {
	Restricted bool
	Reason     Reason
	Detail     string // holiday name when Reason == ReasonHoliday
}

// Gate evaluates the calendar rules.
type Gate struct {
	restDay  time.Weekday
	holidays map[string]string // "2006-01-02" -> name
}

// New builds a Gate from configuration. Malformed holiday dates are
// rejected at construction so the gate itself never fails.
func New(cfg config.CalendarConfig) (*Gate, error) {
	holidays := make(map[string]string)
	for year, entries := range cfg.Holidays {
		for _, h := range entries {
			d, err := time.Parse("2006-01-02", h.Date)
			if err != nil {
				return nil, fmt.Errorf("calendar: bad holiday date %q for year %s: %w", h.Date, year, err)
			}
			holidays[d.Format("2006-01-02")] = h.Name
		}
	}
	return &Gate{
		restDay:  time.Weekday(cfg.RestWeekday),
		holidays: holidays,
	}, nil
}

// Check returns the restriction verdict for the given date. Rules apply in
// priority order: rest day, then the holiday table, then the audit day.
func (g *Gate) Check(t time.Time) Restriction {
	if t.Weekday() == g.restDay {
		return Restriction{Restricted: true, Reason: ReasonRestDay}
	}
	if name, ok := g.holidays[t.Format("2006-01-02")]; ok {
		return Restriction{Restricted: true, Reason: ReasonHoliday, Detail: name}
	}
	if isAuditDay(t) {
		return Restriction{Restricted: true, Reason: ReasonAuditDay}
	}
	return Restriction{}
}

// isAuditDay reports whether t is the monthly audit day: a Friday whose
// day-of-month falls in [22,28] and which is the 4th Friday counted from
// the 1st of the month.
func isAuditDay(t time.Time) bool {
	if t.Weekday() != time.Friday {
		return false
	}
	day := t.Day()
	if day < 22 || day > 28 {
		return false
	}
	return fridayOrdinal(t) == 4
}

// fridayOrdinal returns which Friday of the month t is (1-based), or 0 if
// t is not a Friday.
func fridayOrdinal(t time.Time) int {
	if t.Weekday() != time.Friday {
		return 0
	}
	return (t.Day()-1)/7 + 1
}
