// Package calendar provides period-aware date arithmetic for installment
// scheduling. All operations normalize dates to local noon so that
// daylight-saving transitions cannot shift a computed due date onto the
// wrong calendar day.
package calendar

import (
	"fmt"
	"time"

	"github.com/mplata/loantrack/pkg/models"
)

// DateFormat is the canonical date-only rendering.
const DateFormat = "2006-01-02"

// MaxPeriods caps the iteration in CountPeriodsBetween (about 100 years
// of monthly periods) so pathological inputs cannot loop forever.
const MaxPeriods = 1200

// ParseDate parses either a plain YYYY-MM-DD date or an RFC 3339
// timestamp. Plain dates are anchored at local noon; formatting such a
// value back with ToDateString always yields the same calendar day,
// regardless of DST or UTC/local boundary rounding.
func ParseDate(text string) (time.Time, error) {
	if d, err := time.ParseInLocation(DateFormat, text, time.Local); err == nil {
		return Noon(d), nil
	}
	t, err := time.Parse(time.RFC3339, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want %q or RFC 3339: %w", text, DateFormat, err)
	}
	return t.In(time.Local), nil
}

// MustParseDate is like ParseDate but panics on error.
func MustParseDate(text string) time.Time {
	d, err := ParseDate(text)
	if err != nil {
		panic(err.Error())
	}
	return d
}

// Noon returns t's calendar day anchored at 12:00 local time.
func Noon(t time.Time) time.Time {
	y, m, d := t.In(time.Local).Date()
	return time.Date(y, m, d, 12, 0, 0, 0, time.Local)
}

// Midnight returns t's calendar day truncated to 00:00 local time.
// Used for date-only comparisons.
func Midnight(t time.Time) time.Time {
	y, m, d := t.In(time.Local).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

// Advance returns date offset by count periods of the given frequency.
// Daily advances one day, weekly seven days, biweekly fifteen days (a
// fixed half-month convention, not fourteen), and monthly advances whole
// calendar months with native rollover for short months.
func Advance(date time.Time, frequency models.Frequency, count int) time.Time {
	d := Noon(date)
	switch frequency {
	case models.FrequencyDaily:
		return d.AddDate(0, 0, count)
	case models.FrequencyWeekly:
		return d.AddDate(0, 0, 7*count)
	case models.FrequencyBiweekly:
		return d.AddDate(0, 0, 15*count)
	default:
		return d.AddDate(0, count, 0)
	}
}

// CountPeriodsBetween returns the number of whole periods of the given
// frequency between start and end, counted by stepping with Advance so
// the monthly and biweekly conventions match exactly. The result is
// floored at 1: a non-positive range is a permissive default for
// interactive previews, not an error. Iteration is capped at MaxPeriods.
func CountPeriodsBetween(start, end time.Time, frequency models.Frequency) int {
	target := Noon(end)
	candidate := Noon(start)
	if !target.After(candidate) {
		return 1
	}

	periods := 0
	for i := 0; i < MaxPeriods; i++ {
		candidate = Advance(candidate, frequency, 1)
		if candidate.After(target) {
			break
		}
		periods++
	}
	if periods < 1 {
		return 1
	}
	return periods
}

// ToDateString renders the date as canonical YYYY-MM-DD using local
// calendar fields.
func ToDateString(date time.Time) string {
	return date.In(time.Local).Format(DateFormat)
}
