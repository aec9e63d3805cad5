package billing

import (
	"fmt"
	"regexp"
	"time"
)

// =============================================================================
// PERIOD - Calendar month billing key, "YYYY-MM"
// =============================================================================

// Period is a calendar month in YYYY-MM form. The zero-padded layout makes
// lexical and chronological order agree.
type Period string

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ParsePeriod validates s and returns it as a Period.
func ParsePeriod(s string) (Period, error) {
	if !periodPattern.MatchString(s) {
		return "", invalid("period", ErrInvalidPeriod.Error(), ErrInvalidPeriod)
	}
	return Period(s), nil
}

// PeriodOf returns the period containing t, evaluated in UTC.
func PeriodOf(t time.Time) Period {
	return Period(t.UTC().Format("2006-01"))
}

// Start is the first instant of the period in UTC.
func (p Period) Start() time.Time {
	t, err := time.Parse("2006-01", string(p))
	if err != nil {
		return time.Time{}
	}
	return t
}

// End is the first instant of the following period.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

func (p Period) Prev() Period { return p.AddMonths(-1) }
func (p Period) Next() Period { return p.AddMonths(1) }

func (p Period) AddMonths(n int) Period {
	return PeriodOf(p.Start().AddDate(0, n, 0))
}

func (p Period) Before(other Period) bool { return p < other }
func (p Period) After(other Period) bool  { return p > other }

// Contains reports whether t falls inside the period (UTC).
func (p Period) Contains(t time.Time) bool {
	u := t.UTC()
	return !u.Before(p.Start()) && u.Before(p.End())
}

func (p Period) String() string { return string(p) }

// Label renders the period for humans, e.g. "January 2025".
func (p Period) Label() string {
	s := p.Start()
	return fmt.Sprintf("%s %d", s.Month(), s.Year())
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock abstracts wall time so time-dependent rules are testable.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns the real UTC time.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}
