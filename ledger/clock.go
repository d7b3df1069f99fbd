package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// CLOCK - "now" is injected so backdating rules and timestamps are testable
// =============================================================================

type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in Location (UTC when nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}

// FixedClock always returns the same instant. Used by tests and demo loaders.
type FixedClock struct {
	At time.Time
}

func (c *FixedClock) Now() time.Time          { return c.At }
func (c *FixedClock) Advance(d time.Duration) { c.At = c.At.Add(d) }
func (c *FixedClock) Set(t time.Time)         { c.At = t }

// =============================================================================
// YEAR-MONTH - calendar month key used by reports
// =============================================================================

type YearMonth struct {
	Year  int
	Month time.Month
}

func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// ParseYearMonth accepts "2006-01".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("invalid month %q (use YYYY-MM): %w", s, err)
	}
	return YearMonthOf(t), nil
}

// Bounds returns [start, end) of the month in loc.
func (ym YearMonth) Bounds(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}
