// Package clinic provides civil date and clock-time arithmetic in the
// clinic's fixed timezone (UTC+8, no daylight saving). All other packages
// route date/time conversions through here.
package clinic

import (
	"fmt"
	"time"
)

// Location is the clinic's civil timezone.
var Location = time.FixedZone("UTC+8", 8*60*60)

const dateLayout = "2006-01-02"

// Date is a civil calendar date in the clinic timezone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(dateLayout, s, Location)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// DateOf returns the civil date of an instant in the clinic timezone.
func DateOf(t time.Time) Date {
	y, m, d := t.In(Location).Date()
	return Date{Year: y, Month: m, Day: d}
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// AddDays returns the date n days later (normalized across month ends).
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 12, 0, 0, 0, Location))
}

// Before reports whether d is earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// After reports whether d is later than o.
func (d Date) After(o Date) bool {
	return o.Before(d)
}

// InclusiveDays counts days from start through end, both ends included.
// Returns 0 when end precedes start.
func InclusiveDays(start, end Date) int {
	if end.Before(start) {
		return 0
	}
	a := StartOfDay(start)
	b := StartOfDay(end)
	return int(b.Sub(a).Hours()/24) + 1
}

// StartOfDay returns the instant beginning the civil day.
func StartOfDay(d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, Location)
}

// EndOfDay returns the last representable millisecond of the civil day.
func EndOfDay(d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 23, 59, 59, 999_000_000, Location)
}

// Combine builds the absolute instant for a civil date and an HH:MM
// clock-time. LocalTime is its exact inverse for any HH:MM value.
func Combine(d Date, hhmm string) (time.Time, error) {
	tod, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock-time %q: %w", hhmm, err)
	}
	return time.Date(d.Year, d.Month, d.Day, tod.Hour(), tod.Minute(), 0, 0, Location), nil
}

// LocalTime returns the HH:MM local clock-time of an instant.
func LocalTime(t time.Time) string {
	return t.In(Location).Format("15:04")
}

// Age returns whole years elapsed since birth as of now. A birthday not
// yet reached this year rounds down.
func Age(birth Date, now time.Time) int {
	today := DateOf(now)
	years := today.Year - birth.Year
	if today.Month < birth.Month || (today.Month == birth.Month && today.Day < birth.Day) {
		years--
	}
	return years
}

// Clock supplies the current instant. Operations that depend on "now"
// take a Clock so tests can pin time exactly.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a Clock backed by the system time.
func System() Clock { return systemClock{} }

// Fixed returns a Clock frozen at t.
func Fixed(t time.Time) Clock { return fixedClock{t} }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// Today returns the current civil date per the given clock.
func Today(c Clock) Date {
	return DateOf(c.Now())
}
