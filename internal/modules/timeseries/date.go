package timeseries

import (
	"fmt"
	"sort"
	"time"
)

// DateFormat is the ISO-8601 layout used to print and parse dates.
const DateFormat = "2006-01-02"

// Date is a calendar day with no time-of-day component.
type Date struct {
	y int
	m time.Month
	d int
}

// NewDate returns a normalized Date for the given year, month, and day.
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{t.Year(), t.Month(), t.Day()}
}

// DateOf returns the UTC calendar day of t.
func DateOf(t time.Time) Date {
	return NewDate(t.UTC().Date())
}

// DateFromUnix returns the UTC calendar day of a unix timestamp in seconds.
func DateFromUnix(sec int64) Date {
	return DateOf(time.Unix(sec, 0))
}

// ParseDate parses a date in DateFormat.
func ParseDate(str string) (Date, error) {
	t, err := time.Parse(DateFormat, str)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q want format %q: %w", str, DateFormat, err)
	}
	return DateOf(t), nil
}

// MustParseDate is like ParseDate but panics on error.
func MustParseDate(str string) Date {
	d, err := ParseDate(str)
	if err != nil {
		panic(err.Error())
	}
	return d
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// AddDays returns the date i days after d.
func (d Date) AddDays(i int) Date { return NewDate(d.y, d.m, d.d+i) }

// Before reports whether d is before x.
func (d Date) Before(x Date) bool {
	if d.y != x.y {
		return d.y < x.y
	}
	if d.m != x.m {
		return d.m < x.m
	}
	return d.d < x.d
}

// String formats the date as DateFormat.
func (d Date) String() string { return d.Time().Format(DateFormat) }

// MarshalText implements encoding.TextMarshaler so dates can key JSON objects.
func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// SortDates sorts dates ascending in place.
func SortDates(dates []Date) {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
}
