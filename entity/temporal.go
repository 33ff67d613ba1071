package entity

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without date or zone.
type TimeOfDay struct {
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

// TimeOfDayOf returns the wall-clock time of t.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nanosecond: t.Nanosecond()}
}

// Nanos returns the nanoseconds elapsed since midnight.
func (t TimeOfDay) Nanos() int64 {
	return int64(t.Hour)*int64(time.Hour) +
		int64(t.Minute)*int64(time.Minute) +
		int64(t.Second)*int64(time.Second) +
		int64(t.Nanosecond)
}

// TimeOfDayFromNanos is the inverse of Nanos.
func TimeOfDayFromNanos(n int64) (TimeOfDay, error) {
	if n < 0 || n >= int64(24*time.Hour) {
		return TimeOfDay{}, fmt.Errorf("entity: time of day %d out of range", n)
	}
	d := time.Duration(n)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return TimeOfDay{Hour: int(h), Minute: int(m), Second: int(s), Nanosecond: int(d)}, nil
}

// String returns "15:04:05.999999999".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d.%09d", t.Hour, t.Minute, t.Second, t.Nanosecond)
}

// Period is a calendar amount of years, months and days.
type Period struct {
	Years  int
	Months int
	Days   int
}

// String returns the ISO-8601 form "P1Y2M3D".
func (p Period) String() string {
	return fmt.Sprintf("P%dY%dM%dD", p.Years, p.Months, p.Days)
}

// ParsePeriod parses ISO-8601 periods such as "P1Y2M3D", "P2W" or "P-1M".
func ParsePeriod(s string) (Period, error) {
	var p Period
	rest, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(s)), "P")
	if !ok || rest == "" {
		return p, fmt.Errorf("entity: invalid period %q", s)
	}
	for rest != "" {
		i := strings.IndexAny(rest, "YMWD")
		if i <= 0 {
			return p, fmt.Errorf("entity: invalid period %q", s)
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return p, fmt.Errorf("entity: invalid period %q: %w", s, err)
		}
		switch rest[i] {
		case 'Y':
			p.Years += n
		case 'M':
			p.Months += n
		case 'W':
			p.Days += 7 * n
		case 'D':
			p.Days += n
		}
		rest = rest[i+1:]
	}
	return p, nil
}

// YearMonth is a month of a specific year.
type YearMonth struct {
	Year  int
	Month time.Month
}

// String returns "2006-01".
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// ParseYearMonth parses "2006-01".
func ParseYearMonth(s string) (YearMonth, error) {
	var y, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d-%d", &y, &m); err != nil {
		return YearMonth{}, fmt.Errorf("entity: invalid year-month %q: %w", s, err)
	}
	if m < 1 || m > 12 {
		return YearMonth{}, fmt.Errorf("entity: invalid year-month %q", s)
	}
	return YearMonth{Year: y, Month: time.Month(m)}, nil
}

// MonthDay is a day of a month, independent of year.
type MonthDay struct {
	Month time.Month
	Day   int
}

// String returns the ISO-8601 form "--01-02".
func (md MonthDay) String() string {
	return fmt.Sprintf("--%02d-%02d", int(md.Month), md.Day)
}

// ParseMonthDay parses "--01-02".
func ParseMonthDay(s string) (MonthDay, error) {
	var m, d int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "--%d-%d", &m, &d); err != nil {
		return MonthDay{}, fmt.Errorf("entity: invalid month-day %q: %w", s, err)
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return MonthDay{}, fmt.Errorf("entity: invalid month-day %q", s)
	}
	return MonthDay{Month: time.Month(m), Day: d}, nil
}
