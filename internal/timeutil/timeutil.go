package timeutil

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used by usage reports.
const DateLayout = "2006-01-02"

var (
	ErrInvalidPeriod = errors.New("invalid period")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidRange  = errors.New("invalid date range")
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// EnsureLocation returns UTC when loc is nil.
func EnsureLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// IsDate reports whether value is a real calendar day in YYYY-MM-DD form.
func IsDate(value string) bool {
	_, err := ParseDate(value)
	return err == nil
}

// ParseDate parses a YYYY-MM-DD string as midnight UTC.
func ParseDate(value string) (time.Time, error) {
	if !datePattern.MatchString(value) {
		return time.Time{}, ErrInvalidDate
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(EnsureLocation(loc)).Format(DateLayout)
}

// DateFilter is an optional inclusive [From, To] day filter. Empty bounds are open.
type DateFilter struct {
	From string
	To   string
}

// ParseDateFilter validates optional bounds and rejects inverted ranges.
func ParseDateFilter(from, to string) (DateFilter, error) {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from != "" && !IsDate(from) {
		return DateFilter{}, ErrInvalidDate
	}
	if to != "" && !IsDate(to) {
		return DateFilter{}, ErrInvalidDate
	}
	if from != "" && to != "" && from > to {
		return DateFilter{}, ErrInvalidRange
	}
	return DateFilter{From: from, To: to}, nil
}

// Active reports whether either bound is set.
func (f DateFilter) Active() bool {
	return f.From != "" || f.To != ""
}

// Contains reports whether date falls within the filter bounds.
func (f DateFilter) Contains(date string) bool {
	if f.From != "" && date < f.From {
		return false
	}
	if f.To != "" && date > f.To {
		return false
	}
	return true
}

// Window represents a rolling window of whole days ending today.
type Window struct {
	period string
	start  time.Time
	end    time.Time
	loc    *time.Location
}

// NewWindow constructs a rolling window for the requested period (e.g., "7d", "24h").
func NewWindow(period string, now time.Time, loc *time.Location) (Window, error) {
	loc = EnsureLocation(loc)
	now = now.In(loc)
	dur, err := durationFromPeriod(period)
	if err != nil {
		return Window{}, err
	}
	return Window{
		period: normalizePeriod(period),
		start:  now.Add(-dur),
		end:    now,
		loc:    loc,
	}, nil
}

// Period returns the normalized period string (e.g., "7d").
func (w Window) Period() string { return w.period }

// Start returns the inclusive start of the window.
func (w Window) Start() time.Time { return w.start }

// End returns the end of the window.
func (w Window) End() time.Time { return w.end }

// Duration returns the window length.
func (w Window) Duration() time.Duration { return w.end.Sub(w.start) }

// DateFilter converts the window into inclusive calendar-day bounds.
func (w Window) DateFilter() DateFilter {
	loc := EnsureLocation(w.loc)
	return DateFilter{From: FormatDate(w.start, loc), To: FormatDate(w.end, loc)}
}

func durationFromPeriod(period string) (time.Duration, error) {
	p := normalizePeriod(period)
	if len(p) < 2 {
		return 0, ErrInvalidPeriod
	}
	unit := p[len(p)-1]
	value, err := strconv.Atoi(p[:len(p)-1])
	if err != nil || value <= 0 {
		return 0, ErrInvalidPeriod
	}
	switch unit {
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	default:
		return 0, ErrInvalidPeriod
	}
}

func normalizePeriod(period string) string {
	return strings.ToLower(strings.TrimSpace(period))
}
