// Package calendar converts between absolute instants and users' local calendar days.
//
// It is the only place that knows the default timezone and the only place that
// performs timezone conversion; every other package works with YYYY-MM-DD strings.
package calendar

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimezone applies to users without a (valid) stored timezone
	DefaultTimezone = "America/Sao_Paulo"
	// DateFormat is the local day representation used across the system
	DateFormat = "2006-01-02"
)

// Resolver resolves IANA zone names to locations and instants to local days.
// It never fails on a bad zone: the default zone is used instead.
type Resolver struct {
	defaultTZ  string
	defaultLoc *time.Location
	locations  sync.Map // zone name -> *time.Location
	warned     sync.Map // zone name -> struct{}
	logger     *zap.Logger
}

// NewResolver creates a resolver with the given default zone. An empty or unknown
// defaultTZ falls back to DefaultTimezone, and if the tz database is unavailable, UTC.
func NewResolver(defaultTZ string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaultTZ = strings.TrimSpace(defaultTZ)
	if defaultTZ == "" {
		defaultTZ = DefaultTimezone
	}
	loc, err := time.LoadLocation(defaultTZ)
	if err != nil {
		logger.Warn("invalid_default_timezone",
			zap.String("timezone", defaultTZ),
			zap.Error(err),
		)
		defaultTZ = DefaultTimezone
		if loc, err = time.LoadLocation(defaultTZ); err != nil {
			loc = time.UTC
		}
	}
	return &Resolver{
		defaultTZ:  defaultTZ,
		defaultLoc: loc,
		logger:     logger,
	}
}

// DefaultZone returns the zone name applied when a user has none
func (r *Resolver) DefaultZone() string {
	return r.defaultTZ
}

// Location returns the location for tz, or the default location when tz is nil,
// blank or not a known IANA zone.
func (r *Resolver) Location(tz *string) *time.Location {
	if tz == nil {
		return r.defaultLoc
	}
	name := strings.TrimSpace(*tz)
	if name == "" {
		return r.defaultLoc
	}
	if cached, ok := r.locations.Load(name); ok {
		return cached.(*time.Location)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if _, seen := r.warned.LoadOrStore(name, struct{}{}); !seen {
			r.logger.Warn("unknown_user_timezone_using_default",
				zap.String("timezone", name),
				zap.String("default_timezone", r.defaultTZ),
			)
		}
		return r.defaultLoc
	}
	r.locations.Store(name, loc)
	return loc
}

// LocalDay returns the YYYY-MM-DD calendar day of instant in tz
func (r *Resolver) LocalDay(instant time.Time, tz *string) string {
	return instant.In(r.Location(tz)).Format(DateFormat)
}

// StartOfLocalDayUTC returns the UTC instant at which dateLocal begins in tz.
// When midnight does not exist (DST gap) the first valid instant of the day is returned,
// and when the zone skips dateLocal entirely, the start of the next day that exists.
func (r *Resolver) StartOfLocalDayUTC(dateLocal string, tz *string) (time.Time, error) {
	day, err := ParseDay(dateLocal)
	if err != nil {
		return time.Time{}, err
	}
	loc := r.Location(tz)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	if start.Format(DateFormat) == dateLocal {
		return start.UTC(), nil
	}
	return firstInstantOnOrAfter(dateLocal, start, loc).UTC(), nil
}

const (
	gapSearchSpan = 48 * time.Hour
	gapSearchStep = 15 * time.Minute
)

// firstInstantOnOrAfter finds the first instant near guess whose local day in loc is
// dateLocal or later. It scans coarsely, then bisects the final step to the second.
func firstInstantOnOrAfter(dateLocal string, guess time.Time, loc *time.Location) time.Time {
	reached := func(t time.Time) bool {
		return t.In(loc).Format(DateFormat) >= dateLocal
	}
	lo := guess.Add(-gapSearchSpan).Truncate(gapSearchStep)
	end := guess.Add(gapSearchSpan)
	for hi := lo; !hi.After(end); hi = hi.Add(gapSearchStep) {
		if !reached(hi) {
			lo = hi
			continue
		}
		for hi.Sub(lo) > time.Second {
			mid := lo.Add(hi.Sub(lo) / 2).Truncate(time.Second)
			if reached(mid) {
				hi = mid
			} else {
				lo = mid
			}
		}
		return hi
	}
	return guess
}

// NextLocalMidnightUTC returns the first instant after instant at which tz starts a new day
func (r *Resolver) NextLocalMidnightUTC(instant time.Time, tz *string) time.Time {
	tomorrow := AddDays(r.LocalDay(instant, tz), 1)
	next, err := r.StartOfLocalDayUTC(tomorrow, tz)
	if err != nil {
		// unreachable: tomorrow is produced by Format
		return instant.Add(24 * time.Hour).UTC()
	}
	return next
}

// ParseDay parses a YYYY-MM-DD string as a UTC calendar date
func ParseDay(dateLocal string) (time.Time, error) {
	t, err := time.Parse(DateFormat, dateLocal)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid local day %q: %w", dateLocal, err)
	}
	return t, nil
}

// ValidDay reports whether dateLocal is a well-formed YYYY-MM-DD string
func ValidDay(dateLocal string) bool {
	_, err := ParseDay(dateLocal)
	return err == nil
}

// AddDays shifts a local day by n calendar days. Malformed input is returned unchanged.
func AddDays(dateLocal string, n int) string {
	t, err := ParseDay(dateLocal)
	if err != nil {
		return dateLocal
	}
	return t.AddDate(0, 0, n).Format(DateFormat)
}

// PreviousDay returns the calendar day before dateLocal
func PreviousDay(dateLocal string) string {
	return AddDays(dateLocal, -1)
}

// WeekdayOf returns the weekday of a local day (0=Sunday)
func WeekdayOf(dateLocal string) (time.Weekday, error) {
	t, err := ParseDay(dateLocal)
	if err != nil {
		return 0, err
	}
	return t.Weekday(), nil
}

// DaysBetween returns the number of calendar days from a to b (negative if b is before a)
func DaysBetween(a, b string) (int, error) {
	ta, err := ParseDay(a)
	if err != nil {
		return 0, err
	}
	tb, err := ParseDay(b)
	if err != nil {
		return 0, err
	}
	// Both are UTC midnights, so the division is exact.
	return int(tb.Sub(ta).Hours() / 24), nil
}
