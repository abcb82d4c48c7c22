// Package recurrence decides which local days a recurring habit or task is due on.
package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/benvon/habitual/internal/calendar"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/validation"
)

// IsEligible reports whether dateLocal is a due day for r.
// Weekly and custom rules with an empty weekday set are never eligible.
func IsEligible(dateLocal string, r models.Recurrence) bool {
	switch r.Frequency {
	case models.FrequencyDaily:
		return true
	case models.FrequencyWeekly, models.FrequencyCustom:
		if len(r.Weekdays) == 0 {
			return false
		}
		wd, err := calendar.WeekdayOf(dateLocal)
		if err != nil {
			return false
		}
		return r.Weekdays.Contains(wd)
	default:
		return false
	}
}

// CountEligibleDays counts due days in [startLocal, endLocal], inclusive.
// It returns 0 when either bound is malformed or end precedes start.
func CountEligibleDays(startLocal, endLocal string, r models.Recurrence) int {
	span, err := calendar.DaysBetween(startLocal, endLocal)
	if err != nil || span < 0 {
		return 0
	}
	count := 0
	day := startLocal
	for i := 0; i <= span; i++ {
		if IsEligible(day, r) {
			count++
		}
		day = calendar.AddDays(day, 1)
	}
	return count
}

// PreviousEligibleDay returns the closest due day strictly before dateLocal.
// A week is always enough lookback for the supported frequencies.
func PreviousEligibleDay(dateLocal string, r models.Recurrence) (string, bool) {
	if !calendar.ValidDay(dateLocal) {
		return "", false
	}
	day := dateLocal
	for i := 0; i < 7; i++ {
		day = calendar.PreviousDay(day)
		if IsEligible(day, r) {
			return day, true
		}
	}
	return "", false
}

// SuccessRate is the percentage of due days in [startLocal, endLocal] that were completed,
// rounded to two decimals and capped at 100.
func SuccessRate(totalCompleted int, startLocal, endLocal string, r models.Recurrence) float64 {
	eligible := CountEligibleDays(startLocal, endLocal, r)
	if eligible == 0 {
		return 0
	}
	rate := float64(totalCompleted) / float64(eligible) * 100
	if rate > 100 {
		rate = 100
	}
	return float64(int64(rate*100+0.5)) / 100
}

// ParseWeekdays accepts the weekday encodings found at the system boundary:
// a comma-joined string ("1,3,5"), or a slice of ints, int64s, float64s or strings.
func ParseWeekdays(raw any) (models.Weekdays, error) {
	var out models.Weekdays
	add := func(v int) error {
		if v < 0 || v > 6 {
			return fmt.Errorf("weekday %d out of range 0-6", v)
		}
		out = append(out, v)
		return nil
	}
	addString := func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid weekday %q: %w", s, err)
		}
		return add(v)
	}

	switch v := raw.(type) {
	case nil:
		return nil, nil
	case models.Weekdays:
		for _, d := range v {
			if err := add(d); err != nil {
				return nil, err
			}
		}
	case []int:
		for _, d := range v {
			if err := add(d); err != nil {
				return nil, err
			}
		}
	case []int64:
		for _, d := range v {
			if err := add(int(d)); err != nil {
				return nil, err
			}
		}
	case []float64:
		for _, d := range v {
			if d != float64(int(d)) {
				return nil, fmt.Errorf("invalid weekday %v", d)
			}
			if err := add(int(d)); err != nil {
				return nil, err
			}
		}
	case []string:
		for _, s := range v {
			if err := addString(s); err != nil {
				return nil, err
			}
		}
	case []any:
		for _, item := range v {
			switch d := item.(type) {
			case float64:
				if d != float64(int(d)) {
					return nil, fmt.Errorf("invalid weekday %v", d)
				}
				if err := add(int(d)); err != nil {
					return nil, err
				}
			case int:
				if err := add(d); err != nil {
					return nil, err
				}
			case string:
				if err := addString(d); err != nil {
					return nil, err
				}
			default:
				return nil, fmt.Errorf("unsupported weekday value %T", item)
			}
		}
	case string:
		for _, part := range strings.Split(strings.Trim(v, "{}[]"), ",") {
			if err := addString(part); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported weekdays encoding %T", raw)
	}
	return dedupe(out), nil
}

// Normalize validates r and returns its canonical form: sorted unique weekdays,
// and no weekday set for daily rules.
func Normalize(r models.Recurrence) (models.Recurrence, error) {
	r.Frequency = models.Frequency(strings.ToLower(strings.TrimSpace(string(r.Frequency))))
	if err := validation.Validate.Struct(r); err != nil {
		return models.Recurrence{}, fmt.Errorf("invalid recurrence: %w", err)
	}
	if r.Frequency == models.FrequencyDaily {
		r.Weekdays = nil
		return r, nil
	}
	r.Weekdays = dedupe(r.Weekdays)
	return r, nil
}

func dedupe(days models.Weekdays) models.Weekdays {
	if len(days) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(days))
	out := make(models.Weekdays, 0, len(days))
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
