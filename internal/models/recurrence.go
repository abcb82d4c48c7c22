package models

import "time"

// Frequency is the recurrence rule of a habit or task template
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
	FrequencyCustom Frequency = "custom"
)

// Weekdays is a set of weekday indices (0=Sunday..6=Saturday).
// Values are kept sorted and unique once normalized by the recurrence package.
type Weekdays []int

// Contains reports whether the set includes the given weekday
func (w Weekdays) Contains(day time.Weekday) bool {
	for _, d := range w {
		if d == int(day) {
			return true
		}
	}
	return false
}

// Recurrence describes when a recurring habit/task is due
type Recurrence struct {
	Frequency Frequency `json:"frequency" validate:"required,frequency"`
	Weekdays  Weekdays  `json:"weekdays,omitempty" validate:"omitempty,dive,min=0,max=6"`
}

// UsesWeekdays reports whether the frequency is driven by the weekday set
func (r Recurrence) UsesWeekdays() bool {
	return r.Frequency == FrequencyWeekly || r.Frequency == FrequencyCustom
}
