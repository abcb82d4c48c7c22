package models

import (
	"time"

	"github.com/google/uuid"
)

// HabitMetrics are the cumulative values shared by every dated row of a recurrence.
// The latest row is authoritative; older rows are snapshots kept in sync by the scheduler.
type HabitMetrics struct {
	Streak                 int         `json:"streak"`
	TotalCompleted         int         `json:"total_completed"`
	LastCompletedDateLocal *string     `json:"last_completed_date_local,omitempty"`
	MissedDays             []string    `json:"missed_days"`
	FailByWeekday          map[int]int `json:"fail_by_weekday"`
	SuccessRate            float64     `json:"success_rate"`
	Alert                  bool        `json:"alert"`
}

// Clone returns a deep copy so callers can mutate slices and maps safely
func (m HabitMetrics) Clone() HabitMetrics {
	out := m
	if m.LastCompletedDateLocal != nil {
		last := *m.LastCompletedDateLocal
		out.LastCompletedDateLocal = &last
	}
	out.MissedDays = append([]string(nil), m.MissedDays...)
	out.FailByWeekday = make(map[int]int, len(m.FailByWeekday))
	for k, v := range m.FailByWeekday {
		out.FailByWeekday[k] = v
	}
	return out
}

// HasMissed reports whether the given local day is already recorded as missed
func (m HabitMetrics) HasMissed(dateLocal string) bool {
	for _, d := range m.MissedDays {
		if d == dateLocal {
			return true
		}
	}
	return false
}

// HabitInstance is one materialized day of a recurring habit
type HabitInstance struct {
	ID             uuid.UUID  `json:"id"`
	RecurrenceID   uuid.UUID  `json:"recurrence_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Recurrence     Recurrence `json:"recurrence"`
	Paused         bool       `json:"paused"`
	DateLocal      string     `json:"date_local"`
	StartDateLocal string     `json:"start_date_local"`
	CompletedToday bool       `json:"completed_today"`
	HabitMetrics
	MetricsVersion int64     `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
