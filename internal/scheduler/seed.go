package scheduler

import (
	"errors"
	"fmt"

	"github.com/benvon/habitual/internal/calendar"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/recurrence"
	"github.com/google/uuid"
)

// ErrNoWeekdays is returned when a weekly or custom rule has an empty weekday set
var ErrNoWeekdays = errors.New("weekly and custom recurrences need at least one weekday")

// NewHabit builds the first row of a new recurrence. The row is dated the first eligible
// day on or after todayLocal, which also becomes the start of the success-rate window.
func NewHabit(userID uuid.UUID, title, description string, r models.Recurrence, todayLocal string) (*models.HabitInstance, error) {
	r, err := recurrence.Normalize(r)
	if err != nil {
		return nil, err
	}
	if r.UsesWeekdays() && len(r.Weekdays) == 0 {
		return nil, ErrNoWeekdays
	}

	if !calendar.ValidDay(todayLocal) {
		return nil, fmt.Errorf("invalid local day %q", todayLocal)
	}
	day := todayLocal
	for i := 0; i < 7 && !recurrence.IsEligible(day, r); i++ {
		day = calendar.AddDays(day, 1)
	}

	return &models.HabitInstance{
		ID:             uuid.New(),
		RecurrenceID:   uuid.New(),
		UserID:         userID,
		Title:          title,
		Description:    description,
		Recurrence:     r,
		DateLocal:      day,
		StartDateLocal: day,
		HabitMetrics: models.HabitMetrics{
			MissedDays:    []string{},
			FailByWeekday: map[int]int{},
		},
	}, nil
}
