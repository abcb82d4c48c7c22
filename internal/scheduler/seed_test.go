package scheduler

import (
	"errors"
	"testing"

	"github.com/benvon/habitual/internal/models"
	"github.com/google/uuid"
)

func TestNewHabit(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	tests := []struct {
		name    string
		r       models.Recurrence
		today   string
		wantDay string
		wantErr error
	}{
		{name: "daily starts today", r: models.Recurrence{Frequency: models.FrequencyDaily, Weekdays: models.Weekdays{1}}, today: "2026-10-14", wantDay: "2026-10-14"},
		{name: "weekly eligible today", r: models.Recurrence{Frequency: models.FrequencyWeekly, Weekdays: models.Weekdays{3}}, today: "2026-10-14", wantDay: "2026-10-14"},
		{name: "weekly waits for next due day", r: models.Recurrence{Frequency: models.FrequencyWeekly, Weekdays: models.Weekdays{5, 1, 1}}, today: "2026-10-14", wantDay: "2026-10-16"},
		{name: "custom wraps the week", r: models.Recurrence{Frequency: "Custom", Weekdays: models.Weekdays{1}}, today: "2026-10-14", wantDay: "2026-10-19"},
		{name: "weekly without weekdays", r: models.Recurrence{Frequency: models.FrequencyWeekly}, today: "2026-10-14", wantErr: ErrNoWeekdays},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			inst, err := NewHabit(userID, "Read", "", tt.r, tt.today)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewHabit() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewHabit() error = %v", err)
			}
			if inst.DateLocal != tt.wantDay || inst.StartDateLocal != tt.wantDay {
				t.Errorf("dated %s starting %s, want %s", inst.DateLocal, inst.StartDateLocal, tt.wantDay)
			}
			if inst.UserID != userID || inst.RecurrenceID == uuid.Nil {
				t.Error("expected owner and a fresh recurrence id")
			}
			if inst.Recurrence.Frequency == models.FrequencyDaily && inst.Recurrence.Weekdays != nil {
				t.Error("daily rule should drop weekdays")
			}
			if inst.Streak != 0 || inst.FailByWeekday == nil || inst.MissedDays == nil {
				t.Errorf("unexpected initial metrics %+v", inst.HabitMetrics)
			}
		})
	}
}

func TestNewHabit_InvalidFrequency(t *testing.T) {
	t.Parallel()

	if _, err := NewHabit(uuid.New(), "Read", "", models.Recurrence{Frequency: "hourly"}, "2026-10-14"); err == nil {
		t.Error("expected error for unknown frequency")
	}
}
