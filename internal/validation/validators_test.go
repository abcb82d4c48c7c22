package validation

import (
	"testing"

	"github.com/benvon/habitual/internal/models"
)

func TestValidateFrequency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value   string
		wantErr bool
	}{
		{value: "daily"},
		{value: "weekly"},
		{value: "custom"},
		{value: "monthly", wantErr: true},
		{value: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Parallel()
			err := ValidateFrequency(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFrequency(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidate_RecurrenceStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rec     models.Recurrence
		wantErr bool
	}{
		{name: "daily", rec: models.Recurrence{Frequency: models.FrequencyDaily}},
		{name: "weekly with days", rec: models.Recurrence{Frequency: models.FrequencyWeekly, Weekdays: models.Weekdays{1, 3, 5}}},
		{name: "weekday out of range", rec: models.Recurrence{Frequency: models.FrequencyWeekly, Weekdays: models.Weekdays{7}}, wantErr: true},
		{name: "unknown frequency", rec: models.Recurrence{Frequency: "hourly"}, wantErr: true},
		{name: "missing frequency", rec: models.Recurrence{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate.Struct(tt.rec)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate.Struct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeText(t *testing.T) {
	t.Parallel()

	if got := SanitizeText("  read\x00 a book\t "); got != "read a book" {
		t.Errorf("SanitizeText() = %q", got)
	}
}
