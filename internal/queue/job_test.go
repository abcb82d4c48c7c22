package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewDailyResetJob(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	notAfter := time.Now().Add(6 * time.Hour)

	job := NewDailyResetJob(userID, "2026-10-14", notAfter)

	if job.ID == uuid.Nil {
		t.Error("Expected job ID to be set")
	}
	if job.Type != JobTypeDailyResetUser {
		t.Errorf("Expected job type to be %s, got %s", JobTypeDailyResetUser, job.Type)
	}
	if job.UserID != userID {
		t.Errorf("Expected user ID to be %s, got %s", userID, job.UserID)
	}
	if job.LocalDay != "2026-10-14" {
		t.Errorf("Expected local day to be 2026-10-14, got %s", job.LocalDay)
	}
	if job.NotAfter == nil || !job.NotAfter.Equal(notAfter) {
		t.Errorf("Expected NotAfter to be %v, got %v", notAfter, job.NotAfter)
	}
	if job.RetryCount != 0 {
		t.Errorf("Expected retry count to be 0, got %d", job.RetryCount)
	}
	if job.MaxRetries != 3 {
		t.Errorf("Expected max retries to be 3, got %d", job.MaxRetries)
	}
}

func TestJob_WireFormat(t *testing.T) {
	t.Parallel()

	job := NewDailyResetJob(uuid.New(), "2026-10-14", time.Now().Add(time.Hour))
	data, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if fields["type"] != "daily_reset_user" {
		t.Errorf("type = %v, want daily_reset_user", fields["type"])
	}
	if fields["local_day"] != "2026-10-14" {
		t.Errorf("local_day = %v, want 2026-10-14", fields["local_day"])
	}
}

func TestJob_IsExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()

	tests := []struct {
		name string
		job  *Job
		want bool
	}{
		{
			name: "no expiration",
			job:  &Job{NotAfter: nil},
			want: false,
		},
		{
			name: "not expired",
			job:  &Job{NotAfter: timePtr(now.Add(time.Hour))},
			want: false,
		},
		{
			name: "expired",
			job:  &Job{NotAfter: timePtr(now.Add(-time.Hour))},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.job.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_Retry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		want       bool
	}{
		{name: "no retries yet", retryCount: 0, maxRetries: 3, want: true},
		{name: "one left", retryCount: 2, maxRetries: 3, want: true},
		{name: "exhausted", retryCount: 3, maxRetries: 3, want: false},
		{name: "retries disabled", retryCount: 0, maxRetries: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			job := &Job{RetryCount: tt.retryCount, MaxRetries: tt.maxRetries}
			if got := job.CanRetry(); got != tt.want {
				t.Errorf("CanRetry() = %v, want %v", got, tt.want)
			}
			job.IncrementRetry()
			if job.RetryCount != tt.retryCount+1 {
				t.Errorf("RetryCount after IncrementRetry() = %d, want %d", job.RetryCount, tt.retryCount+1)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
