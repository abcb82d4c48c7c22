package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeDailyResetUser runs one user's daily reset for a given local day
	JobTypeDailyResetUser JobType = "daily_reset_user"
)

// Job represents a job in the queue
type Job struct {
	ID         uuid.UUID  `json:"id"`
	Type       JobType    `json:"type"`
	UserID     uuid.UUID  `json:"user_id"`
	LocalDay   string     `json:"local_day"`           // the user's local day the job was dispatched for
	NotAfter   *time.Time `json:"not_after,omitempty"` // Latest time to process job (nil = no expiration)
	CreatedAt  time.Time  `json:"created_at"`
	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
}

// NewDailyResetJob creates a daily reset job for userID's localDay that expires at notAfter
func NewDailyResetJob(userID uuid.UUID, localDay string, notAfter time.Time) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       JobTypeDailyResetUser,
		UserID:     userID,
		LocalDay:   localDay,
		NotAfter:   &notAfter,
		CreatedAt:  time.Now(),
		RetryCount: 0,
		MaxRetries: 3,
	}
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}
	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}
