package models

import "sync"

// RunSummary reports what a daily reset run did. Safe for concurrent use.
type RunSummary struct {
	UsersTotal         int      `json:"users_total"`
	UsersProcessed     int      `json:"users_processed"`
	UsersSkipped       int      `json:"users_skipped"`
	InstancesCreated   int      `json:"instances_created"`
	RecurrencesClosed  int      `json:"recurrences_closed"`
	MissesRecorded     int      `json:"misses_recorded"`
	TasksMarkedOverdue int      `json:"tasks_marked_overdue"`
	Errors             []string `json:"errors,omitempty"`

	mu sync.Mutex
}

// Add merges the counters of another summary into s
func (s *RunSummary) Add(other *RunSummary) {
	if other == nil {
		return
	}
	other.mu.Lock()
	o := RunSummary{
		UsersProcessed:     other.UsersProcessed,
		UsersSkipped:       other.UsersSkipped,
		InstancesCreated:   other.InstancesCreated,
		RecurrencesClosed:  other.RecurrencesClosed,
		MissesRecorded:     other.MissesRecorded,
		TasksMarkedOverdue: other.TasksMarkedOverdue,
		Errors:             append([]string(nil), other.Errors...),
	}
	other.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.UsersProcessed += o.UsersProcessed
	s.UsersSkipped += o.UsersSkipped
	s.InstancesCreated += o.InstancesCreated
	s.RecurrencesClosed += o.RecurrencesClosed
	s.MissesRecorded += o.MissesRecorded
	s.TasksMarkedOverdue += o.TasksMarkedOverdue
	s.Errors = append(s.Errors, o.Errors...)
}

// AddError records a non-fatal failure
func (s *RunSummary) AddError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors = append(s.Errors, msg)
}
