package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/models"
	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for the Postgres repositories that keeps the same
// uniqueness and compare-and-set guarantees.
type memStore struct {
	mu sync.Mutex

	rows    map[uuid.UUID]*models.HabitInstance
	history map[string]*models.HistoryEntry
	tasks   []*models.TaskInstance

	historyWrites int
	applyCalls    int
	conflicts     int
	failApply     map[uuid.UUID]error
	afterInsert   func()
}

var (
	_ database.UserRepositoryInterface    = (*memUsers)(nil)
	_ database.HabitRepositoryInterface   = (*memStore)(nil)
	_ database.HistoryRepositoryInterface = (*memStore)(nil)
	_ database.TaskRepositoryInterface    = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		rows:      map[uuid.UUID]*models.HabitInstance{},
		history:   map[string]*models.HistoryEntry{},
		failApply: map[uuid.UUID]error{},
	}
}

func cloneInstance(inst *models.HabitInstance) *models.HabitInstance {
	out := *inst
	out.HabitMetrics = inst.HabitMetrics.Clone()
	out.Recurrence.Weekdays = append(models.Weekdays(nil), inst.Recurrence.Weekdays...)
	return &out
}

func historyKey(recurrenceID, userID uuid.UUID, day string) string {
	return recurrenceID.String() + "/" + userID.String() + "/" + day
}

// seed stores a row as-is and returns a copy
func (s *memStore) seed(inst *models.HabitInstance) *models.HabitInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	if inst.FailByWeekday == nil {
		inst.FailByWeekday = map[int]int{}
	}
	s.rows[inst.ID] = cloneInstance(inst)
	return cloneInstance(inst)
}

func (s *memStore) rowFor(recurrenceID uuid.UUID, day string) *models.HabitInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.RecurrenceID == recurrenceID && r.DateLocal == day {
			return cloneInstance(r)
		}
	}
	return nil
}

func (s *memStore) rowsFor(recurrenceID uuid.UUID) []*models.HabitInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.HabitInstance
	for _, r := range s.rows {
		if r.RecurrenceID == recurrenceID {
			out = append(out, cloneInstance(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateLocal < out[j].DateLocal })
	return out
}

func (s *memStore) historyEntry(recurrenceID, userID uuid.UUID, day string) *models.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.history[historyKey(recurrenceID, userID, day)]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

func (s *memStore) latestLocked(recurrenceID uuid.UUID) *models.HabitInstance {
	var latest *models.HabitInstance
	for _, r := range s.rows {
		if r.RecurrenceID != recurrenceID {
			continue
		}
		if latest == nil || r.DateLocal > latest.DateLocal {
			latest = r
		}
	}
	return latest
}

// memUsers is an in-memory user registry
type memUsers struct {
	mu      sync.Mutex
	users   []*models.User
	listErr error
}

func (u *memUsers) Create(_ context.Context, user *models.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.users = append(u.users, user)
	return nil
}

func (u *memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, database.ErrNotFound
}

func (u *memUsers) GetByProviderID(_ context.Context, providerID string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.users {
		if user.ProviderID != nil && *user.ProviderID == providerID {
			return user, nil
		}
	}
	return nil, database.ErrNotFound
}

func (u *memUsers) ListAll(_ context.Context) ([]*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.listErr != nil {
		return nil, u.listErr
	}
	return append([]*models.User(nil), u.users...), nil
}

func (s *memStore) LatestPerRecurrence(_ context.Context, userID uuid.UUID, includePaused bool) ([]*models.HabitInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var out []*models.HabitInstance
	for _, r := range s.rows {
		if r.UserID != userID || seen[r.RecurrenceID] {
			continue
		}
		seen[r.RecurrenceID] = true
		latest := s.latestLocked(r.RecurrenceID)
		if latest.Paused && !includePaused {
			continue
		}
		out = append(out, cloneInstance(latest))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.HabitInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("habit instance: %w", database.ErrNotFound)
	}
	return cloneInstance(r), nil
}

func (s *memStore) GetForDay(_ context.Context, recurrenceID uuid.UUID, dateLocal string) (*models.HabitInstance, error) {
	if r := s.rowFor(recurrenceID, dateLocal); r != nil {
		return r, nil
	}
	return nil, fmt.Errorf("habit instance for day: %w", database.ErrNotFound)
}

func (s *memStore) Latest(_ context.Context, recurrenceID uuid.UUID) (*models.HabitInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := s.latestLocked(recurrenceID)
	if latest == nil {
		return nil, fmt.Errorf("latest habit instance: %w", database.ErrNotFound)
	}
	return cloneInstance(latest), nil
}

func (s *memStore) ListForDay(_ context.Context, userID uuid.UUID, dateLocal string) ([]*models.HabitInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.HabitInstance
	for _, r := range s.rows {
		if r.UserID == userID && r.DateLocal == dateLocal {
			out = append(out, cloneInstance(r))
		}
	}
	return out, nil
}

func (s *memStore) InsertCarryForward(_ context.Context, inst *models.HabitInstance) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.RecurrenceID == inst.RecurrenceID && r.DateLocal == inst.DateLocal {
			return false, nil
		}
	}
	if latest := s.latestLocked(inst.RecurrenceID); latest != nil && latest.MetricsVersion != inst.MetricsVersion {
		inst.HabitMetrics = latest.HabitMetrics.Clone()
		inst.MetricsVersion = latest.MetricsVersion
		inst.Alert = inst.Streak == 0
	}
	s.rows[inst.ID] = cloneInstance(inst)
	if s.afterInsert != nil {
		s.afterInsert()
	}
	return true, nil
}

func (s *memStore) ApplyMetrics(_ context.Context, upd database.MetricsUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyCalls++

	if err := s.failApply[upd.RecurrenceID]; err != nil {
		return 0, err
	}

	var current int64 = -1
	for _, r := range s.rows {
		if r.RecurrenceID == upd.RecurrenceID && r.MetricsVersion > current {
			current = r.MetricsVersion
		}
	}
	if current < 0 {
		return 0, database.ErrNotFound
	}

	if s.conflicts > 0 {
		// simulate another writer winning the race
		s.conflicts--
		for _, r := range s.rows {
			if r.RecurrenceID == upd.RecurrenceID {
				r.MetricsVersion++
			}
		}
		return 0, database.ErrVersionConflict
	}
	if current != upd.ExpectedVersion {
		return 0, database.ErrVersionConflict
	}

	for _, r := range s.rows {
		if r.RecurrenceID != upd.RecurrenceID {
			continue
		}
		r.HabitMetrics = upd.Metrics.Clone()
		r.MetricsVersion = current + 1
	}
	if upd.Completion != nil {
		r, ok := s.rows[upd.Completion.InstanceID]
		if !ok {
			return 0, database.ErrNotFound
		}
		r.CompletedToday = upd.Completion.Completed
	}
	return current + 1, nil
}

func (s *memStore) SetPaused(_ context.Context, userID, recurrenceID uuid.UUID, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for _, r := range s.rows {
		if r.RecurrenceID == recurrenceID && r.UserID == userID {
			r.Paused = paused
			found = true
		}
	}
	if !found {
		return database.ErrNotFound
	}
	return nil
}

func (s *memStore) DeleteRecurrence(_ context.Context, userID, recurrenceID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.rows {
		if r.RecurrenceID == recurrenceID && r.UserID == userID {
			delete(s.rows, id)
		}
	}
	return nil
}

func (s *memStore) Upsert(_ context.Context, entry *models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyWrites++
	cp := *entry
	s.history[historyKey(entry.RecurrenceID, entry.UserID, entry.DateLocal)] = &cp
	return nil
}

func (s *memStore) ListRange(_ context.Context, userID, recurrenceID uuid.UUID, from, to string) ([]*models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.HistoryEntry
	for _, e := range s.history {
		if e.UserID == userID && e.RecurrenceID == recurrenceID && e.DateLocal >= from && e.DateLocal <= to {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateLocal < out[j].DateLocal })
	return out, nil
}

func (s *memStore) MarkOverdue(_ context.Context, userID uuid.UUID, todayLocal string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.UserID != userID || t.IsCompleted || t.Overdue || t.DueDate == nil || *t.DueDate >= todayLocal {
			continue
		}
		t.Overdue = true
		t.CurrentBoard = models.BoardOverdue
		n++
	}
	return n, nil
}

func (s *memStore) countRows(recurrenceID uuid.UUID, day string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.RecurrenceID == recurrenceID && r.DateLocal == day {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
