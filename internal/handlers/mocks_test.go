package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/benvon/habitual/internal/calendar"
	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/request"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// 2026-10-14 is a Wednesday; noon in Sao Paulo
var testNow = time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC)

var testResolver = calendar.NewResolver(calendar.DefaultTimezone, nil)

func fixedNow() time.Time { return testNow }

type mockHabitRepo struct {
	rows        []*models.HabitInstance
	inserted    []*models.HabitInstance
	paused      map[uuid.UUID]bool
	deleted     []uuid.UUID
	listErr     error
	insertErr   error
	insertDupes bool
}

var _ database.HabitRepositoryInterface = (*mockHabitRepo)(nil)

func (m *mockHabitRepo) LatestPerRecurrence(ctx context.Context, userID uuid.UUID, includePaused bool) ([]*models.HabitInstance, error) {
	return nil, nil
}

func (m *mockHabitRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.HabitInstance, error) {
	for _, r := range m.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *mockHabitRepo) GetForDay(ctx context.Context, recurrenceID uuid.UUID, dateLocal string) (*models.HabitInstance, error) {
	for _, r := range m.rows {
		if r.RecurrenceID == recurrenceID && r.DateLocal == dateLocal {
			return r, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *mockHabitRepo) Latest(ctx context.Context, recurrenceID uuid.UUID) (*models.HabitInstance, error) {
	var latest *models.HabitInstance
	for _, r := range m.rows {
		if r.RecurrenceID == recurrenceID && (latest == nil || r.DateLocal > latest.DateLocal) {
			latest = r
		}
	}
	if latest == nil {
		return nil, database.ErrNotFound
	}
	return latest, nil
}

func (m *mockHabitRepo) ListForDay(ctx context.Context, userID uuid.UUID, dateLocal string) ([]*models.HabitInstance, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.HabitInstance
	for _, r := range m.rows {
		if r.UserID == userID && r.DateLocal == dateLocal {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockHabitRepo) InsertCarryForward(ctx context.Context, inst *models.HabitInstance) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}
	if m.insertDupes {
		return false, nil
	}
	m.inserted = append(m.inserted, inst)
	return true, nil
}

func (m *mockHabitRepo) ApplyMetrics(ctx context.Context, upd database.MetricsUpdate) (int64, error) {
	return upd.ExpectedVersion + 1, nil
}

func (m *mockHabitRepo) SetPaused(ctx context.Context, userID, recurrenceID uuid.UUID, paused bool) error {
	if m.paused == nil {
		m.paused = map[uuid.UUID]bool{}
	}
	m.paused[recurrenceID] = paused
	return nil
}

func (m *mockHabitRepo) DeleteRecurrence(ctx context.Context, userID, recurrenceID uuid.UUID) error {
	m.deleted = append(m.deleted, recurrenceID)
	return nil
}

type mockHistoryRepo struct {
	entries  []*models.HistoryEntry
	gotRange [2]string
}

var _ database.HistoryRepositoryInterface = (*mockHistoryRepo)(nil)

func (m *mockHistoryRepo) Upsert(ctx context.Context, entry *models.HistoryEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockHistoryRepo) ListRange(ctx context.Context, userID, recurrenceID uuid.UUID, from, to string) ([]*models.HistoryEntry, error) {
	m.gotRange = [2]string{from, to}
	var out []*models.HistoryEntry
	for _, e := range m.entries {
		if e.UserID == userID && e.RecurrenceID == recurrenceID && e.DateLocal >= from && e.DateLocal <= to {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockToggler struct {
	completeFunc   func(ctx context.Context, user *models.User, id uuid.UUID, now time.Time) (*models.HabitInstance, error)
	uncompleteFunc func(ctx context.Context, user *models.User, id uuid.UUID, now time.Time) (*models.HabitInstance, error)
}

var _ CompletionToggler = (*mockToggler)(nil)

func (m *mockToggler) Complete(ctx context.Context, user *models.User, id uuid.UUID, now time.Time) (*models.HabitInstance, error) {
	return m.completeFunc(ctx, user, id, now)
}

func (m *mockToggler) Uncomplete(ctx context.Context, user *models.User, id uuid.UUID, now time.Time) (*models.HabitInstance, error) {
	return m.uncompleteFunc(ctx, user, id, now)
}

type mockBatchRunner struct {
	calls   int
	runFunc func(ctx context.Context, now time.Time) (*models.RunSummary, error)
}

var _ BatchRunner = (*mockBatchRunner)(nil)

func (m *mockBatchRunner) Run(ctx context.Context, now time.Time) (*models.RunSummary, error) {
	m.calls++
	return m.runFunc(ctx, now)
}

func strPtr(s string) *string { return &s }

func testUser() *models.User {
	return &models.User{ID: uuid.New(), Email: "ana@example.com", Timezone: strPtr("America/Sao_Paulo")}
}

// serve routes req through a router so mux path variables are populated
func serve(register func(*mux.Router), user *models.User, method, target, body string) *httptest.ResponseRecorder {
	r := mux.NewRouter()
	register(r)

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if user != nil {
		req = req.WithContext(request.WithUser(req.Context(), user))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
