package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/scheduler"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func newTestHabitHandler(repo *mockHabitRepo, toggler CompletionToggler) *HabitHandler {
	h := NewHabitHandler(repo, toggler, testResolver, nil)
	h.now = fixedNow
	return h
}

func habitRoutes(h *HabitHandler) func(*mux.Router) {
	return func(r *mux.Router) { h.RegisterRoutes(r.PathPrefix("/api/v1/habits").Subrouter()) }
}

func TestListHabits(t *testing.T) {
	t.Parallel()

	user := testUser()
	other := testUser()
	repo := &mockHabitRepo{rows: []*models.HabitInstance{
		{ID: uuid.New(), UserID: user.ID, Title: "Read", DateLocal: "2026-10-14"},
		{ID: uuid.New(), UserID: user.ID, Title: "Run", DateLocal: "2026-10-13"},
		{ID: uuid.New(), UserID: other.ID, Title: "Swim", DateLocal: "2026-10-14"},
	}}
	h := newTestHabitHandler(repo, nil)

	tests := []struct {
		name       string
		user       *models.User
		target     string
		wantStatus int
		wantDay    string
		wantCount  int
	}{
		{name: "defaults to local today", user: user, target: "/api/v1/habits", wantStatus: http.StatusOK, wantDay: "2026-10-14", wantCount: 1},
		{name: "explicit date", user: user, target: "/api/v1/habits?date=2026-10-13", wantStatus: http.StatusOK, wantDay: "2026-10-13", wantCount: 1},
		{name: "empty day is an empty list", user: user, target: "/api/v1/habits?date=2026-01-01", wantStatus: http.StatusOK, wantDay: "2026-01-01", wantCount: 0},
		{name: "bad date", user: user, target: "/api/v1/habits?date=14/10/2026", wantStatus: http.StatusBadRequest},
		{name: "no user", target: "/api/v1/habits", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := serve(habitRoutes(h), tt.user, http.MethodGet, tt.target, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			data := decodeBody(t, w)["data"].(map[string]any)
			if data["date_local"] != tt.wantDay {
				t.Errorf("date_local = %v, want %s", data["date_local"], tt.wantDay)
			}
			habits, ok := data["habits"].([]any)
			if !ok || len(habits) != tt.wantCount {
				t.Errorf("habits = %v, want %d entries", data["habits"], tt.wantCount)
			}
		})
	}
}

func TestListHabits_LocalDayAcrossZones(t *testing.T) {
	t.Parallel()

	// 02:30Z on the 14th is still the 13th in Sao Paulo
	user := testUser()
	repo := &mockHabitRepo{rows: []*models.HabitInstance{{ID: uuid.New(), UserID: user.ID, DateLocal: "2026-10-13"}}}
	h := newTestHabitHandler(repo, nil)
	h.now = func() time.Time { return time.Date(2026, 10, 14, 2, 30, 0, 0, time.UTC) }

	w := serve(habitRoutes(h), user, http.MethodGet, "/api/v1/habits", "")
	data := decodeBody(t, w)["data"].(map[string]any)
	if data["date_local"] != "2026-10-13" {
		t.Errorf("date_local = %v, want 2026-10-13", data["date_local"])
	}
}

func TestCreateHabit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		repo       *mockHabitRepo
		wantStatus int
		wantDay    string
	}{
		{
			name:       "daily",
			body:       `{"title":"  Read  ","recurrence":{"frequency":"daily"}}`,
			repo:       &mockHabitRepo{},
			wantStatus: http.StatusCreated,
			wantDay:    "2026-10-14",
		},
		{
			name:       "weekly starts on next due day",
			body:       `{"title":"Gym","recurrence":{"frequency":"weekly","weekdays":[5]}}`,
			repo:       &mockHabitRepo{},
			wantStatus: http.StatusCreated,
			wantDay:    "2026-10-16",
		},
		{
			name:       "comma-joined weekdays",
			body:       `{"title":"Gym","recurrence":{"frequency":"custom","weekdays":"5, 1"}}`,
			repo:       &mockHabitRepo{},
			wantStatus: http.StatusCreated,
			wantDay:    "2026-10-16",
		},
		{name: "missing title", body: `{"recurrence":{"frequency":"daily"}}`, repo: &mockHabitRepo{}, wantStatus: http.StatusBadRequest},
		{name: "bad frequency", body: `{"title":"x","recurrence":{"frequency":"hourly"}}`, repo: &mockHabitRepo{}, wantStatus: http.StatusBadRequest},
		{name: "weekday out of range", body: `{"title":"x","recurrence":{"frequency":"weekly","weekdays":[9]}}`, repo: &mockHabitRepo{}, wantStatus: http.StatusBadRequest},
		{name: "weekly without weekdays", body: `{"title":"x","recurrence":{"frequency":"weekly"}}`, repo: &mockHabitRepo{}, wantStatus: http.StatusBadRequest},
		{name: "malformed json", body: `{"title":`, repo: &mockHabitRepo{}, wantStatus: http.StatusBadRequest},
		{name: "store failure", body: `{"title":"x","recurrence":{"frequency":"daily"}}`, repo: &mockHabitRepo{insertErr: errors.New("db down")}, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			user := testUser()
			h := newTestHabitHandler(tt.repo, nil)
			w := serve(habitRoutes(h), user, http.MethodPost, "/api/v1/habits", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusCreated {
				return
			}
			if len(tt.repo.inserted) != 1 {
				t.Fatalf("inserted %d rows, want 1", len(tt.repo.inserted))
			}
			inst := tt.repo.inserted[0]
			if inst.DateLocal != tt.wantDay || inst.UserID != user.ID {
				t.Errorf("inserted %s for %s, want %s for caller", inst.DateLocal, inst.UserID, tt.wantDay)
			}
			if inst.Title != "Read" && inst.Title != "Gym" {
				t.Errorf("title = %q, want trimmed", inst.Title)
			}
		})
	}
}

func TestToggleHabit(t *testing.T) {
	t.Parallel()

	user := testUser()
	id := uuid.New()

	tests := []struct {
		name       string
		method     string
		target     string
		err        error
		wantStatus int
	}{
		{name: "complete", method: http.MethodPost, target: "/api/v1/habits/" + id.String() + "/complete", wantStatus: http.StatusOK},
		{name: "uncomplete", method: http.MethodDelete, target: "/api/v1/habits/" + id.String() + "/complete", wantStatus: http.StatusOK},
		{name: "bad id", method: http.MethodPost, target: "/api/v1/habits/nope/complete", wantStatus: http.StatusBadRequest},
		{name: "not found", method: http.MethodPost, target: "/api/v1/habits/" + id.String() + "/complete", err: fmt.Errorf("x: %w", database.ErrNotFound), wantStatus: http.StatusNotFound},
		{name: "not owner", method: http.MethodPost, target: "/api/v1/habits/" + id.String() + "/complete", err: scheduler.ErrForbidden, wantStatus: http.StatusForbidden},
		{name: "past day", method: http.MethodDelete, target: "/api/v1/habits/" + id.String() + "/complete", err: fmt.Errorf("x: %w", scheduler.ErrNotToday), wantStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotCompleted *bool
			respond := func(completed bool) func(context.Context, *models.User, uuid.UUID, time.Time) (*models.HabitInstance, error) {
				return func(ctx context.Context, u *models.User, gotID uuid.UUID, now time.Time) (*models.HabitInstance, error) {
					gotCompleted = &completed
					if tt.err != nil {
						return nil, tt.err
					}
					if gotID != id || u != user || !now.Equal(testNow) {
						t.Errorf("toggler got (%s, %v, %s)", gotID, u, now)
					}
					return &models.HabitInstance{ID: gotID, CompletedToday: completed}, nil
				}
			}
			toggler := &mockToggler{completeFunc: respond(true), uncompleteFunc: respond(false)}

			w := serve(habitRoutes(newTestHabitHandler(&mockHabitRepo{}, toggler)), user, tt.method, tt.target, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				want := tt.method == http.MethodPost
				if gotCompleted == nil || *gotCompleted != want {
					t.Errorf("toggle direction = %v, want %v", gotCompleted, want)
				}
			}
		})
	}
}
