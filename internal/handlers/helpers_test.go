package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/scheduler"
	"go.uber.org/zap"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		data   any
		check  func(*testing.T, map[string]any)
	}{
		{
			name:   "simple object",
			status: http.StatusOK,
			data:   map[string]string{"message": "hello"},
			check: func(t *testing.T, body map[string]any) {
				data, ok := body["data"].(map[string]any)
				if !ok || data["message"] != "hello" {
					t.Errorf("Expected data.message 'hello', got %v", body["data"])
				}
			},
		},
		{
			name:   "nil data",
			status: http.StatusCreated,
			data:   nil,
			check: func(t *testing.T, body map[string]any) {
				if body["data"] != nil {
					t.Error("Expected data to be nil")
				}
			},
		},
		{
			name:   "array data",
			status: http.StatusOK,
			data:   []string{"a", "b", "c"},
			check: func(t *testing.T, body map[string]any) {
				if arr, ok := body["data"].([]any); !ok || len(arr) != 3 {
					t.Errorf("Expected 3-element array, got %v", body["data"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondJSON(w, tt.status, tt.data)

			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected Content-Type 'application/json', got '%s'", ct)
			}
			body := decodeBody(t, w)
			if success, ok := body["success"].(bool); !ok || !success {
				t.Error("Expected success to be true")
			}
			if _, ok := body["timestamp"].(string); !ok {
				t.Error("Expected timestamp to be present")
			}
			tt.check(t, body)
		})
	}
}

func TestRespondJSONError(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	respondJSONError(w, http.StatusBadRequest, "Bad Request", strings.Repeat("x", 500)+"\ninjected")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if success, _ := body["success"].(bool); success {
		t.Error("Expected success to be false")
	}
	msg, _ := body["message"].(string)
	if len(msg) > maxErrorMessageLength+3 {
		t.Errorf("Expected message to be truncated, got %d bytes", len(msg))
	}
	if strings.Contains(msg, "\n") {
		t.Error("Expected newlines to be stripped")
	}
}

func TestRespondServiceError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("habit instance x: %w", database.ErrNotFound), http.StatusNotFound},
		{scheduler.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("dated 2026-10-13: %w", scheduler.ErrNotToday), http.StatusConflict},
		{database.ErrVersionConflict, http.StatusConflict},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondServiceError(w, zap.NewNop(), "test", tt.err)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusInternalServerError && strings.Contains(w.Body.String(), "connection reset") {
				t.Error("internal error details leaked to client")
			}
		})
	}
}
