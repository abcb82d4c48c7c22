package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okCheck(ctx context.Context) error { return nil }

func TestHealthChecker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mode       string
		checks     map[string]CheckFunc
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "basic mode skips checks",
			checks:     map[string]CheckFunc{"database": func(ctx context.Context) error { return errors.New("down") }},
			wantStatus: http.StatusOK,
		},
		{
			name: "extended all healthy",
			mode: "extended",
			checks: map[string]CheckFunc{
				"database": okCheck,
				"redis":    okCheck,
				"rabbitmq": nil,
			},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "healthy", "redis": "healthy", "rabbitmq": "not configured"},
		},
		{
			name: "extended database down",
			mode: "extended",
			checks: map[string]CheckFunc{
				"database": func(ctx context.Context) error { return errors.New("connection refused") },
				"redis":    okCheck,
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "unhealthy", "redis": "healthy"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			url := "/healthz"
			if tt.mode != "" {
				url += "?mode=" + tt.mode
			}
			w := httptest.NewRecorder()
			NewHealthChecker(tt.checks).HealthCheck(w, httptest.NewRequest(http.MethodGet, url, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if len(resp.Checks) != len(tt.wantChecks) {
				t.Fatalf("checks = %v, want %v", resp.Checks, tt.wantChecks)
			}
			for k, v := range tt.wantChecks {
				if resp.Checks[k] != v {
					t.Errorf("check[%s] = %q, want %q", k, resp.Checks[k], v)
				}
			}
		})
	}
}
