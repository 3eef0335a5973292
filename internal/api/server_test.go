package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trust-scanner/internal/logging"
	"github.com/trust-scanner/internal/storage"
	"github.com/trust-scanner/internal/types"
)

// createTestServer builds a server over an unconnected database handle.
// Tests here only exercise paths that fail before any query is issued.
func createTestServer() *Server {
	return NewServer(&ServerConfig{Port: "0"}, &storage.PostgresDB{}, logging.New(logging.LevelError, logging.FormatText))
}

func TestHealth(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected status healthy, got %q", body["status"])
	}
}

func TestAuth_MissingKey(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if resp.Error.Code != ErrCodeUnauthorized {
		t.Errorf("Expected code %s, got %s", ErrCodeUnauthorized, resp.Error.Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("OPTIONS", "/api/stats", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, X-API-Key" {
		t.Errorf("Unexpected allowed headers: %q", got)
	}
}

func TestHashKey(t *testing.T) {
	a := HashKey("tsk_abc")
	b := HashKey("tsk_abc")
	c := HashKey("tsk_abd")

	if a != b {
		t.Error("Expected identical inputs to hash identically")
	}
	if a == c {
		t.Error("Expected different inputs to hash differently")
	}
	if len(a) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(a))
	}
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "invalid address maps to 400",
			err:      &types.ServiceError{Code: "INVALID_ADDRESS_FORMAT", Message: "bad address"},
			expected: http.StatusBadRequest,
		},
		{
			name:     "non-participant maps to 403",
			err:      &types.ServiceError{Code: "FEEDBACK_NOT_PARTICIPANT", Message: "not a participant"},
			expected: http.StatusForbidden,
		},
		{
			name:     "unknown service code maps to 500",
			err:      &types.ServiceError{Code: "SOMETHING_ELSE", Message: "boom"},
			expected: http.StatusInternalServerError,
		},
		{
			name:     "plain error maps to 500",
			err:      errors.New("connection refused"),
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			respondServiceError(w, tt.err)
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
		})
	}
}
