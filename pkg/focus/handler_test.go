package focus

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/wisbric/focusd/internal/httpserver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doRequest(t *testing.T, handler http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleEnableAndGetStatus(t *testing.T) {
	m, _, _, _ := newTestMachine()
	h := NewHandler(m, testLogger())
	handler := httpserver.RequireUser(h.Routes())
	userID := uuid.New().String()

	rec := doRequest(t, handler, http.MethodPost, "/enable", userID, map[string]any{
		"duration_minutes": 30,
		"custom_message":   "heads down",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("enable status = %d body=%s", rec.Code, rec.Body.String())
	}

	var resp recordResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding enable response: %v", err)
	}
	if resp.State != StateSimple {
		t.Fatalf("state = %v, want SIMPLE", resp.State)
	}

	statusRec := doRequest(t, handler, http.MethodGet, "/", userID, nil)
	if statusRec.Code != http.StatusOK {
		t.Fatalf("status code = %d", statusRec.Code)
	}
}

func TestHandleEnableRejectsMissingUser(t *testing.T) {
	m, _, _, _ := newTestMachine()
	h := NewHandler(m, testLogger())
	handler := httpserver.RequireUser(h.Routes())

	rec := doRequest(t, handler, http.MethodPost, "/enable", "", map[string]any{})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleEnableRejectsInvalidDuration(t *testing.T) {
	m, _, _, _ := newTestMachine()
	h := NewHandler(m, testLogger())
	handler := httpserver.RequireUser(h.Routes())
	userID := uuid.New().String()

	rec := doRequest(t, handler, http.MethodPost, "/enable", userID, map[string]any{
		"duration_minutes": 9999,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandleDisableIsIdempotent(t *testing.T) {
	m, _, _, _ := newTestMachine()
	h := NewHandler(m, testLogger())
	handler := httpserver.RequireUser(h.Routes())
	userID := uuid.New().String()

	first := doRequest(t, handler, http.MethodPost, "/disable", userID, nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first disable status = %d", first.Code)
	}
	second := doRequest(t, handler, http.MethodPost, "/disable", userID, nil)
	if second.Code != http.StatusOK {
		t.Fatalf("second disable status = %d", second.Code)
	}
}
