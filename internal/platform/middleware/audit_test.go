package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
)

func TestExtractResourceType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/schedules", "schedules"},
		{"/api/v1/branches/6f1c/schedule", "schedule"},
		{"/api/v1/schedules/6f1c/entries", "entries"},
		{"/api/v1/schedule-entries/6f1c", "schedule-entries"},
		{"/api/v1/doctors/6f1c/schedule-entries", "schedule-entries"},
		{"/api/v1/", "unknown"},
	}
	for _, tt := range tests {
		if got := extractResourceType(tt.path); got != tt.want {
			t.Errorf("extractResourceType(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestHTTPMethodToAction(t *testing.T) {
	tests := map[string]string{
		http.MethodGet:    "read",
		http.MethodHead:   "read",
		http.MethodPost:   "create",
		http.MethodPatch:  "update",
		http.MethodPut:    "update",
		http.MethodDelete: "delete",
	}
	for method, want := range tests {
		if got := httpMethodToAction(method); got != want {
			t.Errorf("httpMethodToAction(%s) = %s, want %s", method, got, want)
		}
	}
}

func TestAudit_LogsAPIAccess(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/schedule-entries/6f1c", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "user-7", "Mona", []string{auth.RoleManager}))
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-123")

	handler := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "schedule entry not found")
	}
	Audit(zerolog.New(&buf))(handler)(c)

	line := buf.String()
	for _, want := range []string{`"user_id":"user-7"`, `"action":"delete"`, `"resource_type":"schedule-entries"`, `"status":404`, `"request_id":"req-123"`} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %s in %s", want, line)
		}
	}
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := Audit(zerolog.New(&buf))(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no access line for /health, got %s", buf.String())
	}
}
