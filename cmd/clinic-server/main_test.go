package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/attendance"
	"github.com/clinic/clinic/internal/domain/directory"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
)

// -- in-memory directory repositories --

type branchRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*directory.Branch
}

func (r *branchRepo) Create(_ context.Context, b *directory.Branch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	r.rows[b.ID] = b
	return nil
}

func (r *branchRepo) GetByID(_ context.Context, id uuid.UUID) (*directory.Branch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.rows[id]; ok {
		return b, nil
	}
	return nil, directory.ErrNotFound
}

func (r *branchRepo) List(context.Context, int, int) ([]*directory.Branch, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*directory.Branch
	for _, b := range r.rows {
		out = append(out, b)
	}
	return out, len(out), nil
}

type doctorRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*directory.Doctor
}

func (r *doctorRepo) Create(_ context.Context, d *directory.Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	r.rows[d.ID] = d
	return nil
}

func (r *doctorRepo) GetByID(_ context.Context, id uuid.UUID) (*directory.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.rows[id]; ok {
		return d, nil
	}
	return nil, directory.ErrNotFound
}

func (r *doctorRepo) List(context.Context, int, int) ([]*directory.Doctor, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*directory.Doctor
	for _, d := range r.rows {
		out = append(out, d)
	}
	return out, len(out), nil
}

const testSigningKey = "0123456789abcdef0123456789abcdef"

type testServer struct {
	e      *echo.Echo
	dir    *directory.Service
	mgr    *attendance.Manager
	branch *directory.Branch
	doctor *directory.Doctor
}

func newTestServer(t *testing.T, env string) *testServer {
	t.Helper()
	cfg := &config.Config{
		Env:            env,
		AuthSigningKey: testSigningKey,
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		RequestTimeout: 5 * time.Second,
	}
	dirSvc := directory.NewService(
		&branchRepo{rows: make(map[uuid.UUID]*directory.Branch)},
		&doctorRepo{rows: make(map[uuid.UUID]*directory.Doctor)},
	)
	store := attendance.NewMemoryStore()
	mgr := attendance.NewManager(store.Schedules(), store.Entries(), store, dirSvc, dirSvc)

	ts := &testServer{
		e: newRouter(cfg, zerolog.Nop(), routes{
			directory:  directory.NewHandler(dirSvc),
			attendance: attendance.NewHandler(mgr),
		}),
		dir: dirSvc,
		mgr: mgr,
	}
	ts.branch = &directory.Branch{Name: "North"}
	if err := dirSvc.CreateBranch(context.Background(), ts.branch); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	ts.doctor = &directory.Doctor{Name: "Dr. Karimi"}
	if err := dirSvc.CreateDoctor(context.Background(), ts.doctor); err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	return ts
}

func token(t *testing.T, roles ...string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:  "Mina",
		Roles: roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (ts *testServer) do(method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) scheduleID(t *testing.T, bearer string) string {
	t.Helper()
	rec := ts.do(http.MethodGet, "/api/v1/branches/"+ts.branch.ID.String()+"/schedule", "", bearer)
	if rec.Code != http.StatusOK {
		t.Fatalf("get schedule: %d %s", rec.Code, rec.Body.String())
	}
	var view struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return view.ID
}

func entryBody(doctorID uuid.UUID, day, start, end string) string {
	return fmt.Sprintf(`{"doctor_id":%q,"weekday":%q,"start":%q,"end":%q}`, doctorID, day, start, end)
}

func TestHealth_IsPublic(t *testing.T) {
	ts := newTestServer(t, "production")
	rec := ts.do(http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a request id header")
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	ts := newTestServer(t, "production")
	rec := ts.do(http.MethodGet, "/api/v1/schedules", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAPI_RoleGates(t *testing.T) {
	ts := newTestServer(t, "production")
	reception := token(t, auth.RoleReceptionist)
	manager := token(t, auth.RoleManager)

	id := ts.scheduleID(t, reception)
	body := entryBody(ts.doctor.ID, "monday", "09:00", "12:00")

	if rec := ts.do(http.MethodPost, "/api/v1/schedules/"+id+"/entries", body, reception); rec.Code != http.StatusForbidden {
		t.Errorf("receptionist must not write, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodPost, "/api/v1/schedules/"+id+"/entries", body, manager); rec.Code != http.StatusCreated {
		t.Errorf("expected 201 for manager, got %d %s", rec.Code, rec.Body.String())
	}
	if rec := ts.do(http.MethodGet, "/api/v1/doctors/"+ts.doctor.ID.String()+"/schedule-entries", "", reception); rec.Code != http.StatusOK {
		t.Errorf("receptionist may read, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/api/v1/schedules", "", token(t)); rec.Code != http.StatusForbidden {
		t.Errorf("token without roles must be rejected, got %d", rec.Code)
	}
}

func TestAPI_ConflictLifecycle(t *testing.T) {
	ts := newTestServer(t, "development")
	id := ts.scheduleID(t, "")

	south := &directory.Branch{Name: "South"}
	if err := ts.dir.CreateBranch(context.Background(), south); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	rec := ts.do(http.MethodGet, "/api/v1/branches/"+south.ID.String()+"/schedule", "", "")
	var southView struct {
		ID string `json:"id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &southView)

	rec = ts.do(http.MethodPost, "/api/v1/schedules/"+id+"/entries", entryBody(ts.doctor.ID, "saturday", "08:00", "10:00"), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var created map[string]string
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = ts.do(http.MethodPost, "/api/v1/schedules/"+southView.ID+"/entries", entryBody(ts.doctor.ID, "saturday", "09:00", "11:00"), "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "already has a shift at branch 'North'") {
		t.Errorf("unexpected conflict body: %s", rec.Body.String())
	}

	rec = ts.do(http.MethodPost, "/api/v1/schedules/"+southView.ID+"/entries", entryBody(ts.doctor.ID, "saturday", "10:00", "12:00"), "")
	if rec.Code != http.StatusCreated {
		t.Errorf("touching block should be accepted, got %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(http.MethodPatch, "/api/v1/schedule-entries/"+created["id"], `{"end":"10:30"}`, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected merged update to conflict, got %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(http.MethodDelete, "/api/v1/schedule-entries/"+created["id"], "", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	rec = ts.do(http.MethodDelete, "/api/v1/schedule-entries/"+created["id"], "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAPI_BadTimeFormat(t *testing.T) {
	ts := newTestServer(t, "development")
	id := ts.scheduleID(t, "")
	rec := ts.do(http.MethodPost, "/api/v1/schedules/"+id+"/entries", entryBody(ts.doctor.ID, "monday", "9am", "12:00"), "")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "invalid time format") {
		t.Errorf("expected 400 invalid time format, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuthMiddleware_NotConfigured(t *testing.T) {
	mw := authMiddleware(&config.Config{Env: "production"})
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err := mw(func(echo.Context) error { return nil })(c)
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestPrintMigrationStatus(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var buf bytes.Buffer
	printMigrationStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "00001_roster.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "00002_next.sql"},
	})
	out := buf.String()
	for _, want := range []string{"00001_roster.sql", "applied", "2026-01-02 03:04:05", "pending"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q:\n%s", want, out)
		}
	}
}
