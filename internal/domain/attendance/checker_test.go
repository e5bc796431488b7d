package attendance

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

// seedEntry writes straight to the store, bypassing the manager's checks.
func seedEntry(t *testing.T, store *MemoryStore, id, scheduleID, doctorID uuid.UUID, in Interval) {
	t.Helper()
	e := &Entry{ID: id, ScheduleID: scheduleID, DoctorID: doctorID, Weekday: in.Weekday, Start: in.Start, End: in.End}
	if err := store.Entries().Create(context.Background(), e); err != nil {
		t.Fatalf("seed entry: %v", err)
	}
}

func TestChecker_NoEntries(t *testing.T) {
	env := newTestEnv(t, nil)
	c, err := env.mgr.Checker().FindConflict(context.Background(), uuid.New(), iv(Monday, "09:00", "12:00"), nil)
	if err != nil || c != nil {
		t.Errorf("expected no conflict, got %v, %v", c, err)
	}
}

func TestChecker_CrossBranch(t *testing.T) {
	env := newTestEnv(t, nil)
	north := env.schedule(t, "North")
	doctor := env.dir.addDoctor("Dr. Karimi")
	existing := env.add(t, north.ID, doctor, Monday, "09:00", "12:00")

	c, err := env.mgr.Checker().FindConflict(context.Background(), doctor, iv(Monday, "11:00", "13:00"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil {
		t.Fatal("expected a conflict")
	}
	if c.Entry.ID != existing || c.BranchName != "North" || c.DoctorName != "Dr. Karimi" {
		t.Errorf("unexpected conflict: %+v", c)
	}
	cerr := c.Err()
	if cerr.BranchID != north.BranchID || cerr.Interval != iv(Monday, "09:00", "12:00") {
		t.Errorf("unexpected conflict error: %+v", cerr)
	}
}

func TestChecker_IgnoresOtherDoctorsAndDays(t *testing.T) {
	env := newTestEnv(t, nil)
	ws := env.schedule(t, "North")
	a := env.dir.addDoctor("A")
	b := env.dir.addDoctor("B")
	env.add(t, ws.ID, a, Monday, "09:00", "12:00")
	env.add(t, ws.ID, b, Tuesday, "09:00", "12:00")

	checker := env.mgr.Checker()
	if c, _ := checker.FindConflict(context.Background(), b, iv(Monday, "09:00", "12:00"), nil); c != nil {
		t.Errorf("other doctor's entry must not conflict, got %+v", c.Entry)
	}
	if c, _ := checker.FindConflict(context.Background(), a, iv(Tuesday, "09:00", "12:00"), nil); c != nil {
		t.Errorf("other weekday must not conflict, got %+v", c.Entry)
	}
	if c, _ := checker.FindConflict(context.Background(), a, iv(Monday, "12:00", "15:00"), nil); c != nil {
		t.Errorf("touching block must not conflict, got %+v", c.Entry)
	}
}

func TestChecker_Exclude(t *testing.T) {
	env := newTestEnv(t, nil)
	ws := env.schedule(t, "North")
	doctor := env.dir.addDoctor("A")
	id := env.add(t, ws.ID, doctor, Monday, "09:00", "12:00")

	c, err := env.mgr.Checker().FindConflict(context.Background(), doctor, iv(Monday, "10:00", "13:00"), &id)
	if err != nil || c != nil {
		t.Errorf("entry must not conflict with itself, got %v, %v", c, err)
	}
}

func TestChecker_TieBreak(t *testing.T) {
	env := newTestEnv(t, []MemoryOption{WithoutExclusionConstraint()})
	north := env.schedule(t, "North")
	south := env.schedule(t, "South")
	doctor := env.dir.addDoctor("A")

	low := uuid.MustParse("00000000-0000-4000-8000-000000000001")
	high := uuid.MustParse("ffffffff-0000-4000-8000-000000000001")
	later := uuid.MustParse("00000000-0000-4000-8000-000000000000")

	seedEntry(t, env.store, high, north.ID, doctor, iv(Monday, "09:00", "11:00"))
	seedEntry(t, env.store, low, south.ID, doctor, iv(Monday, "09:00", "10:00"))
	seedEntry(t, env.store, later, north.ID, doctor, iv(Monday, "10:00", "12:00"))

	c, err := env.mgr.Checker().FindConflict(context.Background(), doctor, iv(Monday, "08:00", "18:00"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil || c.Entry.ID != low {
		t.Fatalf("expected earliest start with lowest id, got %+v", c)
	}
	if c.BranchName != "South" {
		t.Errorf("expected South, got %s", c.BranchName)
	}
}

func TestChecker_MissingDirectoryRowsFallBackToIDs(t *testing.T) {
	env := newTestEnv(t, []MemoryOption{WithoutExclusionConstraint()})
	ws := env.schedule(t, "North")
	doctor := uuid.New()
	seedEntry(t, env.store, uuid.New(), ws.ID, doctor, iv(Monday, "09:00", "12:00"))
	delete(env.dir.branches, ws.BranchID)

	c, err := env.mgr.Checker().FindConflict(context.Background(), doctor, iv(Monday, "10:00", "11:00"), nil)
	if err != nil || c == nil {
		t.Fatalf("expected conflict, got %v, %v", c, err)
	}
	if c.DoctorName != doctor.String() || c.BranchName != ws.BranchID.String() {
		t.Errorf("expected id fallbacks, got %q / %q", c.DoctorName, c.BranchName)
	}
}

func TestChecker_DirectoryFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	ws := env.schedule(t, "North")
	doctor := env.dir.addDoctor("A")
	env.add(t, ws.ID, doctor, Monday, "09:00", "12:00")
	env.dir.err = errors.New("directory unavailable")

	if _, err := env.mgr.Checker().FindConflict(context.Background(), doctor, iv(Monday, "10:00", "11:00"), nil); err == nil {
		t.Error("expected directory failure to surface")
	}
}
