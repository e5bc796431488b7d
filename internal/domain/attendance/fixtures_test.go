package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/directory"
)

// fakeDirectory serves both doctor and branch lookups.
type fakeDirectory struct {
	mu       sync.Mutex
	doctors  map[uuid.UUID]*directory.Doctor
	branches map[uuid.UUID]*directory.Branch
	err      error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		doctors:  make(map[uuid.UUID]*directory.Doctor),
		branches: make(map[uuid.UUID]*directory.Branch),
	}
}

func (d *fakeDirectory) addDoctor(name string) uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := uuid.New()
	d.doctors[id] = &directory.Doctor{ID: id, Name: name, Active: true}
	return id
}

func (d *fakeDirectory) addBranch(name string) uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := uuid.New()
	d.branches[id] = &directory.Branch{ID: id, Name: name, Active: true}
	return id
}

func (d *fakeDirectory) GetDoctor(_ context.Context, id uuid.UUID) (*directory.Doctor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	doc, ok := d.doctors[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return doc, nil
}

func (d *fakeDirectory) GetBranch(_ context.Context, id uuid.UUID) (*directory.Branch, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	b, ok := d.branches[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return b, nil
}

type testEnv struct {
	store *MemoryStore
	dir   *fakeDirectory
	mgr   *Manager
}

func newTestEnv(t *testing.T, storeOpts []MemoryOption, opts ...ManagerOption) *testEnv {
	t.Helper()
	store := NewMemoryStore(storeOpts...)
	dir := newFakeDirectory()
	return &testEnv{
		store: store,
		dir:   dir,
		mgr:   NewManager(store.Schedules(), store.Entries(), store, dir, dir, opts...),
	}
}

// schedule creates a branch and its weekly schedule.
func (env *testEnv) schedule(t *testing.T, branchName string) *WeeklySchedule {
	t.Helper()
	branchID := env.dir.addBranch(branchName)
	ws, err := env.mgr.GetOrCreateSchedule(context.Background(), branchID, "tester")
	if err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	return ws
}

func (env *testEnv) add(t *testing.T, scheduleID, doctorID uuid.UUID, day Weekday, start, end string) uuid.UUID {
	t.Helper()
	id, err := env.mgr.AddEntry(context.Background(), scheduleID, NewEntry{
		DoctorID: doctorID,
		Weekday:  day,
		Start:    MustTime(start),
		End:      MustTime(end),
	}, "tester")
	if err != nil {
		t.Fatalf("add entry: %v", err)
	}
	return id
}

func (env *testEnv) countEntries(t *testing.T, doctorID uuid.UUID) int {
	t.Helper()
	entries, err := env.store.Entries().ListByDoctor(context.Background(), doctorID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	return len(entries)
}

// barrierEntries holds the first n conflict scans until all n have read,
// which forces concurrent writers to check before any of them writes. Later
// scans pass straight through. If fewer than n callers arrive within wait,
// the waiting ones are released anyway.
type barrierEntries struct {
	EntryRepository
	n    int
	wait time.Duration

	mu      sync.Mutex
	arrived int
	ready   chan struct{}
}

func newBarrierEntries(inner EntryRepository, n int, wait time.Duration) *barrierEntries {
	return &barrierEntries{EntryRepository: inner, n: n, wait: wait, ready: make(chan struct{})}
}

func (b *barrierEntries) ListByDoctorAndWeekday(ctx context.Context, doctorID uuid.UUID, day Weekday) ([]*Entry, error) {
	entries, err := b.EntryRepository.ListByDoctorAndWeekday(ctx, doctorID, day)

	b.mu.Lock()
	b.arrived++
	arrived := b.arrived
	if arrived == b.n {
		close(b.ready)
	}
	b.mu.Unlock()

	if arrived < b.n {
		select {
		case <-b.ready:
		case <-time.After(b.wait):
		}
	}
	return entries, err
}
