package attendance

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process implementation of ScheduleRepository,
// EntryRepository and TxRunner with the same guarantees as the PostgreSQL
// store: InTx runs callbacks one at a time and on error undoes the writes made
// through its own context, and entry writes enforce the per-doctor exclusion
// rule. Writes outside a transaction are never touched by another caller's
// rollback. Either guarantee can be switched off to reproduce the unprotected
// check-then-write sequence.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	schedules map[uuid.UUID]WeeklySchedule
	byBranch  map[uuid.UUID]uuid.UUID
	entries   map[uuid.UUID]Entry

	serialize bool
	exclusion bool
}

type MemoryOption func(*MemoryStore)

// WithoutSerialization makes InTx run callbacks concurrently and without
// rollback.
func WithoutSerialization() MemoryOption {
	return func(s *MemoryStore) { s.serialize = false }
}

// WithoutExclusionConstraint lets overlapping entries for the same doctor be
// stored.
func WithoutExclusionConstraint() MemoryOption {
	return func(s *MemoryStore) { s.exclusion = false }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		schedules: make(map[uuid.UUID]WeeklySchedule),
		byBranch:  make(map[uuid.UUID]uuid.UUID),
		entries:   make(map[uuid.UUID]Entry),
		serialize: true,
		exclusion: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedules returns the ScheduleRepository view of the store.
func (s *MemoryStore) Schedules() ScheduleRepository { return memorySchedules{s} }

// Entries returns the EntryRepository view of the store.
func (s *MemoryStore) Entries() EntryRepository { return memoryEntries{s} }

type memTxKey struct{}

// memTx is the undo log of one transaction, newest last.
type memTx struct {
	undo []func()
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.serialize || ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		s.rollback(tx)
		return err
	}
	return nil
}

func (s *MemoryStore) rollback(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
}

// onRollback registers undo for the transaction carried by ctx, if any.
// Caller holds mu.
func onRollback(ctx context.Context, undo func()) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, undo)
	}
}

// entryOut copies e and fills in the owning branch. Caller holds mu.
func (s *MemoryStore) entryOut(e Entry) *Entry {
	out := e
	if e.Note != nil {
		note := *e.Note
		out.Note = &note
	}
	out.BranchID = s.schedules[e.ScheduleID].BranchID
	return &out
}

// overlapsExisting reports whether e collides with another stored entry of
// the same doctor. Caller holds mu.
func (s *MemoryStore) overlapsExisting(e Entry) bool {
	for id, other := range s.entries {
		if id == e.ID || other.DoctorID != e.DoctorID {
			continue
		}
		if Overlaps(e.Interval(), other.Interval()) {
			return true
		}
	}
	return false
}

func (s *MemoryStore) collectEntries(match func(Entry) bool, less func(a, b *Entry) bool) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Entry
	for _, e := range s.entries {
		if match(e) {
			out = append(out, s.entryOut(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func byWeekdayStartID(a, b *Entry) bool {
	if a.Weekday != b.Weekday {
		return a.Weekday < b.Weekday
	}
	return byStartID(a, b)
}

func byStartID(a, b *Entry) bool {
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

// -- schedules --

type memorySchedules struct{ s *MemoryStore }

func (r memorySchedules) GetByID(_ context.Context, id uuid.UUID) (*WeeklySchedule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ws, ok := r.s.schedules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &ws, nil
}

func (r memorySchedules) GetByBranch(_ context.Context, branchID uuid.UUID) (*WeeklySchedule, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.byBranch[branchID]
	if !ok {
		return nil, ErrNotFound
	}
	ws := r.s.schedules[id]
	return &ws, nil
}

func (r memorySchedules) Create(ctx context.Context, ws *WeeklySchedule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.byBranch[ws.BranchID]; exists {
		return ErrDuplicate
	}
	if ws.ID == uuid.Nil {
		ws.ID = uuid.New()
	}
	id, branchID := ws.ID, ws.BranchID
	r.s.schedules[id] = *ws
	r.s.byBranch[branchID] = id
	onRollback(ctx, func() {
		delete(r.s.schedules, id)
		delete(r.s.byBranch, branchID)
	})
	return nil
}

func (r memorySchedules) Touch(ctx context.Context, id uuid.UUID, actor string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ws, ok := r.s.schedules[id]
	if !ok {
		return ErrNotFound
	}
	prev := ws
	onRollback(ctx, func() {
		if cur, ok := r.s.schedules[id]; ok {
			cur.UpdatedBy, cur.UpdatedAt = prev.UpdatedBy, prev.UpdatedAt
			r.s.schedules[id] = cur
		}
	})
	ws.UpdatedBy = actor
	ws.UpdatedAt = at
	r.s.schedules[id] = ws
	return nil
}

func (r memorySchedules) List(_ context.Context, limit, offset int) ([]*WeeklySchedule, int, error) {
	r.s.mu.RLock()
	all := make([]*WeeklySchedule, 0, len(r.s.schedules))
	for _, ws := range r.s.schedules {
		ws := ws
		all = append(all, &ws)
	}
	r.s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return bytes.Compare(all[i].ID[:], all[j].ID[:]) < 0
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// -- entries --

type memoryEntries struct{ s *MemoryStore }

func (r memoryEntries) Create(ctx context.Context, e *Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.schedules[e.ScheduleID]; !ok {
		return ErrNotFound
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if r.s.exclusion && r.s.overlapsExisting(*e) {
		return ErrOverlap
	}
	stored := *r.s.entryOut(*e)
	r.s.entries[e.ID] = stored
	e.BranchID = stored.BranchID
	id := e.ID
	onRollback(ctx, func() { delete(r.s.entries, id) })
	return nil
}

func (r memoryEntries) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.s.entryOut(e), nil
}

func (r memoryEntries) Update(ctx context.Context, e *Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.entries[e.ID]
	if !ok {
		return ErrNotFound
	}
	if r.s.exclusion && r.s.overlapsExisting(*e) {
		return ErrOverlap
	}
	updated := *r.s.entryOut(*e)
	updated.ScheduleID = current.ScheduleID
	updated.CreatedAt = current.CreatedAt
	r.s.entries[e.ID] = updated
	onRollback(ctx, func() { r.s.entries[current.ID] = current })
	return nil
}

func (r memoryEntries) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.entries[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.s.entries, id)
	onRollback(ctx, func() { r.s.entries[id] = current })
	return nil
}

func (r memoryEntries) ListBySchedule(_ context.Context, scheduleID uuid.UUID) ([]*Entry, error) {
	return r.s.collectEntries(func(e Entry) bool { return e.ScheduleID == scheduleID }, byWeekdayStartID), nil
}

func (r memoryEntries) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*Entry, error) {
	return r.s.collectEntries(func(e Entry) bool { return e.DoctorID == doctorID }, byWeekdayStartID), nil
}

func (r memoryEntries) ListByDoctorAndWeekday(_ context.Context, doctorID uuid.UUID, day Weekday) ([]*Entry, error) {
	return r.s.collectEntries(func(e Entry) bool {
		return e.DoctorID == doctorID && e.Weekday == day
	}, byStartID), nil
}
