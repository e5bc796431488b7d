package attendance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/directory"
	"github.com/clinic/clinic/internal/platform/audit"
	"github.com/clinic/clinic/internal/platform/lock"
)

// Audit target types.
const (
	TargetSchedule = "weekly_schedule"
	TargetEntry    = "schedule_entry"
)

// Manager runs roster changes. Adds and updates take a per-doctor lock and
// run the conflict check and the write in one transaction, so a concurrent
// change for the same doctor is either serialized behind this one or rejected
// by the store's exclusion rule.
type Manager struct {
	schedules ScheduleRepository
	entries   EntryRepository
	tx        TxRunner
	checker   *Checker
	doctors   DoctorDirectory
	branches  BranchDirectory

	locker lock.Locker
	audit  audit.Sink
	logger zerolog.Logger
	now    func() time.Time
}

type ManagerOption func(*Manager)

func WithLocker(l lock.Locker) ManagerOption {
	return func(m *Manager) { m.locker = l }
}

func WithAuditSink(s audit.Sink) ManagerOption {
	return func(m *Manager) { m.audit = s }
}

func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides time.Now for revision stamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func NewManager(schedules ScheduleRepository, entries EntryRepository, tx TxRunner,
	doctors DoctorDirectory, branches BranchDirectory, opts ...ManagerOption) *Manager {
	m := &Manager{
		schedules: schedules,
		entries:   entries,
		tx:        tx,
		checker:   NewChecker(entries, doctors, branches),
		doctors:   doctors,
		branches:  branches,
		locker:    lock.Noop{},
		audit:     audit.Nop{},
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Checker exposes the conflict checker used by the manager.
func (m *Manager) Checker() *Checker { return m.checker }

func doctorLockKey(id uuid.UUID) string { return "attendance:doctor:" + id.String() }

func (m *Manager) stamp() time.Time { return m.now().UTC().Truncate(time.Microsecond) }

// -- Weekly schedules --

// GetOrCreateSchedule returns the branch's schedule, creating an empty one
// stamped with actor on first access. Concurrent first calls for a branch
// all return the same schedule.
func (m *Manager) GetOrCreateSchedule(ctx context.Context, branchID uuid.UUID, actor string) (*WeeklySchedule, error) {
	ws, err := m.schedules.GetByBranch(ctx, branchID)
	if err == nil {
		return ws, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	if _, err := m.branches.GetBranch(ctx, branchID); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, &NotFoundError{Resource: "branch", ID: branchID}
		}
		return nil, fmt.Errorf("resolve branch: %w", err)
	}

	now := m.stamp()
	ws = &WeeklySchedule{
		ID:        uuid.New(),
		BranchID:  branchID,
		UpdatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.schedules.Create(ctx, ws); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Another request created it first.
			return m.schedules.GetByBranch(ctx, branchID)
		}
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	m.record(ctx, actor, audit.ActionCreate, TargetSchedule, ws.ID, map[string]string{"branch_id": branchID.String()})
	return ws, nil
}

// GetScheduleView returns the branch's schedule (creating it if needed) with
// entries ordered by weekday, then start time.
func (m *Manager) GetScheduleView(ctx context.Context, branchID uuid.UUID, actor string) (*ScheduleView, error) {
	ws, err := m.GetOrCreateSchedule(ctx, branchID, actor)
	if err != nil {
		return nil, err
	}
	entries, err := m.entries.ListBySchedule(ctx, ws.ID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool { return byWeekdayStartID(entries[i], entries[j]) })

	r := newResolver(m.doctors, m.branches)
	branchName, err := r.branch(ctx, ws.BranchID)
	if err != nil {
		return nil, err
	}
	views, err := r.views(ctx, entries)
	if err != nil {
		return nil, err
	}
	return &ScheduleView{WeeklySchedule: *ws, BranchName: branchName, Entries: views}, nil
}

func (m *Manager) ListSchedules(ctx context.Context, limit, offset int) ([]*WeeklySchedule, int, error) {
	return m.schedules.List(ctx, limit, offset)
}

// -- Entries --

// AddEntry validates the block, rejects it if the doctor already works an
// overlapping block at any branch, and otherwise stores it and refreshes the
// schedule's revision stamp.
func (m *Manager) AddEntry(ctx context.Context, scheduleID uuid.UUID, in NewEntry, actor string) (uuid.UUID, error) {
	candidate := in.Interval()
	if err := candidate.Validate(); err != nil {
		return uuid.Nil, err
	}
	if in.DoctorID == uuid.Nil {
		return uuid.Nil, &ValidationError{Field: "doctor_id", Message: "doctor is required"}
	}

	release, err := m.locker.Acquire(ctx, doctorLockKey(in.DoctorID))
	if err != nil {
		return uuid.Nil, fmt.Errorf("lock doctor roster: %w", err)
	}
	defer release()

	var entry *Entry
	err = m.tx.InTx(ctx, func(ctx context.Context) error {
		ws, err := m.schedules.GetByID(ctx, scheduleID)
		if err != nil {
			return notFound("weekly schedule", scheduleID, err)
		}
		if err := m.requireDoctor(ctx, in.DoctorID); err != nil {
			return err
		}

		conflict, err := m.checker.FindConflict(ctx, in.DoctorID, candidate, nil)
		if err != nil {
			return err
		}
		if conflict != nil {
			return conflict.Err()
		}

		now := m.stamp()
		entry = &Entry{
			ID:         uuid.New(),
			ScheduleID: ws.ID,
			BranchID:   ws.BranchID,
			DoctorID:   in.DoctorID,
			Weekday:    in.Weekday,
			Start:      in.Start,
			End:        in.End,
			Note:       normalizeNote(in.Note),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := m.entries.Create(ctx, entry); err != nil {
			return err
		}
		return m.schedules.Touch(ctx, ws.ID, actor, now)
	})
	if err != nil {
		return uuid.Nil, m.explainOverlap(ctx, err, in.DoctorID, candidate, nil)
	}

	m.record(ctx, actor, audit.ActionCreate, TargetEntry, entry.ID, entryDetail(entry))
	return entry.ID, nil
}

// UpdateEntry lays patch over the stored entry and validates the merged
// result as a whole before writing it. A patch that names no field is a
// ValidationError.
func (m *Manager) UpdateEntry(ctx context.Context, entryID uuid.UUID, patch EntryPatch, actor string) (*Entry, error) {
	if patch.IsEmpty() {
		return nil, &ValidationError{Message: "at least one field must be provided"}
	}
	current, err := m.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, notFound("schedule entry", entryID, err)
	}
	merged := current.Apply(patch)
	candidate := merged.Interval()
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	release, err := m.locker.Acquire(ctx, doctorLockKey(merged.DoctorID))
	if err != nil {
		return nil, fmt.Errorf("lock doctor roster: %w", err)
	}
	defer release()

	var updated Entry
	err = m.tx.InTx(ctx, func(ctx context.Context) error {
		// Re-read inside the transaction: the entry may have changed or
		// disappeared since the first read.
		current, err := m.entries.GetByID(ctx, entryID)
		if err != nil {
			return notFound("schedule entry", entryID, err)
		}
		updated = current.Apply(patch)
		candidate = updated.Interval()
		if err := candidate.Validate(); err != nil {
			return err
		}
		if updated.DoctorID != current.DoctorID {
			if err := m.requireDoctor(ctx, updated.DoctorID); err != nil {
				return err
			}
		}

		conflict, err := m.checker.FindConflict(ctx, updated.DoctorID, candidate, &entryID)
		if err != nil {
			return err
		}
		if conflict != nil {
			return conflict.Err()
		}

		now := m.stamp()
		updated.UpdatedAt = now
		if err := m.entries.Update(ctx, &updated); err != nil {
			return notFound("schedule entry", entryID, err)
		}
		return m.schedules.Touch(ctx, updated.ScheduleID, actor, now)
	})
	if err != nil {
		return nil, m.explainOverlap(ctx, err, merged.DoctorID, candidate, &entryID)
	}

	m.record(ctx, actor, audit.ActionUpdate, TargetEntry, entryID, entryDetail(&updated))
	return &updated, nil
}

// DeleteEntry removes the entry and refreshes its schedule's revision stamp.
func (m *Manager) DeleteEntry(ctx context.Context, entryID uuid.UUID, actor string) error {
	var removed *Entry
	err := m.tx.InTx(ctx, func(ctx context.Context) error {
		e, err := m.entries.GetByID(ctx, entryID)
		if err != nil {
			return notFound("schedule entry", entryID, err)
		}
		if err := m.entries.Delete(ctx, entryID); err != nil {
			return notFound("schedule entry", entryID, err)
		}
		removed = e
		return m.schedules.Touch(ctx, e.ScheduleID, actor, m.stamp())
	})
	if err != nil {
		return err
	}

	m.record(ctx, actor, audit.ActionDelete, TargetEntry, entryID, entryDetail(removed))
	return nil
}

// GetEntry returns a single entry with directory names resolved.
func (m *Manager) GetEntry(ctx context.Context, entryID uuid.UUID) (*EntryView, error) {
	e, err := m.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, notFound("schedule entry", entryID, err)
	}
	views, err := newResolver(m.doctors, m.branches).views(ctx, []*Entry{e})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListDoctorEntries returns the doctor's entries at every branch, ordered by
// weekday and start time.
func (m *Manager) ListDoctorEntries(ctx context.Context, doctorID uuid.UUID) ([]EntryView, error) {
	if err := m.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	entries, err := m.entries.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool { return byWeekdayStartID(entries[i], entries[j]) })
	return newResolver(m.doctors, m.branches).views(ctx, entries)
}

func (m *Manager) requireDoctor(ctx context.Context, id uuid.UUID) error {
	if _, err := m.doctors.GetDoctor(ctx, id); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return &NotFoundError{Resource: "doctor", ID: id}
		}
		return fmt.Errorf("resolve doctor: %w", err)
	}
	return nil
}

// explainOverlap turns a storage-level overlap rejection into the same
// ConflictError the pre-write check produces. The failed transaction is gone,
// so the colliding entry is looked up again.
func (m *Manager) explainOverlap(ctx context.Context, err error, doctorID uuid.UUID, candidate Interval, exclude *uuid.UUID) error {
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) || !errors.Is(err, ErrOverlap) {
		return err
	}

	conflict, lookupErr := m.checker.FindConflict(ctx, doctorID, candidate, exclude)
	if lookupErr == nil && conflict != nil {
		return conflict.Err()
	}
	m.logger.Warn().Err(lookupErr).
		Str("doctor_id", doctorID.String()).
		Str("interval", candidate.String()).
		Msg("overlap rejected by store but colliding entry not found")

	name := doctorID.String()
	if d, derr := m.doctors.GetDoctor(ctx, doctorID); derr == nil {
		name = d.Name
	}
	return &ConflictError{DoctorID: doctorID, DoctorName: name, BranchName: "unknown", Interval: candidate}
}

func (m *Manager) record(ctx context.Context, actor, action, targetType string, targetID uuid.UUID, detail map[string]string) {
	e := audit.NewEvent(actor, action, targetType, targetID)
	e.RequestID = audit.RequestIDFromContext(ctx)
	e.Detail = detail
	if err := m.audit.Record(ctx, e); err != nil {
		m.logger.Warn().Err(err).
			Str("action", action).
			Str("target_id", targetID.String()).
			Msg("audit record failed")
	}
}

func entryDetail(e *Entry) map[string]string {
	return map[string]string{
		"schedule_id": e.ScheduleID.String(),
		"doctor_id":   e.DoctorID.String(),
		"interval":    e.Interval().String(),
	}
}

func normalizeNote(note *string) *string {
	if note == nil || *note == "" {
		return nil
	}
	n := *note
	return &n
}

// resolver caches directory lookups for the duration of one call.
type resolver struct {
	doctors  DoctorDirectory
	branches BranchDirectory
	docCache map[uuid.UUID]*directory.Doctor
	brCache  map[uuid.UUID]string
}

func newResolver(doctors DoctorDirectory, branches BranchDirectory) *resolver {
	return &resolver{
		doctors:  doctors,
		branches: branches,
		docCache: make(map[uuid.UUID]*directory.Doctor),
		brCache:  make(map[uuid.UUID]string),
	}
}

func (r *resolver) doctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error) {
	if d, ok := r.docCache[id]; ok {
		return d, nil
	}
	d, err := r.doctors.GetDoctor(ctx, id)
	if errors.Is(err, directory.ErrNotFound) {
		d = &directory.Doctor{ID: id, Name: id.String()}
	} else if err != nil {
		return nil, fmt.Errorf("resolve doctor: %w", err)
	}
	r.docCache[id] = d
	return d, nil
}

func (r *resolver) branch(ctx context.Context, id uuid.UUID) (string, error) {
	if name, ok := r.brCache[id]; ok {
		return name, nil
	}
	name := id.String()
	b, err := r.branches.GetBranch(ctx, id)
	if err == nil {
		name = b.Name
	} else if !errors.Is(err, directory.ErrNotFound) {
		return "", fmt.Errorf("resolve branch: %w", err)
	}
	r.brCache[id] = name
	return name, nil
}

func (r *resolver) views(ctx context.Context, entries []*Entry) ([]EntryView, error) {
	views := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		d, err := r.doctor(ctx, e.DoctorID)
		if err != nil {
			return nil, err
		}
		branchName, err := r.branch(ctx, e.BranchID)
		if err != nil {
			return nil, err
		}
		views = append(views, EntryView{
			ID:         e.ID,
			ScheduleID: e.ScheduleID,
			BranchID:   e.BranchID,
			BranchName: branchName,
			DoctorID:   e.DoctorID,
			DoctorName: d.Name,
			Specialty:  d.SpecialtyOrEmpty(),
			Weekday:    e.Weekday,
			Start:      e.Start,
			End:        e.End,
			Note:       e.Note,
			UpdatedAt:  e.UpdatedAt,
		})
	}
	return views, nil
}
