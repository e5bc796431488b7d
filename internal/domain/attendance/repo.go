package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/directory"
)

// ScheduleRepository persists weekly schedules. Lookups return ErrNotFound
// for missing rows.
type ScheduleRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*WeeklySchedule, error)
	GetByBranch(ctx context.Context, branchID uuid.UUID) (*WeeklySchedule, error)
	// Create returns ErrDuplicate when the branch already has a schedule.
	Create(ctx context.Context, s *WeeklySchedule) error
	// Touch refreshes the revision metadata.
	Touch(ctx context.Context, id uuid.UUID, actor string, at time.Time) error
	List(ctx context.Context, limit, offset int) ([]*WeeklySchedule, int, error)
}

// EntryRepository persists schedule entries. Returned entries carry the
// BranchID of their owning schedule.
type EntryRepository interface {
	// Create and Update return ErrOverlap when the store's own exclusion
	// rule rejects the row.
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	Update(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListBySchedule orders by weekday, start, id.
	ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*Entry, error)
	// ListByDoctor spans every branch, ordered by weekday, start, id.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Entry, error)
	// ListByDoctorAndWeekday spans every branch, ordered by start, id.
	ListByDoctorAndWeekday(ctx context.Context, doctorID uuid.UUID, day Weekday) ([]*Entry, error)
}

// TxRunner executes fn atomically. Repositories used inside fn must observe
// the transaction carried by the ctx passed to fn.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// DoctorDirectory resolves doctors by id.
type DoctorDirectory interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
}

// BranchDirectory resolves branches by id.
type BranchDirectory interface {
	GetBranch(ctx context.Context, id uuid.UUID) (*directory.Branch, error)
}
