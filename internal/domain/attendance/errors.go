package attendance

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrOverlap is returned by entry repositories when the storage-level
	// exclusion rule rejects a write.
	ErrOverlap = errors.New("schedule entry overlaps an existing entry")
	// ErrDuplicate is returned when a branch already has a weekly schedule.
	ErrDuplicate = errors.New("weekly schedule already exists for branch")
)

// ValidationError reports malformed input. Nothing is written when it is
// returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NotFoundError names the missing resource. It unwraps to ErrNotFound.
type NotFoundError struct {
	Resource string
	ID       uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports that the doctor already works an overlapping block,
// possibly at another branch. Its message is meant for end users.
type ConflictError struct {
	DoctorID   uuid.UUID
	DoctorName string
	EntryID    uuid.UUID
	BranchID   uuid.UUID
	BranchName string
	Interval   Interval
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already has a shift at branch '%s' on %s %s–%s",
		e.DoctorName, e.BranchName, e.Interval.Weekday, e.Interval.Start, e.Interval.End)
}

// Is lets callers match any conflict with errors.Is(err, ErrOverlap).
func (e *ConflictError) Is(target error) bool { return target == ErrOverlap }

func notFound(resource string, id uuid.UUID, err error) error {
	if errors.Is(err, ErrNotFound) {
		return &NotFoundError{Resource: resource, ID: id}
	}
	return err
}
