package attendance

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/directory"
)

// Conflict is an existing entry that overlaps a candidate block.
type Conflict struct {
	Entry      *Entry
	DoctorName string
	BranchName string
}

// Err converts c into the error reported to callers.
func (c *Conflict) Err() *ConflictError {
	return &ConflictError{
		DoctorID:   c.Entry.DoctorID,
		DoctorName: c.DoctorName,
		EntryID:    c.Entry.ID,
		BranchID:   c.Entry.BranchID,
		BranchName: c.BranchName,
		Interval:   c.Entry.Interval(),
	}
}

// Checker finds overlapping entries for a doctor across every branch.
type Checker struct {
	entries  EntryRepository
	doctors  DoctorDirectory
	branches BranchDirectory
}

func NewChecker(entries EntryRepository, doctors DoctorDirectory, branches BranchDirectory) *Checker {
	return &Checker{entries: entries, doctors: doctors, branches: branches}
}

// FindConflict returns the entry of doctorID that overlaps candidate, or nil.
// exclude names the entry being edited so it never conflicts with itself.
// When several entries overlap, the earliest-starting one is reported, with
// ties broken by the lowest id.
func (c *Checker) FindConflict(ctx context.Context, doctorID uuid.UUID, candidate Interval, exclude *uuid.UUID) (*Conflict, error) {
	existing, err := c.entries.ListByDoctorAndWeekday(ctx, doctorID, candidate.Weekday)
	if err != nil {
		return nil, fmt.Errorf("scan entries: %w", err)
	}

	var hit *Entry
	for _, e := range existing {
		if exclude != nil && e.ID == *exclude {
			continue
		}
		if !Overlaps(candidate, e.Interval()) {
			continue
		}
		if hit == nil || e.Start < hit.Start || (e.Start == hit.Start && bytes.Compare(e.ID[:], hit.ID[:]) < 0) {
			hit = e
		}
	}
	if hit == nil {
		return nil, nil
	}

	conflict := &Conflict{Entry: hit}
	if conflict.DoctorName, err = c.doctorName(ctx, doctorID); err != nil {
		return nil, err
	}
	if conflict.BranchName, err = c.branchName(ctx, hit.BranchID); err != nil {
		return nil, err
	}
	return conflict, nil
}

// doctorName falls back to the id when the doctor has vanished from the
// directory; the conflict itself is still real.
func (c *Checker) doctorName(ctx context.Context, id uuid.UUID) (string, error) {
	d, err := c.doctors.GetDoctor(ctx, id)
	if errors.Is(err, directory.ErrNotFound) {
		return id.String(), nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve doctor: %w", err)
	}
	return d.Name, nil
}

func (c *Checker) branchName(ctx context.Context, id uuid.UUID) (string, error) {
	b, err := c.branches.GetBranch(ctx, id)
	if errors.Is(err, directory.ErrNotFound) {
		return id.String(), nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve branch: %w", err)
	}
	return b.Name, nil
}
