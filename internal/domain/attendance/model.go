package attendance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Interval is a half-open block [Start, End) on one weekday.
type Interval struct {
	Weekday Weekday
	Start   TimeOfDay
	End     TimeOfDay
}

// Validate rejects unknown weekdays, out-of-range times and empty or
// inverted blocks.
func (i Interval) Validate() error {
	if !i.Weekday.Valid() {
		return &ValidationError{Field: "weekday", Message: "unknown weekday"}
	}
	if !i.Start.Valid() {
		return &ValidationError{Field: "start", Message: "time out of range"}
	}
	if !i.End.Valid() {
		return &ValidationError{Field: "end", Message: "time out of range"}
	}
	if i.Start >= i.End {
		return &ValidationError{Field: "end", Message: fmt.Sprintf("start %s must be before end %s", i.Start, i.End)}
	}
	return nil
}

// Overlaps reports whether both blocks fall on the same weekday and share at
// least one minute. Blocks that only touch (one ends when the other starts)
// do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(i, o)
}

func Overlaps(a, b Interval) bool {
	return a.Weekday == b.Weekday && a.Start < b.End && a.End > b.Start
}

func (i Interval) String() string {
	return fmt.Sprintf("%s %s–%s", i.Weekday, i.Start, i.End)
}

// Entry is one doctor's recurring weekly block at one branch. BranchID is
// resolved through the owning schedule and is read-only.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	ScheduleID uuid.UUID `json:"schedule_id"`
	BranchID   uuid.UUID `json:"branch_id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	Weekday    Weekday   `json:"weekday"`
	Start      TimeOfDay `json:"start"`
	End        TimeOfDay `json:"end"`
	Note       *string   `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (e *Entry) Interval() Interval {
	return Interval{Weekday: e.Weekday, Start: e.Start, End: e.End}
}

// NewEntry is the input to Manager.AddEntry.
type NewEntry struct {
	DoctorID uuid.UUID
	Weekday  Weekday
	Start    TimeOfDay
	End      TimeOfDay
	Note     *string
}

func (n NewEntry) Interval() Interval {
	return Interval{Weekday: n.Weekday, Start: n.Start, End: n.End}
}

// EntryPatch carries a partial update. Nil fields keep their current value;
// a Note pointing at "" clears the note.
type EntryPatch struct {
	DoctorID *uuid.UUID
	Weekday  *Weekday
	Start    *TimeOfDay
	End      *TimeOfDay
	Note     *string
}

func (p EntryPatch) IsEmpty() bool {
	return p.DoctorID == nil && p.Weekday == nil && p.Start == nil && p.End == nil && p.Note == nil
}

// Apply returns the entry that results from laying p over e. It does not
// modify e and performs no validation.
func (e Entry) Apply(p EntryPatch) Entry {
	out := e
	if p.DoctorID != nil {
		out.DoctorID = *p.DoctorID
	}
	if p.Weekday != nil {
		out.Weekday = *p.Weekday
	}
	if p.Start != nil {
		out.Start = *p.Start
	}
	if p.End != nil {
		out.End = *p.End
	}
	if p.Note != nil {
		if *p.Note == "" {
			out.Note = nil
		} else {
			note := *p.Note
			out.Note = &note
		}
	} else if e.Note != nil {
		note := *e.Note
		out.Note = &note
	}
	return out
}

// WeeklySchedule is the per-branch roster container.
type WeeklySchedule struct {
	ID        uuid.UUID `json:"id"`
	BranchID  uuid.UUID `json:"branch_id"`
	UpdatedBy string    `json:"updated_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntryView is an entry enriched with directory names for display.
type EntryView struct {
	ID         uuid.UUID `json:"id"`
	ScheduleID uuid.UUID `json:"schedule_id"`
	BranchID   uuid.UUID `json:"branch_id"`
	BranchName string    `json:"branch_name,omitempty"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	DoctorName string    `json:"doctor_name"`
	Specialty  string    `json:"specialty,omitempty"`
	Weekday    Weekday   `json:"weekday"`
	Start      TimeOfDay `json:"start"`
	End        TimeOfDay `json:"end"`
	Note       *string   `json:"note,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ScheduleView is a weekly schedule with its entries ordered by weekday and
// start time.
type ScheduleView struct {
	WeeklySchedule
	BranchName string      `json:"branch_name"`
	Entries    []EntryView `json:"entries"`
}
