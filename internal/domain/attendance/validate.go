package attendance

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// createEntryRequest is the body of POST /schedules/:id/entries.
type createEntryRequest struct {
	DoctorID string  `json:"doctor_id" validate:"required,uuid"`
	Weekday  string  `json:"weekday" validate:"required,weekday"`
	Start    string  `json:"start" validate:"required,hhmm"`
	End      string  `json:"end" validate:"required,hhmm"`
	Note     *string `json:"note" validate:"omitempty,max=500"`
}

// updateEntryRequest is the body of PATCH /schedule-entries/:id. Absent
// fields keep their stored value.
type updateEntryRequest struct {
	DoctorID *string `json:"doctor_id" validate:"omitempty,uuid"`
	Weekday  *string `json:"weekday" validate:"omitempty,weekday"`
	Start    *string `json:"start" validate:"omitempty,hhmm"`
	End      *string `json:"end" validate:"omitempty,hhmm"`
	Note     *string `json:"note" validate:"omitempty,max=500"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for empty tags.
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return IsHHMM(fl.Field().String())
	})
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, err := ParseWeekday(fl.Field().String())
		return err == nil
	})
	return v
}

// validationError converts the first validator failure into a
// ValidationError with a readable message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Message: "is required"}
	case "uuid":
		return &ValidationError{Field: field, Message: "must be a UUID"}
	case "hhmm":
		return &ValidationError{Field: field, Message: fmt.Sprintf("invalid time format %q, expected HH:mm", fe.Value())}
	case "weekday":
		return &ValidationError{Field: field, Message: unknownWeekday(fmt.Sprint(fe.Value()))}
	case "max":
		return &ValidationError{Field: field, Message: "must be at most " + fe.Param() + " characters"}
	}
	return &ValidationError{Field: field, Message: "failed " + fe.Tag() + " check"}
}

func (r createEntryRequest) toNewEntry(v *validator.Validate) (NewEntry, error) {
	if err := v.Struct(r); err != nil {
		return NewEntry{}, validationError(err)
	}
	in := NewEntry{Note: trimNote(r.Note)}
	var err error
	if in.DoctorID, err = parseID("doctor_id", r.DoctorID); err != nil {
		return NewEntry{}, err
	}
	if in.Weekday, err = ParseWeekday(r.Weekday); err != nil {
		return NewEntry{}, err
	}
	if in.Start, err = parseTime("start", r.Start); err != nil {
		return NewEntry{}, err
	}
	if in.End, err = parseTime("end", r.End); err != nil {
		return NewEntry{}, err
	}
	return in, nil
}

// toPatch keeps every field the body names, including empty strings, so a
// present but blank weekday or time is rejected instead of ignored.
func (r updateEntryRequest) toPatch(v *validator.Validate) (EntryPatch, error) {
	if err := v.Struct(r); err != nil {
		return EntryPatch{}, validationError(err)
	}
	p := EntryPatch{Note: trimNote(r.Note)}
	if r.DoctorID != nil {
		id, err := parseID("doctor_id", *r.DoctorID)
		if err != nil {
			return EntryPatch{}, err
		}
		p.DoctorID = &id
	}
	if r.Weekday != nil {
		day, err := ParseWeekday(*r.Weekday)
		if err != nil {
			return EntryPatch{}, err
		}
		p.Weekday = &day
	}
	if r.Start != nil {
		t, err := parseTime("start", *r.Start)
		if err != nil {
			return EntryPatch{}, err
		}
		p.Start = &t
	}
	if r.End != nil {
		t, err := parseTime("end", *r.End)
		if err != nil {
			return EntryPatch{}, err
		}
		p.End = &t
	}
	return p, nil
}

func parseID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, &ValidationError{Field: field, Message: "must be a UUID"}
	}
	return id, nil
}

func parseTime(field, s string) (TimeOfDay, error) {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		return 0, &ValidationError{Field: field, Message: fmt.Sprintf("invalid time format %q, expected HH:mm", s)}
	}
	return t, nil
}

func trimNote(note *string) *string {
	if note == nil {
		return nil
	}
	n := strings.TrimSpace(*note)
	return &n
}
