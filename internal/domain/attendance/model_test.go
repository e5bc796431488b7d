package attendance

import (
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

func iv(day Weekday, start, end string) Interval {
	return Interval{Weekday: day, Start: MustTime(start), End: MustTime(end)}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"identical", iv(Monday, "09:00", "12:00"), iv(Monday, "09:00", "12:00"), true},
		{"partial", iv(Monday, "09:00", "12:00"), iv(Monday, "11:00", "14:00"), true},
		{"contained", iv(Monday, "09:00", "17:00"), iv(Monday, "10:00", "11:00"), true},
		{"one minute shared", iv(Monday, "09:00", "12:00"), iv(Monday, "11:59", "13:00"), true},
		{"touching end", iv(Monday, "09:00", "12:00"), iv(Monday, "12:00", "14:00"), false},
		{"touching start", iv(Monday, "12:00", "14:00"), iv(Monday, "09:00", "12:00"), false},
		{"disjoint", iv(Monday, "09:00", "10:00"), iv(Monday, "15:00", "16:00"), false},
		{"different weekday", iv(Monday, "09:00", "12:00"), iv(Tuesday, "09:00", "12:00"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.a, tt.b); got != tt.want {
				t.Errorf("Overlaps(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("overlap must be symmetric for %s and %s", tt.a, tt.b)
			}
		})
	}
}

func TestInterval_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      Interval
		wantErr bool
	}{
		{"valid", iv(Saturday, "08:00", "16:00"), false},
		{"full day", Interval{Weekday: Friday, Start: 0, End: LastMinute}, false},
		{"start equals end", iv(Monday, "09:00", "09:00"), true},
		{"start after end", iv(Monday, "17:00", "09:00"), true},
		{"bad weekday", Interval{Weekday: 7, Start: 0, End: 60}, true},
		{"negative start", Interval{Weekday: Monday, Start: -1, End: 60}, true},
		{"end past midnight", Interval{Weekday: Monday, Start: 0, End: LastMinute + 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var verr *ValidationError
			if err != nil && !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %T", err)
			}
		})
	}
}

func TestEntry_Apply(t *testing.T) {
	note := "morning clinic"
	orig := Entry{
		ID:       uuid.New(),
		DoctorID: uuid.New(),
		Weekday:  Monday,
		Start:    MustTime("09:00"),
		End:      MustTime("12:00"),
		Note:     &note,
	}

	newEnd := MustTime("13:00")
	got := orig.Apply(EntryPatch{End: &newEnd})
	if got.End != newEnd || got.Start != orig.Start || got.Weekday != Monday {
		t.Errorf("unexpected merge result: %+v", got)
	}
	if orig.End != MustTime("12:00") {
		t.Error("Apply must not modify the receiver")
	}
	if got.Note == orig.Note || *got.Note != note {
		t.Error("expected note to be copied, not shared")
	}

	empty := ""
	cleared := orig.Apply(EntryPatch{Note: &empty})
	if cleared.Note != nil {
		t.Errorf("expected empty note to clear, got %q", *cleared.Note)
	}
	if orig.Note == nil {
		t.Error("clearing the note must not touch the receiver")
	}

	day := Friday
	doctor := uuid.New()
	moved := orig.Apply(EntryPatch{Weekday: &day, DoctorID: &doctor})
	if moved.Weekday != Friday || moved.DoctorID != doctor {
		t.Errorf("unexpected merge result: %+v", moved)
	}
}

func TestEntryPatch_IsEmpty(t *testing.T) {
	if !(EntryPatch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}
	note := ""
	if (EntryPatch{Note: &note}).IsEmpty() {
		t.Error("patch clearing the note is not empty")
	}
}

func TestParseWeekday(t *testing.T) {
	for _, day := range Weekdays() {
		got, err := ParseWeekday(day.Token())
		if err != nil || got != day {
			t.Errorf("ParseWeekday(%q) = %v, %v", day.Token(), got, err)
		}
	}
	if got, err := ParseWeekday("  SATURDAY "); err != nil || got != Saturday {
		t.Errorf("expected case-insensitive parse, got %v, %v", got, err)
	}
	_, err := ParseWeekday("someday")
	if err == nil {
		t.Fatal("expected error for unknown weekday")
	}
	if !strings.Contains(err.Error(), "saturday, sunday, monday, tuesday, wednesday, thursday, friday") {
		t.Errorf("expected the allowed tokens in %q", err.Error())
	}
	if Saturday >= Sunday || Thursday >= Friday {
		t.Error("week must start on Saturday")
	}
}

func TestParseTimeOfDay(t *testing.T) {
	valid := map[string]TimeOfDay{"00:00": 0, "09:30": 570, "23:59": LastMinute}
	for in, want := range valid {
		got, err := ParseTimeOfDay(in)
		if err != nil || got != want {
			t.Errorf("ParseTimeOfDay(%q) = %d, %v; want %d", in, got, err, want)
		}
		if got.String() != in {
			t.Errorf("round trip of %q gave %q", in, got.String())
		}
	}
	for _, in := range []string{"", "9:30", "24:00", "12:60", "12:5", "12-30", "12:30:00", " 12:30"} {
		if _, err := ParseTimeOfDay(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestEntry_JSON(t *testing.T) {
	e := Entry{ID: uuid.New(), Weekday: Wednesday, Start: MustTime("08:15"), End: MustTime("10:45")}
	body, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["weekday"] != "wednesday" || decoded["start"] != "08:15" || decoded["end"] != "10:45" {
		t.Errorf("unexpected wire form: %s", body)
	}
	if _, ok := decoded["note"]; ok {
		t.Error("nil note should be omitted")
	}

	var back Entry
	if err := json.Unmarshal(body, &back); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.Interval() != e.Interval() {
		t.Errorf("expected %s, got %s", e.Interval(), back.Interval())
	}

	var day Weekday
	if err := json.Unmarshal([]byte(`"caturday"`), &day); err == nil {
		t.Error("expected error for unknown weekday")
	}
}

func TestConflictError_Message(t *testing.T) {
	err := &ConflictError{
		DoctorName: "Dr. Rahimi",
		BranchName: "Downtown",
		Interval:   iv(Monday, "09:00", "12:00"),
	}
	want := "Dr. Rahimi already has a shift at branch 'Downtown' on Monday 09:00–12:00"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
	if !errors.Is(err, ErrOverlap) {
		t.Error("conflict should match ErrOverlap")
	}
}
