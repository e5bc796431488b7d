package attendance

import (
	"fmt"
	"regexp"

	"github.com/goccy/go-json"
)

// TimeOfDay is a wall-clock time in minutes since midnight, without a
// timezone. Its text form is HH:mm.
type TimeOfDay int16

const (
	minutesPerDay = 24 * 60
	// LastMinute is 23:59, the latest representable time.
	LastMinute TimeOfDay = minutesPerDay - 1
)

var hhmmPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// IsHHMM reports whether s is a well-formed HH:mm string.
func IsHHMM(s string) bool {
	return hhmmPattern.MatchString(s)
}

// ParseTimeOfDay parses a strict two-digit HH:mm string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if !IsHHMM(s) {
		return 0, &ValidationError{Field: "time", Message: fmt.Sprintf("invalid time format %q, expected HH:mm", s)}
	}
	hours := int(s[0]-'0')*10 + int(s[1]-'0')
	minutes := int(s[3]-'0')*10 + int(s[4]-'0')
	return TimeOfDay(hours*60 + minutes), nil
}

// MustTime parses s and panics on malformed input. Intended for constants
// and tests.
func MustTime(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Valid() bool { return t >= 0 && t <= LastMinute }

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid time of day %d", int16(t))
	}
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &ValidationError{Field: "time", Message: "time must be a HH:mm string"}
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
