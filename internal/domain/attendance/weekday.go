// Package attendance maintains each branch's weekly doctor roster and
// guarantees that no doctor is booked into two overlapping blocks on the same
// weekday, at any branch.
package attendance

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Weekday is a day of the clinic week. The week starts on Saturday, so the
// ordinal order is also the display order.
type Weekday int8

const (
	Saturday Weekday = iota
	Sunday
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
)

var weekdayTokens = [...]string{"saturday", "sunday", "monday", "tuesday", "wednesday", "thursday", "friday"}

var weekdayNames = [...]string{"Saturday", "Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// Weekdays lists every day in week order.
func Weekdays() []Weekday {
	return []Weekday{Saturday, Sunday, Monday, Tuesday, Wednesday, Thursday, Friday}
}

func (w Weekday) Valid() bool { return w >= Saturday && w <= Friday }

// Token is the lowercase wire form, e.g. "saturday".
func (w Weekday) Token() string {
	if !w.Valid() {
		return fmt.Sprintf("weekday(%d)", int8(w))
	}
	return weekdayTokens[w]
}

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int8(w))
	}
	return weekdayNames[w]
}

// ParseWeekday accepts a weekday token in any letter case.
func ParseWeekday(s string) (Weekday, error) {
	token := strings.ToLower(strings.TrimSpace(s))
	for _, w := range Weekdays() {
		if w.Token() == token {
			return w, nil
		}
	}
	return 0, &ValidationError{Field: "weekday", Message: unknownWeekday(s)}
}

func unknownWeekday(s string) string {
	tokens := make([]string, 0, len(weekdayTokens))
	for _, w := range Weekdays() {
		tokens = append(tokens, w.Token())
	}
	return fmt.Sprintf("unknown weekday %q, expected one of %s", s, strings.Join(tokens, ", "))
}

func (w Weekday) MarshalJSON() ([]byte, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("invalid weekday %d", int8(w))
	}
	return json.Marshal(w.Token())
}

func (w *Weekday) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &ValidationError{Field: "weekday", Message: "weekday must be a string"}
	}
	parsed, err := ParseWeekday(s)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
