package availability

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Weekdays is a 7-bit set of days, Monday being the lowest bit.
type Weekdays uint8

const (
	Monday Weekdays = 1 << iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday

	NoDays   Weekdays = 0
	Everyday Weekdays = Monday | Tuesday | Wednesday | Thursday | Friday | Saturday | Sunday
)

var weekdayOrder = []struct {
	flag Weekdays
	day  time.Weekday
}{
	{Monday, time.Monday},
	{Tuesday, time.Tuesday},
	{Wednesday, time.Wednesday},
	{Thursday, time.Thursday},
	{Friday, time.Friday},
	{Saturday, time.Saturday},
	{Sunday, time.Sunday},
}

// WeekdayFlag maps a time.Weekday to its bit.
func WeekdayFlag(d time.Weekday) Weekdays {
	for _, w := range weekdayOrder {
		if w.day == d {
			return w.flag
		}
	}
	return NoDays
}

// Has reports whether day d is set.
func (w Weekdays) Has(d time.Weekday) bool {
	flag := WeekdayFlag(d)
	return flag != NoDays && w&flag == flag
}

// Valid reports whether only the seven day bits are used.
func (w Weekdays) Valid() bool {
	return w&^Everyday == 0
}

// Days lists the set days starting with Monday.
func (w Weekdays) Days() []time.Weekday {
	var out []time.Weekday
	for _, d := range weekdayOrder {
		if w&d.flag != 0 {
			out = append(out, d.day)
		}
	}
	return out
}

func (w Weekdays) String() string {
	if w == NoDays {
		return "none"
	}
	if w == Everyday {
		return "everyday"
	}
	names := make([]string, 0, 7)
	for _, d := range w.Days() {
		names = append(names, strings.ToLower(d.String()))
	}
	return strings.Join(names, ",")
}

// ParseWeekdays builds a set from day names ("monday", "Mon", ...).
// An empty list yields Everyday.
func ParseWeekdays(names []string) (Weekdays, error) {
	if len(names) == 0 {
		return Everyday, nil
	}
	var set Weekdays
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "everyday" {
			set |= Everyday
			continue
		}
		found := false
		for _, d := range weekdayOrder {
			full := strings.ToLower(d.day.String())
			if name == full || (len(name) >= 3 && strings.HasPrefix(full, name)) {
				set |= d.flag
				found = true
				break
			}
		}
		if !found {
			return NoDays, fmt.Errorf("unknown weekday %q", raw)
		}
	}
	return set, nil
}

func (w Weekdays) MarshalJSON() ([]byte, error) {
	names := []string{}
	for _, d := range w.Days() {
		names = append(names, strings.ToLower(d.String()))
	}
	return json.Marshal(names)
}

// UnmarshalJSON accepts either a list of day names or the raw bitmask.
func (w *Weekdays) UnmarshalJSON(data []byte) error {
	var mask uint8
	if err := json.Unmarshal(data, &mask); err == nil {
		if !Weekdays(mask).Valid() {
			return fmt.Errorf("weekday mask %d out of range", mask)
		}
		*w = Weekdays(mask)
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("weekdays: %w", err)
	}
	set, err := ParseWeekdays(names)
	if err != nil {
		return err
	}
	*w = set
	return nil
}
