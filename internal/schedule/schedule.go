package schedule

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidDate = errors.New("invalid date format")
	ErrInvalidSlot = errors.New("invalid slot format")
)

// Interval is a time window in minutes from midnight.
type Interval struct {
	Start int
	End   int
}

func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

func ParseDate(dateStr string, loc *time.Location) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return date, nil
}

func ParseClockToMinutes(timeStr string) (int, error) {
	tm, err := time.Parse("15:04", timeStr)
	if err != nil {
		return 0, ErrInvalidSlot
	}
	return tm.Hour()*60 + tm.Minute(), nil
}

// ParseSlot converts a "10:00-10:30" slot string into an Interval.
func ParseSlot(slot string) (Interval, error) {
	parts := strings.SplitN(slot, "-", 2)
	if len(parts) != 2 {
		return Interval{}, ErrInvalidSlot
	}
	start, err := ParseClockToMinutes(strings.TrimSpace(parts[0]))
	if err != nil {
		return Interval{}, err
	}
	end, err := ParseClockToMinutes(strings.TrimSpace(parts[1]))
	if err != nil {
		return Interval{}, err
	}
	if end <= start {
		return Interval{}, ErrInvalidSlot
	}
	return Interval{Start: start, End: end}, nil
}

var weekdayNames = map[string]bool{
	"sunday": true, "monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true,
}

// IsWeekdayName reports whether s is a lowercase weekday availability key.
func IsWeekdayName(s string) bool {
	return weekdayNames[s]
}

// Weekday returns the lowercase weekday name used as the availability key.
func Weekday(dateStr string, loc *time.Location) (string, error) {
	date, err := ParseDate(dateStr, loc)
	if err != nil {
		return "", err
	}
	return strings.ToLower(date.Weekday().String()), nil
}

// SlotAllowed reports whether the slot appears in the doctor's availability
// table for that date's weekday.
func SlotAllowed(availability map[string][]string, dateStr, slot string, loc *time.Location) (bool, error) {
	if _, err := ParseSlot(slot); err != nil {
		return false, err
	}
	day, err := Weekday(dateStr, loc)
	if err != nil {
		return false, err
	}
	for _, s := range availability[day] {
		if s == slot {
			return true, nil
		}
	}
	return false, nil
}

// SlotStart resolves the absolute instant at which the slot begins, in the
// doctor's timezone.
func SlotStart(dateStr, slot string, loc *time.Location) (time.Time, error) {
	date, err := ParseDate(dateStr, loc)
	if err != nil {
		return time.Time{}, err
	}
	window, err := ParseSlot(slot)
	if err != nil {
		return time.Time{}, err
	}
	return date.Add(time.Duration(window.Start) * time.Minute), nil
}

func IsDatePast(dateStr string, loc *time.Location, now time.Time) (bool, error) {
	date, err := ParseDate(dateStr, loc)
	if err != nil {
		return false, err
	}
	startToday := time.Date(now.In(loc).Year(), now.In(loc).Month(), now.In(loc).Day(), 0, 0, 0, 0, loc)
	return date.Before(startToday), nil
}

func IsSlotPast(dateStr, slot string, loc *time.Location, now time.Time) (bool, error) {
	start, err := SlotStart(dateStr, slot, loc)
	if err != nil {
		return false, err
	}
	return !start.After(now.In(loc)), nil
}

// FilterOverlapping drops slots that collide with any reserved interval.
func FilterOverlapping(slots []string, reserved []Interval) ([]string, error) {
	filtered := make([]string, 0, len(slots))
	for _, s := range slots {
		current, err := ParseSlot(s)
		if err != nil {
			return nil, err
		}
		overlap := false
		for _, r := range reserved {
			if Overlaps(current, r) {
				overlap = true
				break
			}
		}
		if !overlap {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}
