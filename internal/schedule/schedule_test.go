package schedule

import (
	"testing"
	"time"
)

func mustLoadLoc(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Asia/Karachi")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestParseSlot(t *testing.T) {
	window, err := ParseSlot("10:00-10:30")
	if err != nil {
		t.Fatalf("ParseSlot error: %v", err)
	}
	if window.Start != 600 || window.End != 630 {
		t.Fatalf("unexpected interval: %+v", window)
	}
}

func TestParseSlotRejectsReversed(t *testing.T) {
	if _, err := ParseSlot("11:00-10:00"); err != ErrInvalidSlot {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
	if _, err := ParseSlot("10:00"); err != ErrInvalidSlot {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
}

func TestWeekday(t *testing.T) {
	loc := mustLoadLoc(t)
	day, err := Weekday("2025-01-01", loc)
	if err != nil {
		t.Fatalf("Weekday error: %v", err)
	}
	if day != "wednesday" {
		t.Fatalf("expected wednesday, got %s", day)
	}
}

func TestSlotAllowed(t *testing.T) {
	loc := mustLoadLoc(t)
	availability := map[string][]string{
		"wednesday": {"10:00-10:30", "10:30-11:00"},
	}

	ok, err := SlotAllowed(availability, "2025-01-01", "10:00-10:30", loc)
	if err != nil {
		t.Fatalf("SlotAllowed error: %v", err)
	}
	if !ok {
		t.Fatalf("expected slot to be allowed")
	}

	ok, err = SlotAllowed(availability, "2025-01-01", "11:00-11:30", loc)
	if err != nil {
		t.Fatalf("SlotAllowed error: %v", err)
	}
	if ok {
		t.Fatalf("expected slot to be rejected")
	}

	// 2025-01-02 is a Thursday with no availability at all.
	ok, err = SlotAllowed(availability, "2025-01-02", "10:00-10:30", loc)
	if err != nil {
		t.Fatalf("SlotAllowed error: %v", err)
	}
	if ok {
		t.Fatalf("expected closed day to reject slot")
	}
}

func TestSlotStart(t *testing.T) {
	loc := mustLoadLoc(t)
	start, err := SlotStart("2025-01-01", "10:00-10:30", loc)
	if err != nil {
		t.Fatalf("SlotStart error: %v", err)
	}
	want := time.Date(2025, 1, 1, 10, 0, 0, 0, loc)
	if !start.Equal(want) {
		t.Fatalf("expected %v, got %v", want, start)
	}
}

func TestIsDatePast(t *testing.T) {
	loc := mustLoadLoc(t)
	now := time.Date(2025, 1, 2, 9, 0, 0, 0, loc)

	past, err := IsDatePast("2025-01-01", loc, now)
	if err != nil {
		t.Fatalf("IsDatePast error: %v", err)
	}
	if !past {
		t.Fatalf("expected date to be past")
	}

	past, err = IsDatePast("2025-01-02", loc, now)
	if err != nil {
		t.Fatalf("IsDatePast error: %v", err)
	}
	if past {
		t.Fatalf("expected date to be not past")
	}
}

func TestIsSlotPast(t *testing.T) {
	loc := mustLoadLoc(t)
	now := time.Date(2025, 1, 1, 10, 15, 0, 0, loc)

	past, err := IsSlotPast("2025-01-01", "10:00-10:30", loc, now)
	if err != nil {
		t.Fatalf("IsSlotPast error: %v", err)
	}
	if !past {
		t.Fatalf("expected slot to be past")
	}

	past, err = IsSlotPast("2025-01-01", "10:30-11:00", loc, now)
	if err != nil {
		t.Fatalf("IsSlotPast error: %v", err)
	}
	if past {
		t.Fatalf("expected slot to be future")
	}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		a, b Interval
		want bool
	}{
		{Interval{600, 630}, Interval{600, 630}, true},
		{Interval{600, 630}, Interval{615, 645}, true},
		{Interval{600, 630}, Interval{630, 660}, false},
		{Interval{600, 630}, Interval{570, 600}, false},
	}
	for _, c := range cases {
		if got := Overlaps(c.a, c.b); got != c.want {
			t.Fatalf("Overlaps(%+v, %+v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestFilterOverlapping(t *testing.T) {
	slots := []string{"10:00-10:30", "10:30-11:00", "11:00-11:30"}
	reserved := []Interval{{Start: 630, End: 660}}

	filtered, err := FilterOverlapping(slots, reserved)
	if err != nil {
		t.Fatalf("FilterOverlapping error: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 slots, got %d: %v", len(filtered), filtered)
	}
	if filtered[0] != "10:00-10:30" || filtered[1] != "11:00-11:30" {
		t.Fatalf("unexpected slots: %v", filtered)
	}
}
