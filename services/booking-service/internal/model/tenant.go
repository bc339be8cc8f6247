package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

type Tenant struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Timezone  string        `json:"timezone"`
	Hours     BusinessHours `json:"business_hours"`
	CreatedAt time.Time     `json:"created_at"`
}

// DayHours is an opening window in wall-clock "HH:MM".
type DayHours struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	Closed bool   `json:"closed,omitempty"`
}

// BusinessHours falls back to Default for weekdays without an entry.
// Weekday keys are lowercase English names ("monday").
type BusinessHours struct {
	Default  DayHours            `json:"default"`
	Weekdays map[string]DayHours `json:"weekdays,omitempty"`
}

func DefaultBusinessHours() BusinessHours {
	return BusinessHours{Default: DayHours{Open: "09:00", Close: "17:00"}}
}

// For returns the window for day; ok is false when the business is closed.
func (b BusinessHours) For(day time.Weekday) (DayHours, bool) {
	h, found := b.Weekdays[strings.ToLower(day.String())]
	if !found {
		h = b.Default
	}
	if h.Closed || h.Open == "" || h.Close == "" {
		return DayHours{}, false
	}
	return h, true
}

func (b BusinessHours) Validate() error {
	check := func(label string, h DayHours) error {
		if h.Closed {
			return nil
		}
		open, err := ParseClock(h.Open)
		if err != nil {
			return fmt.Errorf("%w: %s open: %v", ErrValidation, label, err)
		}
		closing, err := ParseClock(h.Close)
		if err != nil {
			return fmt.Errorf("%w: %s close: %v", ErrValidation, label, err)
		}
		if closing <= open {
			return fmt.Errorf("%w: %s closes before it opens", ErrValidation, label)
		}
		return nil
	}
	if err := check("default", b.Default); err != nil {
		return err
	}
	for name, h := range b.Weekdays {
		if !isWeekday(name) {
			return fmt.Errorf("%w: unknown weekday %q", ErrValidation, name)
		}
		if err := check(name, h); err != nil {
			return err
		}
	}
	return nil
}

func isWeekday(name string) bool {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return true
		}
	}
	return false
}

// Location falls back to UTC for an empty or unknown zone.
func (t Tenant) Location() *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// ParseStartClock is ParseClock limited to times a booking can start at.
// "24:00" is only meaningful as a closing time.
func ParseStartClock(s string) (time.Duration, error) {
	off, err := ParseClock(s)
	if err != nil {
		return 0, err
	}
	if off >= 24*time.Hour {
		return 0, fmt.Errorf("invalid start time %q", s)
	}
	return off, nil
}

const DateLayout = "2006-01-02"

// LocalDate parses "YYYY-MM-DD" as midnight in loc.
func LocalDate(date string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrValidation, date)
	}
	return d, nil
}

// LocalDateTime combines a date and an "HH:MM" clock in loc.
func LocalDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := LocalDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	off, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return atOffset(d, off, loc), nil
}

// StartDateTime is LocalDateTime for a booking start, which must fall on date.
func StartDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := LocalDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	off, err := ParseStartClock(clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return atOffset(d, off, loc), nil
}

func atOffset(d time.Time, off time.Duration, loc *time.Location) time.Time {
	h, m := int(off/time.Hour), int(off%time.Hour/time.Minute)
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, loc)
}
