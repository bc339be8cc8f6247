package availability

import (
	"sort"
	"time"
)

// SlotStep is the spacing between candidate start times.
const SlotStep = 30 * time.Minute

const clockLayout = "15:04"

// Interval is half-open: [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

type Slot struct {
	Time      string    `json:"time"`
	Available bool      `json:"available"`
	Start     time.Time `json:"-"`
}

// Overlaps reports whether a and b share at least one instant. Touching
// intervals do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// GenerateSlots returns every step-aligned start in [open, close) whose service
// of length duration finishes by close. A slot is unavailable when its
// interval overlaps any busy interval. Times are formatted in open's location.
func GenerateSlots(open, close time.Time, duration, step time.Duration, busy []Interval) []Slot {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !close.After(open) {
		return nil
	}

	var slots []Slot
	for t := open; !t.Add(duration).After(close); t = t.Add(step) {
		candidate := Interval{Start: t, End: t.Add(duration)}
		slots = append(slots, Slot{
			Time:      t.Format(clockLayout),
			Available: !overlapsAny(candidate, busy),
			Start:     t,
		})
	}
	return slots
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(candidate, b) {
			return true
		}
	}
	return false
}

// IsAvailable reports whether clock ("HH:MM") is listed and available.
func IsAvailable(slots []Slot, clock string) bool {
	for _, s := range slots {
		if s.Time == clock {
			return s.Available
		}
	}
	return false
}

// Alternatives picks up to n available times nearest to requested, earlier
// time first on ties, returned in the order of preference.
func Alternatives(slots []Slot, requested time.Time, n int) []string {
	if n <= 0 {
		return nil
	}
	var open []Slot
	for _, s := range slots {
		if s.Available && !s.Start.Equal(requested) {
			open = append(open, s)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		di, dj := distance(open[i].Start, requested), distance(open[j].Start, requested)
		if di != dj {
			return di < dj
		}
		return open[i].Start.Before(open[j].Start)
	})
	if len(open) > n {
		open = open[:n]
	}
	out := make([]string, 0, len(open))
	for _, s := range open {
		out = append(out, s.Time)
	}
	return out
}

func distance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
