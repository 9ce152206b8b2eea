package schedule

import "time"

// minuteOfDay converts a timestamp to minutes from midnight in its location.
func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Contains reports whether the candidate interval, given as weekday plus
// minutes from midnight, sits fully inside this window.
func (w AvailabilityWindow) Contains(weekday time.Weekday, startMin, endMin int) bool {
	if !w.Active || w.Weekday != weekday {
		return false
	}
	return w.StartMinute <= startMin && endMin <= w.EndMinute
}

// WithinAvailability reports whether [start, start+duration) fits inside a
// single window of the set. A candidate spanning two contiguous windows, or
// crossing midnight, does not count as available.
func WithinAvailability(windows []AvailabilityWindow, start time.Time, durationMinutes int) bool {
	if durationMinutes <= 0 {
		return false
	}

	startMin := minuteOfDay(start)
	endMin := startMin + durationMinutes
	if endMin > 24*60 {
		return false
	}

	for _, w := range windows {
		if w.Contains(start.Weekday(), startMin, endMin) {
			return true
		}
	}
	return false
}

// Overlaps implements half-open interval overlap: back-to-back intervals
// (aEnd == bStart) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// windowsClash reports whether two windows of the same professional collide
// on the same weekday. Used when a new window is registered.
func windowsClash(a, b AvailabilityWindow) bool {
	if a.Weekday != b.Weekday {
		return false
	}
	return a.StartMinute < b.EndMinute && b.StartMinute < a.EndMinute
}
