package availability

import (
	"sort"
	"time"
)

// FreeIntervals subtracts bookings from the window [winStart, winEnd) with a
// single greedy forward scan. A gap in front of a booking that cannot hold a
// full slot is skipped, not merged with the next gap. If the window has
// already started at now, the scan begins at now rounded up to the minute.
//
// Bookings are not checked for overlaps among themselves; the cursor only
// ever moves forward, so overlapping input can only shrink the free time.
func FreeIntervals(winStart, winEnd time.Time, bookings []Booking, slot time.Duration, now time.Time) []Interval {
	cursor := winStart
	if !now.IsZero() && cursor.Before(now) {
		cursor = CeilMinute(now)
	}

	sorted := make([]Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Start.Before(winEnd) && b.End.After(winStart) {
			sorted = append(sorted, b)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var free []Interval
	for _, b := range sorted {
		if cursor.Add(slot).After(b.Start) {
			if b.End.After(cursor) {
				cursor = b.End
			}
			continue
		}
		free = append(free, Interval{Start: cursor, End: b.Start})
		cursor = b.End
	}

	if !cursor.Add(slot).After(winEnd) {
		free = append(free, Interval{Start: cursor, End: winEnd})
	}
	return free
}
