package availability

import "time"

// IntersectsRange reports whether the window's date span touches [from, to].
func (w Window) IntersectsRange(from, to time.Time) bool {
	if StartOfDay(to).Before(StartOfDay(w.StartDate)) {
		return false
	}
	return w.EndDate == nil || !StartOfDay(from).After(StartOfDay(*w.EndDate))
}

// ActiveOn reports whether the window produces an occurrence on date d.
func (w Window) ActiveOn(d time.Time) bool {
	day := StartOfDay(d)
	if day.Before(StartOfDay(w.StartDate)) {
		return false
	}
	if w.EndDate != nil && day.After(StartOfDay(*w.EndDate)) {
		return false
	}
	if w.SingleOccurrence() {
		return true
	}
	return w.Days.Has(day.Weekday())
}

// FitsSlot reports whether one slot of length d fits in the daily window.
func (w Window) FitsSlot(d time.Duration) bool {
	return w.Duration() >= d
}

// filterFitting drops candidates too short to ever hold a slot.
func filterFitting(candidates []Candidate, slot time.Duration) []Candidate {
	out := candidates[:0:0]
	for _, c := range candidates {
		if c.FitsSlot(slot) {
			out = append(out, c)
		}
	}
	return out
}

// providerIDs returns the distinct providers in discovery order.
func providerIDs(candidates []Candidate) []int {
	seen := make(map[int]struct{}, len(candidates))
	var ids []int
	for _, c := range candidates {
		if _, ok := seen[c.ProviderID]; ok {
			continue
		}
		seen[c.ProviderID] = struct{}{}
		ids = append(ids, c.ProviderID)
	}
	return ids
}

// bookingsOn returns the provider's bookings overlapping the calendar date d.
func bookingsOn(bookings []Booking, providerID int, d time.Time) []Booking {
	day := Interval{Start: StartOfDay(d), End: StartOfDay(d).AddDate(0, 0, 1)}
	var out []Booking
	for _, b := range bookings {
		if b.ProviderID != providerID {
			continue
		}
		if day.Overlaps(Interval{Start: b.Start, End: b.End}) {
			out = append(out, b)
		}
	}
	return out
}
