package availability

import (
	"context"
	"fmt"
	"time"
)

// Window is one provider availability rule. StartDate and EndDate are local
// midnights; a nil EndDate is open ended.
type Window struct {
	ID         int
	ProviderID int
	StartDate  time.Time
	EndDate    *time.Time
	Days       Weekdays
	StartTime  TimeOfDay
	EndTime    TimeOfDay
}

// Duration is the daily length of the window.
func (w Window) Duration() time.Duration {
	return time.Duration(w.EndTime - w.StartTime)
}

// SingleOccurrence reports whether the window fires on exactly one date.
// Such windows ignore the weekday mask.
func (w Window) SingleOccurrence() bool {
	return w.EndDate != nil && SameDate(w.StartDate, *w.EndDate)
}

// Validate checks the window invariants.
func (w Window) Validate() error {
	if w.EndTime <= w.StartTime {
		return fmt.Errorf("end time %s must be after start time %s", w.EndTime, w.StartTime)
	}
	if w.EndDate != nil && StartOfDay(*w.EndDate).Before(StartOfDay(w.StartDate)) {
		return fmt.Errorf("end date %s is before start date %s",
			w.EndDate.Format(DateLayout), w.StartDate.Format(DateLayout))
	}
	if !w.Days.Valid() {
		return fmt.Errorf("invalid weekday mask %d", w.Days)
	}
	return nil
}

// Candidate is a window joined with the names needed to label its slots.
type Candidate struct {
	Window
	SpecializationID   int
	SpecializationName string
	ProviderName       string
}

// Booking is an already reserved interval of a provider.
type Booking struct {
	ID         int
	ProviderID int
	Start      time.Time
	End        time.Time
}

// Interval is a half-open [Start, End) range.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Duration() time.Duration { return i.End.Sub(i.Start) }

// Overlaps reports whether the two half-open intervals share any instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Slot is one bookable result.
type Slot struct {
	ProviderName       string    `json:"providerName"`
	SpecializationName string    `json:"specializationName"`
	StartTime          time.Time `json:"startTime"`
	EndTime            time.Time `json:"endTime"`
}

// CandidateSource returns windows tagged with specializationID whose date
// range intersects [from, to] (both inclusive local dates). providerID
// narrows the result when non-nil.
type CandidateSource interface {
	FetchAvailabilityCandidates(ctx context.Context, specializationID int, providerID *int, from, to time.Time) ([]Candidate, error)
}

// BookingSource returns bookings of the given providers overlapping [from, to).
type BookingSource interface {
	FetchBookings(ctx context.Context, providerIDs []int, from, to time.Time) ([]Booking, error)
}

// Source is everything the engine reads.
type Source interface {
	CandidateSource
	BookingSource
}
