package store

import (
	"context"
	"fmt"
	"time"

	"clinic-scheduler/internal/availability"
)

// SeedSummary reports what Seed inserted.
type SeedSummary struct {
	Specializations int `json:"specializations"`
	Providers       int `json:"providers"`
	Windows         int `json:"windows"`
	Bookings        int `json:"bookings"`
}

type seedWindow struct {
	provider  int
	startDay  int
	endDay    int // -1 is open ended
	days      availability.Weekdays
	from, to  availability.TimeOfDay
	specIndex []int
}

type seedBooking struct {
	provider int
	day      int
	from, to availability.TimeOfDay
}

// Seed wipes the store and loads a demo clinic anchored at the Monday of
// the week containing base, so the data always lies in the searchable future.
func Seed(ctx context.Context, s Store, base time.Time) (SeedSummary, error) {
	var sum SeedSummary
	if err := s.Reset(ctx); err != nil {
		return sum, err
	}

	monday := availability.StartOfDay(base)
	for monday.Weekday() != time.Monday {
		monday = monday.AddDate(0, 0, -1)
	}

	specs := []*Specialization{
		{Name: "Cardiology"},
		{Name: "Pediatric Cardiology"},
		{Name: "Nephrology"},
		{Name: "Internal Medicine"},
	}
	for _, sp := range specs {
		if err := s.CreateSpecialization(ctx, sp); err != nil {
			return sum, fmt.Errorf("seed specialization %s: %w", sp.Name, err)
		}
		sum.Specializations++
	}

	providers := []*Provider{
		{FirstName: "Karen", LastName: "Hart"},
		{FirstName: "Peter", LastName: "Reyes"},
		{FirstName: "Mark", LastName: "Ellison"},
	}
	for _, p := range providers {
		if err := s.CreateProvider(ctx, p); err != nil {
			return sum, fmt.Errorf("seed provider %s: %w", p.DisplayName(), err)
		}
		sum.Providers++
	}

	const (
		cardiology = iota
		pediatricCardiology
		nephrology
		internal
	)
	tod := availability.NewTimeOfDay
	windows := []seedWindow{
		{0, 1, 1, availability.Everyday, tod(8, 30), tod(12, 30), []int{pediatricCardiology}},
		{0, 2, 2, availability.Everyday, tod(9, 30), tod(12, 30), []int{cardiology, pediatricCardiology}},
		{0, 3, 3, availability.Everyday, tod(9, 0), tod(12, 0), []int{pediatricCardiology}},
		{0, 7, -1, availability.Tuesday | availability.Friday, tod(10, 0), tod(16, 0), []int{cardiology, pediatricCardiology}},
		{1, 0, 60, availability.Wednesday, tod(16, 0), tod(18, 0), []int{nephrology}},
		{1, 0, 60, availability.Tuesday, tod(12, 0), tod(15, 0), []int{nephrology}},
		{1, 0, -1, availability.Friday, tod(8, 0), tod(11, 0), []int{nephrology}},
		{2, 3, 3, availability.Everyday, tod(16, 30), tod(18, 30), []int{internal}},
		{2, 4, 60, availability.Tuesday, tod(12, 0), tod(15, 0), []int{nephrology}},
		{2, 0, -1, availability.Monday, tod(8, 0), tod(11, 0), []int{nephrology}},
		{2, 0, -1, availability.Monday, tod(11, 0), tod(14, 0), []int{internal, cardiology}},
		{2, 7, -1, availability.Monday, tod(16, 0), tod(18, 0), []int{internal, cardiology, nephrology}},
	}
	for _, sw := range windows {
		w := &WindowRecord{Window: availability.Window{
			ProviderID: providers[sw.provider].ID,
			StartDate:  monday.AddDate(0, 0, sw.startDay),
			Days:       sw.days,
			StartTime:  sw.from,
			EndTime:    sw.to,
		}}
		if sw.endDay >= 0 {
			end := monday.AddDate(0, 0, sw.endDay)
			w.EndDate = &end
		}
		for _, i := range sw.specIndex {
			w.SpecializationIDs = append(w.SpecializationIDs, specs[i].ID)
		}
		if err := s.CreateWindow(ctx, w); err != nil {
			return sum, fmt.Errorf("seed window: %w", err)
		}
		sum.Windows++
	}

	bookings := []seedBooking{
		{0, 1, tod(8, 30), tod(9, 0)},
		{0, 11, tod(12, 0), tod(12, 30)},
		{1, 16, tod(16, 5), tod(16, 20)},
		{1, 22, tod(12, 10), tod(12, 20)},
		{2, 0, tod(11, 0), tod(11, 20)},
		{2, 0, tod(16, 20), tod(16, 40)},
		{2, 7, tod(16, 0), tod(16, 10)},
	}
	for _, sb := range bookings {
		d := monday.AddDate(0, 0, sb.day)
		b := &availability.Booking{
			ProviderID: providers[sb.provider].ID,
			Start:      sb.from.On(d),
			End:        sb.to.On(d),
		}
		if err := s.CreateBooking(ctx, b); err != nil {
			return sum, fmt.Errorf("seed booking: %w", err)
		}
		sum.Bookings++
	}
	return sum, nil
}
