package app

import (
	"time"

	"clinic-scheduler/internal/availability"
	"clinic-scheduler/internal/store"
)

type specializationReq struct {
	Name string `json:"name" binding:"required"`
}

type providerReq struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
}

type windowReq struct {
	StartDate         string                 `json:"startDate" binding:"required"`
	EndDate           string                 `json:"endDate,omitempty"`
	DaysOfWeek        *availability.Weekdays `json:"daysOfWeek,omitempty"`
	StartTime         availability.TimeOfDay `json:"startTime"`
	EndTime           availability.TimeOfDay `json:"endTime"`
	SpecializationIDs []int                  `json:"specializationIds" binding:"required,min=1"`
}

type createBookingReq struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Window is the JSON shape of a stored availability window.
type Window struct {
	ID                int                    `json:"id"`
	ProviderID        int                    `json:"providerId"`
	StartDate         string                 `json:"startDate"`
	EndDate           string                 `json:"endDate,omitempty"`
	DaysOfWeek        availability.Weekdays  `json:"daysOfWeek"`
	StartTime         availability.TimeOfDay `json:"startTime"`
	EndTime           availability.TimeOfDay `json:"endTime"`
	SpecializationIDs []int                  `json:"specializationIds"`
}

type Booking struct {
	ID         int       `json:"id"`
	ProviderID int       `json:"providerId"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
}

// ImportResult is returned by the calendar import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

func windowFromRecord(r store.WindowRecord) Window {
	w := Window{
		ID:                r.ID,
		ProviderID:        r.ProviderID,
		StartDate:         r.StartDate.Format(availability.DateLayout),
		DaysOfWeek:        r.Days,
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
		SpecializationIDs: r.SpecializationIDs,
	}
	if r.EndDate != nil {
		w.EndDate = r.EndDate.Format(availability.DateLayout)
	}
	return w
}

func bookingFromModel(b availability.Booking) Booking {
	return Booking{ID: b.ID, ProviderID: b.ProviderID, StartTime: b.Start, EndTime: b.End}
}
