package availability

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultSlotDurationMinutes = 30
	DefaultMaxResults          = 100
	MaxSlotDurationMinutes     = 480
	MaxResultsLimit            = 1000

	// HorizonMonths bounds how far ahead of the effective start a query may look.
	HorizonMonths = 3
)

var ErrInvalidQuery = errors.New("invalid query")

// Query holds the parameters of one slot search. DateFrom and DateTo are
// optional local dates.
type Query struct {
	SpecializationID    int
	ProviderID          *int
	DateFrom            *time.Time
	DateTo              *time.Time
	SlotDurationMinutes int
	MaxResults          int
}

// WithDefaults fills zero duration and max results.
func (q Query) WithDefaults() Query {
	if q.SlotDurationMinutes == 0 {
		q.SlotDurationMinutes = DefaultSlotDurationMinutes
	}
	if q.MaxResults == 0 {
		q.MaxResults = DefaultMaxResults
	}
	return q
}

func (q Query) Validate() error {
	if q.SpecializationID <= 0 {
		return fmt.Errorf("%w: specializationId must be greater than 0", ErrInvalidQuery)
	}
	if q.ProviderID != nil && *q.ProviderID <= 0 {
		return fmt.Errorf("%w: providerId must be greater than 0", ErrInvalidQuery)
	}
	if q.SlotDurationMinutes < 1 || q.SlotDurationMinutes > MaxSlotDurationMinutes {
		return fmt.Errorf("%w: slotDurationMinutes must be between 1 and %d", ErrInvalidQuery, MaxSlotDurationMinutes)
	}
	if q.MaxResults < 1 || q.MaxResults > MaxResultsLimit {
		return fmt.Errorf("%w: maxResults must be between 1 and %d", ErrInvalidQuery, MaxResultsLimit)
	}
	return nil
}

// SlotDuration is the slot length as a time.Duration.
func (q Query) SlotDuration() time.Duration {
	return time.Duration(q.SlotDurationMinutes) * time.Minute
}

// EffectiveRange clamps the requested dates to [today, today+3 months].
// ok is false when nothing is left to search.
func (q Query) EffectiveRange(today time.Time) (from, to time.Time, ok bool) {
	today = StartOfDay(today)
	from = today
	if q.DateFrom != nil {
		if d := StartOfDay(InLocation(*q.DateFrom, today.Location())); d.After(today) {
			from = d
		}
	}
	to = AddMonths(from, HorizonMonths)
	if q.DateTo != nil {
		if d := StartOfDay(InLocation(*q.DateTo, today.Location())); d.Before(to) {
			to = d
		}
	}
	return from, to, !from.After(to)
}
