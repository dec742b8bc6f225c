package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Engine computes free slots from availability windows and bookings.
// It holds no mutable state; concurrent calls are safe when the source is.
type Engine struct {
	source Source
	clock  Clock
	log    *zap.Logger
}

// NewEngine wires an engine. A nil clock uses the system clock, a nil logger discards.
func NewEngine(source Source, clock Clock, log *zap.Logger) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{source: source, clock: clock, log: log.Named("availability")}
}

// FindSlots answers one query. Only collaborator fetch errors are returned;
// every "nothing found" outcome is an empty slice.
func (e *Engine) FindSlots(ctx context.Context, q Query) ([]Slot, error) {
	q = q.WithDefaults()
	now := e.clock.Now()

	from, to, ok := q.EffectiveRange(now)
	if !ok {
		e.log.Debug("empty effective range", zap.Int("specialization_id", q.SpecializationID))
		return []Slot{}, nil
	}

	candidates, err := e.source.FetchAvailabilityCandidates(ctx, q.SpecializationID, q.ProviderID, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch availability candidates: %w", err)
	}
	fetched := len(candidates)
	candidates = filterFitting(candidates, q.SlotDuration())
	e.log.Debug("availability candidates",
		zap.Int("specialization_id", q.SpecializationID),
		zap.String("from", from.Format(DateLayout)),
		zap.String("to", to.Format(DateLayout)),
		zap.Int("fetched", fetched),
		zap.Int("fitting", len(candidates)),
	)
	if len(candidates) == 0 {
		return []Slot{}, nil
	}

	bookings, err := e.source.FetchBookings(ctx, providerIDs(candidates), from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("fetch bookings: %w", err)
	}

	slots := Expand(candidates, bookings, from, to, q, now)
	e.log.Debug("slots computed", zap.Int("count", len(slots)), zap.Int("bookings", len(bookings)))
	return slots, nil
}

// Expand walks each date in [from, to], resolves the free time of every
// active candidate and returns the aggregated, capped slot list.
func Expand(candidates []Candidate, bookings []Booking, from, to time.Time, q Query, now time.Time) []Slot {
	slot := q.SlotDuration()
	var found []Slot

	// The early stop only saves work; aggregate is what enforces the cap.
	for d := StartOfDay(from); !d.After(to) && len(found) < q.MaxResults; d = d.AddDate(0, 0, 1) {
		for _, c := range candidates {
			if !c.ActiveOn(d) {
				continue
			}
			var clampAt time.Time
			if SameDate(d, now) {
				clampAt = now
			}
			daily := bookingsOn(bookings, c.ProviderID, d)
			for _, iv := range FreeIntervals(c.StartTime.On(d), c.EndTime.On(d), daily, slot, clampAt) {
				for _, s := range Split(iv, slot) {
					found = append(found, Slot{
						ProviderName:       c.ProviderName,
						SpecializationName: c.SpecializationName,
						StartTime:          s.Start,
						EndTime:            s.End,
					})
				}
			}
		}
	}
	return aggregate(found, q.MaxResults)
}

// aggregate orders slots by start time, keeping discovery order on ties, and caps the list.
func aggregate(slots []Slot, limit int) []Slot {
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].StartTime.Before(slots[j].StartTime) })
	if len(slots) > limit {
		slots = slots[:limit]
	}
	if slots == nil {
		slots = []Slot{}
	}
	return slots
}
