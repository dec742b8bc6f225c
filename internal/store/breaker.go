package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"clinic-scheduler/internal/availability"
)

// BreakerConfig tunes the circuit breakers around engine reads.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens a breaker.
	FailureThreshold uint32
	// Timeout is how long a breaker stays open before probing again.
	Timeout time.Duration
}

// BreakerSource guards the two engine reads of a source with circuit
// breakers. An open breaker fails fast with gobreaker.ErrOpenState.
type BreakerSource struct {
	source     availability.Source
	candidates *gobreaker.CircuitBreaker[[]availability.Candidate]
	bookings   *gobreaker.CircuitBreaker[[]availability.Booking]
}

func NewBreakerSource(source availability.Source, cfg BreakerConfig, log *zap.Logger) *BreakerSource {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:    name,
			Timeout: cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			// Cancellation is the caller giving up, not the store failing. pgx
			// wraps it, so match the chain. An expired deadline still counts
			// against the store.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}
	}
	return &BreakerSource{
		source:     source,
		candidates: gobreaker.NewCircuitBreaker[[]availability.Candidate](settings("availability-candidates")),
		bookings:   gobreaker.NewCircuitBreaker[[]availability.Booking](settings("bookings")),
	}
}

func (b *BreakerSource) FetchAvailabilityCandidates(ctx context.Context, specializationID int, providerID *int, from, to time.Time) ([]availability.Candidate, error) {
	return b.candidates.Execute(func() ([]availability.Candidate, error) {
		return b.source.FetchAvailabilityCandidates(ctx, specializationID, providerID, from, to)
	})
}

func (b *BreakerSource) FetchBookings(ctx context.Context, providerIDs []int, from, to time.Time) ([]availability.Booking, error) {
	return b.bookings.Execute(func() ([]availability.Booking, error) {
		return b.source.FetchBookings(ctx, providerIDs, from, to)
	})
}
