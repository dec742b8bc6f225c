// Package app holds the HTTP handlers of the scheduler API.
package app

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"clinic-scheduler/internal/availability"
	"clinic-scheduler/internal/events"
	"clinic-scheduler/internal/store"
)

// Finder answers slot queries; the engine or a cache in front of it.
type Finder interface {
	FindSlots(ctx context.Context, q availability.Query) ([]availability.Slot, error)
}

// Invalidator drops cached query results after a write.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Publisher interface {
	Publish(ctx context.Context, e events.BookingEvent) error
}

type App struct {
	Store    store.Store
	Finder   Finder
	Cache    Invalidator
	Events   Publisher
	Calendar *oauth2.Config
	Clock    availability.Clock
	Location *time.Location
	Log      *zap.Logger
	// AllowSeed enables POST /api/seed.
	AllowSeed bool
}

// New returns an App with no cache, no broker and the system clock.
func New(st store.Store, finder Finder, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{
		Store:    st,
		Finder:   finder,
		Events:   events.Nop{},
		Clock:    availability.SystemClock{},
		Location: time.Local,
		Log:      log.Named("app"),
	}
}

// changed runs after every write that can affect slot results.
func (a *App) changed(ctx context.Context) {
	if a.Cache == nil {
		return
	}
	if err := a.Cache.Invalidate(ctx); err != nil {
		a.Log.Warn("invalidate slot cache", zap.Error(err))
	}
}

func (a *App) publish(ctx context.Context, eventType string, b availability.Booking, source string) {
	e := events.NewBookingEvent(eventType, b, source, a.Clock.Now())
	if err := a.Events.Publish(ctx, e); err != nil {
		a.Log.Warn("publish booking event",
			zap.String("type", eventType),
			zap.Int("booking_id", b.ID),
			zap.Error(err),
		)
	}
}
