// Package store is the persistence collaborator of the availability engine.
// It ships a Postgres implementation (pgx) and an embedded SQLite one used for
// local runs and tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic-scheduler/internal/availability"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Specialization struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Provider struct {
	ID        int    `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// DisplayName is the label used on slots.
func (p Provider) DisplayName() string {
	return p.FirstName + " " + p.LastName
}

// WindowRecord is a stored window with the specializations it serves.
type WindowRecord struct {
	availability.Window
	SpecializationIDs []int
}

// Store is implemented by every driver.
type Store interface {
	availability.Source

	Ping(ctx context.Context) error
	Close()
	Migrate(ctx context.Context) error
	Reset(ctx context.Context) error

	ListSpecializations(ctx context.Context) ([]Specialization, error)
	CreateSpecialization(ctx context.Context, s *Specialization) error
	ListProviders(ctx context.Context) ([]Provider, error)
	CreateProvider(ctx context.Context, p *Provider) error
	ListWindows(ctx context.Context, providerID int) ([]WindowRecord, error)
	CreateWindow(ctx context.Context, w *WindowRecord) error
	ListBookings(ctx context.Context, providerID int, from, to *time.Time) ([]availability.Booking, error)
	CreateBooking(ctx context.Context, b *availability.Booking) error
	CancelBooking(ctx context.Context, id int) (availability.Booking, error)
}

// Options selects and configures a driver.
type Options struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
	MaxConns    int32
	MinConns    int32
	// Location is the single local zone dates and times are interpreted in.
	Location *time.Location
}

// Open connects the configured driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case DriverPostgres, "":
		return NewPostgres(ctx, opts.DatabaseURL, opts.MaxConns, opts.MinConns, opts.Location)
	case DriverSQLite:
		return NewSQLite(ctx, opts.SQLitePath, opts.Location)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

func validateWindow(w *WindowRecord) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(w.SpecializationIDs) == 0 {
		return fmt.Errorf("%w: window needs at least one specialization", ErrInvalid)
	}
	return nil
}

func validateBooking(b *availability.Booking) error {
	if b.ProviderID <= 0 {
		return fmt.Errorf("%w: provider id required", ErrInvalid)
	}
	if !b.End.After(b.Start) {
		return fmt.Errorf("%w: booking end must be after start", ErrInvalid)
	}
	return nil
}

func orLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
