package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"clinic-scheduler/internal/availability"
)

// Postgres is the pgx backed store.
type Postgres struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewPostgres opens and pings a pool.
func NewPostgres(ctx context.Context, databaseURL string, maxConns, minConns int32, loc *time.Location) (*Postgres, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool, loc: orLocal(loc)}, nil
}

func (s *Postgres) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Postgres) Close() { s.pool.Close() }

func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Postgres) Reset(ctx context.Context) error {
	q := `TRUNCATE bookings, window_specializations, availability_windows, providers, specializations RESTART IDENTITY CASCADE`
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

func (s *Postgres) FetchAvailabilityCandidates(ctx context.Context, specializationID int, providerID *int, from, to time.Time) ([]availability.Candidate, error) {
	q := `SELECT w.id, w.provider_id, w.start_date, w.end_date, w.days_of_week, w.start_time, w.end_time,
	             sp.id, sp.name, p.first_name, p.last_name
	      FROM window_specializations ws
	      JOIN availability_windows w ON w.id = ws.window_id
	      JOIN providers p ON p.id = w.provider_id
	      JOIN specializations sp ON sp.id = ws.specialization_id
	      WHERE ws.specialization_id = $1
	        AND ($2::int IS NULL OR w.provider_id = $2)
	        AND (w.end_date IS NULL OR w.end_date >= $3::date)
	        AND w.start_date <= $4::date
	      ORDER BY w.id`
	rows, err := s.pool.Query(ctx, q, specializationID, providerID,
		from.Format(availability.DateLayout), to.Format(availability.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Candidate
	for rows.Next() {
		var (
			c          availability.Candidate
			end        *time.Time
			days       int16
			start, fin pgtype.Time
			first      string
			last       string
		)
		if err := rows.Scan(&c.ID, &c.ProviderID, &c.StartDate, &end, &days, &start, &fin,
			&c.SpecializationID, &c.SpecializationName, &first, &last); err != nil {
			return nil, err
		}
		c.StartDate = availability.InLocation(c.StartDate, s.loc)
		if end != nil {
			e := availability.InLocation(*end, s.loc)
			c.EndDate = &e
		}
		c.Days = availability.Weekdays(days)
		c.StartTime = timeOfDay(start)
		c.EndTime = timeOfDay(fin)
		c.ProviderName = Provider{FirstName: first, LastName: last}.DisplayName()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) FetchBookings(ctx context.Context, providerIDs []int, from, to time.Time) ([]availability.Booking, error) {
	if len(providerIDs) == 0 {
		return nil, nil
	}
	q := `SELECT id, provider_id, start_at, end_at
	      FROM bookings
	      WHERE provider_id = ANY($1::int[]) AND end_at > $2 AND start_at < $3
	      ORDER BY start_at`
	rows, err := s.pool.Query(ctx, q, providerIDs, from.In(s.loc), to.In(s.loc))
	if err != nil {
		return nil, err
	}
	return s.scanBookings(rows)
}

func (s *Postgres) ListSpecializations(ctx context.Context) ([]Specialization, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM specializations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Specialization
	for rows.Next() {
		var sp Specialization
		if err := rows.Scan(&sp.ID, &sp.Name); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *Postgres) CreateSpecialization(ctx context.Context, sp *Specialization) error {
	if sp.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalid)
	}
	return s.pool.QueryRow(ctx, `INSERT INTO specializations (name) VALUES ($1) RETURNING id`, sp.Name).Scan(&sp.ID)
}

func (s *Postgres) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, first_name, last_name FROM providers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) CreateProvider(ctx context.Context, p *Provider) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("%w: first and last name required", ErrInvalid)
	}
	q := `INSERT INTO providers (first_name, last_name) VALUES ($1, $2) RETURNING id`
	return s.pool.QueryRow(ctx, q, p.FirstName, p.LastName).Scan(&p.ID)
}

func (s *Postgres) ListWindows(ctx context.Context, providerID int) ([]WindowRecord, error) {
	q := `SELECT w.id, w.provider_id, w.start_date, w.end_date, w.days_of_week, w.start_time, w.end_time,
	             COALESCE(array_agg(ws.specialization_id ORDER BY ws.specialization_id)
	                      FILTER (WHERE ws.specialization_id IS NOT NULL), '{}')
	      FROM availability_windows w
	      LEFT JOIN window_specializations ws ON ws.window_id = w.id
	      WHERE w.provider_id = $1
	      GROUP BY w.id
	      ORDER BY w.id`
	rows, err := s.pool.Query(ctx, q, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WindowRecord
	for rows.Next() {
		var (
			w          WindowRecord
			end        *time.Time
			days       int16
			start, fin pgtype.Time
			specs      []int32
		)
		if err := rows.Scan(&w.ID, &w.ProviderID, &w.StartDate, &end, &days, &start, &fin, &specs); err != nil {
			return nil, err
		}
		w.StartDate = availability.InLocation(w.StartDate, s.loc)
		if end != nil {
			e := availability.InLocation(*end, s.loc)
			w.EndDate = &e
		}
		w.Days = availability.Weekdays(days)
		w.StartTime = timeOfDay(start)
		w.EndTime = timeOfDay(fin)
		w.SpecializationIDs = make([]int, len(specs))
		for i, id := range specs {
			w.SpecializationIDs[i] = int(id)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Postgres) CreateWindow(ctx context.Context, w *WindowRecord) error {
	if err := validateWindow(w); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var endDate *string
	if w.EndDate != nil {
		e := w.EndDate.Format(availability.DateLayout)
		endDate = &e
	}
	q := `INSERT INTO availability_windows (provider_id, start_date, end_date, days_of_week, start_time, end_time)
	      VALUES ($1, $2::date, $3::date, $4, $5::time, $6::time) RETURNING id`
	err = tx.QueryRow(ctx, q, w.ProviderID, w.StartDate.Format(availability.DateLayout), endDate,
		int16(w.Days), w.StartTime.String(), w.EndTime.String()).Scan(&w.ID)
	if err != nil {
		return mapPgError(err)
	}

	for _, specID := range w.SpecializationIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO window_specializations (window_id, specialization_id) VALUES ($1, $2)`, w.ID, specID); err != nil {
			return mapPgError(err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Postgres) ListBookings(ctx context.Context, providerID int, from, to *time.Time) ([]availability.Booking, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if from != nil && to != nil {
		q := `SELECT id, provider_id, start_at, end_at FROM bookings
		      WHERE provider_id = $1 AND end_at > $2 AND start_at < $3
		      ORDER BY start_at`
		rows, err = s.pool.Query(ctx, q, providerID, from.In(s.loc), to.In(s.loc))
	} else {
		q := `SELECT id, provider_id, start_at, end_at FROM bookings
		      WHERE provider_id = $1
		      ORDER BY start_at`
		rows, err = s.pool.Query(ctx, q, providerID)
	}
	if err != nil {
		return nil, err
	}
	return s.scanBookings(rows)
}

// CreateBooking inserts a booking unless it overlaps another booking of the
// same provider. Writers for one provider are serialized by an advisory lock.
func (s *Postgres) CreateBooking(ctx context.Context, b *availability.Booking) error {
	if err := validateBooking(b); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(b.ProviderID)); err != nil {
		return err
	}

	// timestamp columns keep the wall clock of the clinic zone
	start, end := b.Start.In(s.loc), b.End.In(s.loc)
	var existingID int
	checkQ := `SELECT id FROM bookings
	           WHERE provider_id = $1 AND start_at < $3 AND end_at > $2
	           LIMIT 1`
	err = tx.QueryRow(ctx, checkQ, b.ProviderID, start, end).Scan(&existingID)
	if err == nil {
		return fmt.Errorf("%w: overlaps booking %d", ErrConflict, existingID)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	insertQ := `INSERT INTO bookings (provider_id, start_at, end_at) VALUES ($1, $2, $3) RETURNING id`
	if err := tx.QueryRow(ctx, insertQ, b.ProviderID, start, end).Scan(&b.ID); err != nil {
		return mapPgError(err)
	}
	return tx.Commit(ctx)
}

func (s *Postgres) CancelBooking(ctx context.Context, id int) (availability.Booking, error) {
	var b availability.Booking
	q := `DELETE FROM bookings WHERE id = $1 RETURNING id, provider_id, start_at, end_at`
	err := s.pool.QueryRow(ctx, q, id).Scan(&b.ID, &b.ProviderID, &b.Start, &b.End)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return b, err
	}
	b.Start = availability.InLocation(b.Start, s.loc)
	b.End = availability.InLocation(b.End, s.loc)
	return b, nil
}

func (s *Postgres) scanBookings(rows pgx.Rows) ([]availability.Booking, error) {
	defer rows.Close()

	var out []availability.Booking
	for rows.Next() {
		var b availability.Booking
		if err := rows.Scan(&b.ID, &b.ProviderID, &b.Start, &b.End); err != nil {
			return nil, err
		}
		b.Start = availability.InLocation(b.Start, s.loc)
		b.End = availability.InLocation(b.End, s.loc)
		out = append(out, b)
	}
	return out, rows.Err()
}

func timeOfDay(t pgtype.Time) availability.TimeOfDay {
	return availability.TimeOfDay(time.Duration(t.Microseconds) * time.Microsecond)
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return fmt.Errorf("%w: %s", ErrInvalid, pgErr.Detail)
		case "23514":
			return fmt.Errorf("%w: %s", ErrInvalid, pgErr.Message)
		}
	}
	return err
}
