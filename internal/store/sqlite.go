package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"clinic-scheduler/internal/availability"
)

const (
	sqliteTimestamp = "2006-01-02 15:04:05"
	sqliteTime      = "15:04:05"
)

// SQLite is the embedded store. Dates, times and timestamps are kept as
// local wall-clock text so they compare lexicographically.
type SQLite struct {
	db  *sql.DB
	loc *time.Location
}

// NewSQLite opens path (":memory:" for a throwaway database).
func NewSQLite(ctx context.Context, path string, loc *time.Location) (*SQLite, error) {
	if path == "" {
		path = "scheduler.db"
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection: SQLite has a single writer, and an in-memory
	// database lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return &SQLite{db: db, loc: orLocal(loc)}, nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() { s.db.Close() }

func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *SQLite) Reset(ctx context.Context) error {
	for _, table := range []string{"bookings", "window_specializations", "availability_windows", "providers", "specializations"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	// sqlite_sequence only exists once an AUTOINCREMENT table got a row.
	_, _ = s.db.ExecContext(ctx, "DELETE FROM sqlite_sequence")
	return nil
}

func (s *SQLite) FetchAvailabilityCandidates(ctx context.Context, specializationID int, providerID *int, from, to time.Time) ([]availability.Candidate, error) {
	q := `SELECT w.id, w.provider_id, w.start_date, w.end_date, w.days_of_week, w.start_time, w.end_time,
	             sp.id, sp.name, p.first_name, p.last_name
	      FROM window_specializations ws
	      JOIN availability_windows w ON w.id = ws.window_id
	      JOIN providers p ON p.id = w.provider_id
	      JOIN specializations sp ON sp.id = ws.specialization_id
	      WHERE ws.specialization_id = ?
	        AND (? IS NULL OR w.provider_id = ?)
	        AND (w.end_date IS NULL OR w.end_date >= ?)
	        AND w.start_date <= ?
	      ORDER BY w.id`
	var provider any
	if providerID != nil {
		provider = *providerID
	}
	rows, err := s.db.QueryContext(ctx, q, specializationID, provider, provider,
		from.Format(availability.DateLayout), to.Format(availability.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Candidate
	for rows.Next() {
		var (
			c                availability.Candidate
			start, startTime string
			end              sql.NullString
			endTime          string
			days             int
			first, last      string
		)
		if err := rows.Scan(&c.ID, &c.ProviderID, &start, &end, &days, &startTime, &endTime,
			&c.SpecializationID, &c.SpecializationName, &first, &last); err != nil {
			return nil, err
		}
		if err := s.fillWindow(&c.Window, start, end, days, startTime, endTime); err != nil {
			return nil, err
		}
		c.ProviderName = Provider{FirstName: first, LastName: last}.DisplayName()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) FetchBookings(ctx context.Context, providerIDs []int, from, to time.Time) ([]availability.Booking, error) {
	if len(providerIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(providerIDs)), ",")
	q := `SELECT id, provider_id, start_at, end_at FROM bookings
	      WHERE provider_id IN (` + placeholders + `) AND end_at > ? AND start_at < ?
	      ORDER BY start_at`
	args := make([]any, 0, len(providerIDs)+2)
	for _, id := range providerIDs {
		args = append(args, id)
	}
	args = append(args, s.timestamp(from), s.timestamp(to))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return s.scanBookings(rows)
}

func (s *SQLite) ListSpecializations(ctx context.Context) ([]Specialization, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM specializations ORDER BY id`)
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

func (s *SQLite) CreateSpecialization(ctx context.Context, sp *Specialization) error {
	if sp.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalid)
	}
	return s.db.QueryRowContext(ctx, `INSERT INTO specializations (name) VALUES (?) RETURNING id`, sp.Name).Scan(&sp.ID)
}

func (s *SQLite) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, first_name, last_name FROM providers ORDER BY id`)
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

func (s *SQLite) CreateProvider(ctx context.Context, p *Provider) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("%w: first and last name required", ErrInvalid)
	}
	q := `INSERT INTO providers (first_name, last_name) VALUES (?, ?) RETURNING id`
	return s.db.QueryRowContext(ctx, q, p.FirstName, p.LastName).Scan(&p.ID)
}

func (s *SQLite) ListWindows(ctx context.Context, providerID int) ([]WindowRecord, error) {
	q := `SELECT w.id, w.provider_id, w.start_date, w.end_date, w.days_of_week, w.start_time, w.end_time,
	             COALESCE(group_concat(ws.specialization_id), '')
	      FROM availability_windows w
	      LEFT JOIN window_specializations ws ON ws.window_id = w.id
	      WHERE w.provider_id = ?
	      GROUP BY w.id
	      ORDER BY w.id`
	rows, err := s.db.QueryContext(ctx, q, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WindowRecord
	for rows.Next() {
		var (
			w                WindowRecord
			start, startTime string
			end              sql.NullString
			endTime          string
			days             int
			specs            string
		)
		if err := rows.Scan(&w.ID, &w.ProviderID, &start, &end, &days, &startTime, &endTime, &specs); err != nil {
			return nil, err
		}
		if err := s.fillWindow(&w.Window, start, end, days, startTime, endTime); err != nil {
			return nil, err
		}
		ids, err := parseIDList(specs)
		if err != nil {
			return nil, err
		}
		w.SpecializationIDs = ids
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *SQLite) CreateWindow(ctx context.Context, w *WindowRecord) error {
	if err := validateWindow(w); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var endDate any
	if w.EndDate != nil {
		endDate = w.EndDate.Format(availability.DateLayout)
	}
	q := `INSERT INTO availability_windows (provider_id, start_date, end_date, days_of_week, start_time, end_time)
	      VALUES (?, ?, ?, ?, ?, ?) RETURNING id`
	err = tx.QueryRowContext(ctx, q, w.ProviderID, w.StartDate.Format(availability.DateLayout), endDate,
		int(w.Days), clockText(w.StartTime), clockText(w.EndTime)).Scan(&w.ID)
	if err != nil {
		return mapSQLiteError(err)
	}

	for _, specID := range w.SpecializationIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO window_specializations (window_id, specialization_id) VALUES (?, ?)`, w.ID, specID); err != nil {
			return mapSQLiteError(err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) ListBookings(ctx context.Context, providerID int, from, to *time.Time) ([]availability.Booking, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if from != nil && to != nil {
		q := `SELECT id, provider_id, start_at, end_at FROM bookings
		      WHERE provider_id = ? AND end_at > ? AND start_at < ?
		      ORDER BY start_at`
		rows, err = s.db.QueryContext(ctx, q, providerID, s.timestamp(*from), s.timestamp(*to))
	} else {
		q := `SELECT id, provider_id, start_at, end_at FROM bookings
		      WHERE provider_id = ?
		      ORDER BY start_at`
		rows, err = s.db.QueryContext(ctx, q, providerID)
	}
	if err != nil {
		return nil, err
	}
	return s.scanBookings(rows)
}

func (s *SQLite) CreateBooking(ctx context.Context, b *availability.Booking) error {
	if err := validateBooking(b); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	start, end := s.timestamp(b.Start), s.timestamp(b.End)
	var existingID int
	checkQ := `SELECT id FROM bookings
	           WHERE provider_id = ? AND start_at < ? AND end_at > ?
	           LIMIT 1`
	err = tx.QueryRowContext(ctx, checkQ, b.ProviderID, end, start).Scan(&existingID)
	if err == nil {
		return fmt.Errorf("%w: overlaps booking %d", ErrConflict, existingID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	insertQ := `INSERT INTO bookings (provider_id, start_at, end_at) VALUES (?, ?, ?) RETURNING id`
	if err := tx.QueryRowContext(ctx, insertQ, b.ProviderID, start, end).Scan(&b.ID); err != nil {
		return mapSQLiteError(err)
	}
	return tx.Commit()
}

func (s *SQLite) CancelBooking(ctx context.Context, id int) (availability.Booking, error) {
	var (
		b          availability.Booking
		start, end string
	)
	q := `DELETE FROM bookings WHERE id = ? RETURNING id, provider_id, start_at, end_at`
	err := s.db.QueryRowContext(ctx, q, id).Scan(&b.ID, &b.ProviderID, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return b, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return b, err
	}
	if b.Start, err = s.parseTimestamp(start); err != nil {
		return b, err
	}
	if b.End, err = s.parseTimestamp(end); err != nil {
		return b, err
	}
	return b, nil
}

func (s *SQLite) scanBookings(rows *sql.Rows) ([]availability.Booking, error) {
	defer rows.Close()

	var out []availability.Booking
	for rows.Next() {
		var (
			b          availability.Booking
			start, end string
		)
		if err := rows.Scan(&b.ID, &b.ProviderID, &start, &end); err != nil {
			return nil, err
		}
		var err error
		if b.Start, err = s.parseTimestamp(start); err != nil {
			return nil, err
		}
		if b.End, err = s.parseTimestamp(end); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLite) fillWindow(w *availability.Window, start string, end sql.NullString, days int, startTime, endTime string) error {
	var err error
	if w.StartDate, err = availability.ParseDate(start, s.loc); err != nil {
		return err
	}
	if end.Valid {
		e, err := availability.ParseDate(end.String, s.loc)
		if err != nil {
			return err
		}
		w.EndDate = &e
	}
	w.Days = availability.Weekdays(days)
	if w.StartTime, err = availability.ParseTimeOfDay(startTime); err != nil {
		return err
	}
	if w.EndTime, err = availability.ParseTimeOfDay(endTime); err != nil {
		return err
	}
	return nil
}

func (s *SQLite) timestamp(t time.Time) string {
	return t.In(s.loc).Format(sqliteTimestamp)
}

func (s *SQLite) parseTimestamp(v string) (time.Time, error) {
	t, err := time.ParseInLocation(sqliteTimestamp, v, s.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t, nil
}

// clockText renders a time of day with seconds so stored values sort correctly.
func clockText(t availability.TimeOfDay) string {
	return time.Time{}.Add(time.Duration(t)).Format(sqliteTime)
}

func parseIDList(s string) ([]int, error) {
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parse id list %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func mapSQLiteError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "FOREIGN KEY constraint failed") || strings.Contains(msg, "CHECK constraint failed") {
		return fmt.Errorf("%w: %s", ErrInvalid, msg)
	}
	return err
}
