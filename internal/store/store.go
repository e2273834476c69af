// Package store persists events and registrations in SQLite.
//
// Capacity is enforced in the database: confirmed_count is only ever
// changed by a conditional UPDATE inside the same transaction that writes
// the registration row, and CHECK constraints reject anything that would
// push it below zero or above capacity.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"eventdesk/internal/model"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrCapacityBelowCount  = errors.New("capacity is below the number of confirmed registrations")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrEventFull           = errors.New("event is full")
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")
	ErrAlreadyRegistered   = errors.New("email already registered for this event")
)

// InsertResult is the outcome of InsertRegistrationIfCapacityAvailable.
type InsertResult struct {
	// Registration is the stored row: the new one, or the original when the
	// idempotency key was replayed.
	Registration model.Registration
	// Accepted is true when the registration holds a spot.
	Accepted bool
	// NewCount is the event's confirmed_count after the transaction.
	NewCount int
	// Capacity is the event's capacity at commit time; nil is unlimited.
	Capacity *int
	// Duplicate marks an idempotent replay; nothing was written.
	Duplicate bool
}

// StatusChange is the outcome of UpdateRegistrationStatus.
type StatusChange struct {
	Registration model.Registration
	Previous     model.Status
	Event        model.Event
	// Promoted lists waitlisted registrations confirmed because a spot
	// was freed, oldest first.
	Promoted []model.Registration
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id              TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	date_raw        TEXT NOT NULL DEFAULT '',
	time_range      TEXT NOT NULL DEFAULT '',
	schedule_raw    TEXT NOT NULL DEFAULT '',
	capacity        INTEGER CHECK (capacity IS NULL OR capacity > 0),
	confirmed_count INTEGER NOT NULL DEFAULT 0 CHECK (confirmed_count >= 0),
	external_uid    TEXT UNIQUE,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL,
	CHECK (capacity IS NULL OR confirmed_count <= capacity)
);

CREATE TABLE IF NOT EXISTS registrations (
	id                   TEXT PRIMARY KEY,
	event_id             TEXT NOT NULL REFERENCES events(id),
	name                 TEXT NOT NULL,
	email                TEXT NOT NULL,
	phone                TEXT NOT NULL,
	emergency_contact    TEXT NOT NULL DEFAULT '',
	dietary_requirements TEXT NOT NULL DEFAULT '',
	additional_info      TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL CHECK (status IN ('confirmed', 'pending', 'cancelled', 'waitlisted')),
	idempotency_key      TEXT UNIQUE,
	request_hash         TEXT NOT NULL DEFAULT '',
	created_at           TEXT NOT NULL,
	updated_at           TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS registrations_active_email
	ON registrations (event_id, email) WHERE status != 'cancelled';

CREATE INDEX IF NOT EXISTS registrations_event_status
	ON registrations (event_id, status);
`

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" only in single-connection setups; Open already
// limits the pool to one connection.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection serialises every
	// transaction and avoids "database is locked".
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// uniqueViolation reports whether err is a UNIQUE constraint failure and,
// if so, its message (which names the index or column).
func uniqueViolation(err error) (string, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return "", false
	}
	if se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return "", false
	}
	return se.Error(), true
}

// checkViolation reports whether err is a CHECK constraint failure.
func checkViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_CHECK
}
