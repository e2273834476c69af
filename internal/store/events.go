package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"eventdesk/internal/model"
)

const eventColumns = `id, title, description, date_raw, time_range, schedule_raw,
	capacity, confirmed_count, external_uid, created_at, updated_at`

func scanEvent(row scanner) (model.Event, error) {
	var (
		e        model.Event
		capacity sql.NullInt64
		uid      sql.NullString
		created  string
		updated  string
	)
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.DateRaw, &e.TimeRange, &e.ScheduleRaw,
		&capacity, &e.ConfirmedCount, &uid, &created, &updated)
	if err != nil {
		return model.Event{}, err
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		e.Capacity = &c
	}
	e.ExternalUID = uid.String
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)
	return e, nil
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getEvent(ctx context.Context, q rowQuerier, id string) (model.Event, error) {
	e, err := scanEvent(q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (model.Event, error) {
	return getEvent(ctx, s.db, id)
}

// ListEvents returns every event in creation order. Display ordering is
// the sorter's job.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CreateEvent inserts ev with a fresh ID and a zero confirmed count.
func (s *Store) CreateEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	now := s.now()
	ev.ConfirmedCount = 0
	ev.CreatedAt, ev.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		ev.ID, ev.Title, ev.Description, ev.DateRaw, ev.TimeRange, ev.ScheduleRaw,
		nullInt(ev.Capacity), nullString(ev.ExternalUID), formatTime(now), formatTime(now))
	if err != nil {
		return model.Event{}, fmt.Errorf("create event: %w", err)
	}
	return ev, nil
}

// UpdateEvent overwrites the editable fields of an existing event. Lowering
// capacity below the confirmed count fails with ErrCapacityBelowCount.
// Raising it (or removing the limit) promotes waitlisted registrations,
// which are returned oldest first.
func (s *Store) UpdateEvent(ctx context.Context, ev model.Event) (model.Event, []model.Registration, error) {
	var (
		updated  model.Event
		promoted []model.Registration
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		cur, err := getEvent(ctx, tx, ev.ID)
		if err != nil {
			return err
		}
		if ev.Capacity != nil && *ev.Capacity < cur.ConfirmedCount {
			return fmt.Errorf("capacity %d, confirmed %d: %w", *ev.Capacity, cur.ConfirmedCount, ErrCapacityBelowCount)
		}

		now := s.now()
		_, err = tx.ExecContext(ctx, `
			UPDATE events
			SET title = ?, description = ?, date_raw = ?, time_range = ?, schedule_raw = ?,
				capacity = ?, updated_at = ?
			WHERE id = ?`,
			ev.Title, ev.Description, ev.DateRaw, ev.TimeRange, ev.ScheduleRaw,
			nullInt(ev.Capacity), formatTime(now), ev.ID)
		if checkViolation(err) {
			return fmt.Errorf("update event %s: %w", ev.ID, ErrCapacityBelowCount)
		}
		if err != nil {
			return fmt.Errorf("update event %s: %w", ev.ID, err)
		}

		if promoted, err = s.promoteWaitlist(ctx, tx, ev.ID, ""); err != nil {
			return err
		}
		updated, err = getEvent(ctx, tx, ev.ID)
		return err
	})
	if err != nil {
		return model.Event{}, nil, err
	}
	return updated, promoted, nil
}

// UpsertImportedEvent creates or refreshes an event keyed by its feed UID.
// Only feed-owned fields are refreshed; capacity, agenda and counts set
// locally are left alone. The bool reports whether a row was created.
func (s *Store) UpsertImportedEvent(ctx context.Context, ev model.Event) (model.Event, bool, error) {
	if ev.ExternalUID == "" {
		return model.Event{}, false, errors.New("upsert imported event: missing external uid")
	}

	var (
		out     model.Event
		created bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM events WHERE external_uid = ?`, ev.ExternalUID).Scan(&id)
		now := formatTime(s.now())
		switch {
		case errors.Is(err, sql.ErrNoRows):
			created = true
			id = uuid.NewString()
			_, err = tx.ExecContext(ctx, `
				INSERT INTO events (`+eventColumns+`)
				VALUES (?, ?, ?, ?, ?, '', NULL, 0, ?, ?, ?)`,
				id, ev.Title, ev.Description, ev.DateRaw, ev.TimeRange, ev.ExternalUID, now, now)
		case err == nil:
			_, err = tx.ExecContext(ctx, `
				UPDATE events
				SET title = ?, description = ?, date_raw = ?, time_range = ?, updated_at = ?
				WHERE id = ?`,
				ev.Title, ev.Description, ev.DateRaw, ev.TimeRange, now, id)
		}
		if err != nil {
			return fmt.Errorf("upsert event %s: %w", ev.ExternalUID, err)
		}
		out, err = getEvent(ctx, tx, id)
		return err
	})
	if err != nil {
		return model.Event{}, false, err
	}
	return out, created, nil
}
