package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"eventdesk/internal/model"
)

const registrationColumns = `id, event_id, name, email, phone, emergency_contact,
	dietary_requirements, additional_info, status, idempotency_key, created_at, updated_at`

func scanRegistration(row scanner) (model.Registration, error) {
	var (
		r       model.Registration
		status  string
		key     sql.NullString
		created string
		updated string
	)
	err := row.Scan(&r.ID, &r.EventID, &r.Name, &r.Email, &r.Phone, &r.EmergencyContact,
		&r.DietaryRequirements, &r.AdditionalInfo, &status, &key, &created, &updated)
	if err != nil {
		return model.Registration{}, err
	}
	r.Status = model.Status(status)
	r.IdempotencyKey = key.String
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return r, nil
}

func getRegistration(ctx context.Context, q rowQuerier, id string) (model.Registration, error) {
	r, err := scanRegistration(q.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Registration{}, fmt.Errorf("registration %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Registration{}, fmt.Errorf("get registration %s: %w", id, err)
	}
	return r, nil
}

func (s *Store) GetRegistration(ctx context.Context, id string) (model.Registration, error) {
	return getRegistration(ctx, s.db, id)
}

// ListRegistrations returns an event's registrations in arrival order,
// including cancelled ones.
func (s *Store) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE event_id = ? ORDER BY rowid`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	regs := []model.Registration{}
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, r)
	}
	return regs, rows.Err()
}

// InsertRegistrationIfCapacityAvailable is the single atomic decision point
// for a registration attempt. In one transaction it
//
//   - replays the stored registration when reg.IdempotencyKey was seen with
//     the same requestHash, or fails with ErrIdempotencyConflict otherwise
//   - takes a spot with a conditional increment of confirmed_count
//   - inserts reg as confirmed when a spot was taken, waitlisted when not
//
// reg.Status is ignored. ErrAlreadyRegistered is returned when the email
// already holds an active registration for the event.
func (s *Store) InsertRegistrationIfCapacityAvailable(ctx context.Context, reg model.Registration, requestHash string) (InsertResult, error) {
	var res InsertResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if reg.IdempotencyKey != "" {
			prev, hash, err := registrationByKey(ctx, tx, reg.IdempotencyKey)
			switch {
			case err == nil:
				if hash != requestHash {
					return ErrIdempotencyConflict
				}
				ev, err := getEvent(ctx, tx, prev.EventID)
				if err != nil {
					return err
				}
				res = InsertResult{
					Registration: prev,
					Accepted:     prev.Status.Counted(),
					NewCount:     ev.ConfirmedCount,
					Capacity:     ev.Capacity,
					Duplicate:    true,
				}
				return nil
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("lookup idempotency key: %w", err)
			}
		}

		accepted, err := takeSpot(ctx, tx, reg.EventID)
		if err != nil {
			return err
		}
		if !accepted {
			// Distinguish "full" from "no such event".
			if _, err := getEvent(ctx, tx, reg.EventID); err != nil {
				return err
			}
		}

		if reg.ID == "" {
			reg.ID = uuid.NewString()
		}
		reg.Status = model.StatusWaitlisted
		if accepted {
			reg.Status = model.StatusConfirmed
		}
		now := s.now()
		reg.CreatedAt, reg.UpdatedAt = now, now

		_, err = tx.ExecContext(ctx, `
			INSERT INTO registrations (`+registrationColumns+`, request_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			reg.ID, reg.EventID, reg.Name, reg.Email, reg.Phone, reg.EmergencyContact,
			reg.DietaryRequirements, reg.AdditionalInfo, string(reg.Status),
			nullString(reg.IdempotencyKey), formatTime(now), formatTime(now), requestHash)
		if msg, ok := uniqueViolation(err); ok {
			if strings.Contains(msg, "idempotency_key") {
				return ErrIdempotencyConflict
			}
			return ErrAlreadyRegistered
		}
		if err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}

		ev, err := getEvent(ctx, tx, reg.EventID)
		if err != nil {
			return err
		}
		res = InsertResult{
			Registration: reg,
			Accepted:     accepted,
			NewCount:     ev.ConfirmedCount,
			Capacity:     ev.Capacity,
		}
		return nil
	})
	if err != nil {
		return InsertResult{}, err
	}
	return res, nil
}

// UpdateRegistrationStatus moves a registration to another status, keeping
// confirmed_count in step. Entering a counted status needs a free spot
// (ErrEventFull otherwise). Leaving one frees the spot and promotes the
// oldest waitlisted registrations into it. Cancelling clears the
// idempotency key so the participant can register again later.
func (s *Store) UpdateRegistrationStatus(ctx context.Context, id string, to model.Status) (StatusChange, error) {
	var change StatusChange
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		reg, err := getRegistration(ctx, tx, id)
		if err != nil {
			return err
		}
		from := reg.Status
		if !from.CanTransition(to) {
			return fmt.Errorf("%s to %s: %w", from, to, ErrInvalidTransition)
		}

		switch {
		case !from.Counted() && to.Counted():
			ok, err := takeSpot(ctx, tx, reg.EventID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrEventFull
			}
		case from.Counted() && !to.Counted():
			if err := releaseSpot(ctx, tx, reg.EventID); err != nil {
				return err
			}
		}

		now := s.now()
		query := `UPDATE registrations SET status = ?, updated_at = ? WHERE id = ?`
		if to == model.StatusCancelled {
			query = `UPDATE registrations SET status = ?, updated_at = ?, idempotency_key = NULL WHERE id = ?`
		}
		if _, err := tx.ExecContext(ctx, query, string(to), formatTime(now), id); err != nil {
			return fmt.Errorf("update registration %s: %w", id, err)
		}

		var promoted []model.Registration
		if from.Counted() && !to.Counted() {
			// A demoted registration stays on the waitlist behind the
			// people already waiting for the spot it freed.
			if promoted, err = s.promoteWaitlist(ctx, tx, reg.EventID, id); err != nil {
				return err
			}
		}

		if reg, err = getRegistration(ctx, tx, id); err != nil {
			return err
		}
		ev, err := getEvent(ctx, tx, reg.EventID)
		if err != nil {
			return err
		}
		change = StatusChange{Registration: reg, Previous: from, Event: ev, Promoted: promoted}
		return nil
	})
	if err != nil {
		return StatusChange{}, err
	}
	return change, nil
}

// takeSpot is the conditional increment. It reports false when the event
// is full or does not exist.
func takeSpot(ctx context.Context, tx *sql.Tx, eventID string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE events
		SET confirmed_count = confirmed_count + 1
		WHERE id = ? AND (capacity IS NULL OR confirmed_count < capacity)`, eventID)
	if err != nil {
		return false, fmt.Errorf("update event capacity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func releaseSpot(ctx context.Context, tx *sql.Tx, eventID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE events
		SET confirmed_count = confirmed_count - 1
		WHERE id = ? AND confirmed_count > 0`, eventID)
	if err != nil {
		return fmt.Errorf("release spot: %w", err)
	}
	return nil
}

// promoteWaitlist confirms waitlisted registrations, oldest first, while the
// event has room. skipID, when set, is never promoted.
func (s *Store) promoteWaitlist(ctx context.Context, tx *sql.Tx, eventID, skipID string) ([]model.Registration, error) {
	var promoted []model.Registration
	for {
		next, err := scanRegistration(tx.QueryRowContext(ctx, `
			SELECT `+registrationColumns+` FROM registrations
			WHERE event_id = ? AND status = 'waitlisted' AND id != ?
			ORDER BY rowid LIMIT 1`, eventID, skipID))
		if errors.Is(err, sql.ErrNoRows) {
			return promoted, nil
		}
		if err != nil {
			return nil, fmt.Errorf("next waitlisted: %w", err)
		}

		ok, err := takeSpot(ctx, tx, eventID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return promoted, nil
		}

		now := s.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE registrations SET status = 'confirmed', updated_at = ? WHERE id = ?`,
			formatTime(now), next.ID); err != nil {
			return nil, fmt.Errorf("promote %s: %w", next.ID, err)
		}
		next.Status = model.StatusConfirmed
		next.UpdatedAt = now
		promoted = append(promoted, next)
	}
}

func registrationByKey(ctx context.Context, tx *sql.Tx, key string) (model.Registration, string, error) {
	var hash string
	row := tx.QueryRowContext(ctx,
		`SELECT `+registrationColumns+`, request_hash FROM registrations WHERE idempotency_key = ?`, key)
	r, err := scanRegistration(hashScanner{row: row, hash: &hash})
	return r, hash, err
}

// hashScanner appends request_hash to the columns scanRegistration reads.
type hashScanner struct {
	row  scanner
	hash *string
}

func (h hashScanner) Scan(dest ...any) error {
	return h.row.Scan(append(dest, h.hash)...)
}
