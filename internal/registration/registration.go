// Package registration decides what happens to a registration attempt:
// confirmed, waitlisted, rejected, or failed.
//
// The capacity decision itself belongs to the Store, which must make it
// atomically. The Manager validates input, derives idempotency keys, maps
// store results and errors to outcomes, and publishes notices.
package registration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"eventdesk/internal/log"
	"eventdesk/internal/metrics"
	"eventdesk/internal/model"
	"eventdesk/internal/notify"
	"eventdesk/internal/store"
)

type Outcome string

const (
	OutcomeConfirmed  Outcome = "confirmed"
	OutcomeWaitlisted Outcome = "waitlisted"
	OutcomeError      Outcome = "error"
	OutcomeRejected   Outcome = "rejected"
)

var (
	ErrEventNotFound = errors.New("event not found")

	ErrIdempotencyConflict = store.ErrIdempotencyConflict
	ErrAlreadyRegistered   = store.ErrAlreadyRegistered
)

type (
	InsertResult = store.InsertResult
	StatusChange = store.StatusChange
)

// Store is the persistence the Manager needs. *store.Store implements it.
type Store interface {
	GetEvent(ctx context.Context, id string) (model.Event, error)
	InsertRegistrationIfCapacityAvailable(ctx context.Context, reg model.Registration, requestHash string) (InsertResult, error)
	UpdateRegistrationStatus(ctx context.Context, id string, to model.Status) (StatusChange, error)
}

// Request is one submission of the registration form.
type Request struct {
	EventID             string `json:"-"`
	Name                string `json:"name"`
	Email               string `json:"email"`
	Phone               string `json:"phone"`
	EmergencyContact    string `json:"emergency_contact,omitempty"`
	DietaryRequirements string `json:"dietary_requirements,omitempty"`
	AdditionalInfo      string `json:"additional_info,omitempty"`
	// IdempotencyKey is optional; one is derived from event and email when
	// empty.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Result is reported back to the participant. Message is always set.
type Result struct {
	Outcome      Outcome             `json:"outcome"`
	Message      string              `json:"message"`
	Registration *model.Registration `json:"registration,omitempty"`
	// SpotsLeft is nil for unlimited events and for failed attempts.
	SpotsLeft *int `json:"spots_left,omitempty"`
	// Replayed is true when an identical earlier submission was returned.
	Replayed bool `json:"replayed,omitempty"`
}

type Manager struct {
	store    Store
	notifier notify.Notifier
	metrics  *metrics.Metrics
}

// NewManager wires a Manager. notifier and m may be nil.
func NewManager(s Store, notifier notify.Notifier, m *metrics.Metrics) *Manager {
	return &Manager{store: s, notifier: notifier, metrics: m}
}

// Register runs one registration attempt. The returned error is non-nil for
// every outcome other than confirmed and waitlisted; Result is always
// usable.
func (m *Manager) Register(ctx context.Context, req Request) (Result, error) {
	req = req.normalized()

	if err := req.Validate(); err != nil {
		return m.finish(Result{Outcome: OutcomeRejected, Message: err.Error()}), err
	}

	ev, err := m.store.GetEvent(ctx, req.EventID)
	if errors.Is(err, store.ErrNotFound) {
		return m.finish(Result{Outcome: OutcomeError, Message: "This event does not exist."}),
			fmt.Errorf("%w: %s", ErrEventNotFound, req.EventID)
	}
	if err != nil {
		log.Error("registration: load event failed", err, "event", req.EventID)
		return m.finish(Result{Outcome: OutcomeError, Message: msgTryAgain}), fmt.Errorf("load event: %w", err)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = DeriveKey(req.EventID, req.Email)
	}
	reg := model.Registration{
		ID:                  uuid.NewString(),
		EventID:             req.EventID,
		Name:                req.Name,
		Email:               req.Email,
		Phone:               req.Phone,
		EmergencyContact:    req.EmergencyContact,
		DietaryRequirements: req.DietaryRequirements,
		AdditionalInfo:      req.AdditionalInfo,
		IdempotencyKey:      key,
	}

	res, err := m.store.InsertRegistrationIfCapacityAvailable(ctx, reg, req.Hash())
	switch {
	case errors.Is(err, store.ErrAlreadyRegistered):
		return m.finish(Result{Outcome: OutcomeRejected, Message: "This email is already registered for this event."}), err
	case errors.Is(err, store.ErrIdempotencyConflict):
		return m.finish(Result{Outcome: OutcomeRejected, Message: "A registration with this email was already submitted with different details."}), err
	case errors.Is(err, store.ErrNotFound):
		return m.finish(Result{Outcome: OutcomeError, Message: "This event does not exist."}),
			fmt.Errorf("%w: %s", ErrEventNotFound, req.EventID)
	case err != nil:
		log.Error("registration: insert failed", err, "event", req.EventID)
		return m.finish(Result{Outcome: OutcomeError, Message: msgTryAgain}), fmt.Errorf("insert registration: %w", err)
	}

	out := Result{
		Registration: &res.Registration,
		SpotsLeft:    spotsLeft(res.Capacity, res.NewCount),
		Replayed:     res.Duplicate,
	}
	if res.Accepted {
		out.Outcome = OutcomeConfirmed
		out.Message = fmt.Sprintf("You're registered for %s.", ev.Title)
	} else {
		out.Outcome = OutcomeWaitlisted
		out.Message = fmt.Sprintf("%s is full. You're on the waitlist and we'll let you know if a spot opens up.", ev.Title)
	}

	if !res.Duplicate {
		m.publish(ctx, notify.NewNotice(notify.Kind(out.Outcome), ev, res.Registration))
	}
	return m.finish(out), nil
}

const msgTryAgain = "We couldn't complete your registration. Please try again."

// ChangeStatus is the administrator transition. Registrations promoted off
// the waitlist by a freed spot are notified along with the changed one.
func (m *Manager) ChangeStatus(ctx context.Context, registrationID string, to model.Status) (StatusChange, error) {
	if !to.Valid() {
		return StatusChange{}, fmt.Errorf("status %q: %w", to, store.ErrInvalidTransition)
	}
	change, err := m.store.UpdateRegistrationStatus(ctx, registrationID, to)
	if err != nil {
		return StatusChange{}, err
	}

	log.Info("registration status changed",
		"registration", registrationID,
		"from", change.Previous,
		"to", change.Registration.Status,
		"promoted", len(change.Promoted),
	)
	m.publish(ctx, notify.NewNotice(notify.KindFor(to), change.Event, change.Registration))
	m.Promoted(ctx, change.Event, change.Promoted)
	return change, nil
}

// Promoted notifies registrations that moved off the waitlist, e.g. after
// an administrator raised the event's capacity.
func (m *Manager) Promoted(ctx context.Context, ev model.Event, regs []model.Registration) {
	m.metrics.WaitlistPromotions(len(regs))
	for _, r := range regs {
		m.publish(ctx, notify.NewNotice(notify.KindPromoted, ev, r))
	}
}

func (m *Manager) publish(ctx context.Context, n notify.Notice) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.metrics.NotifyFailure()
		log.Error("registration: notify failed", err, "kind", n.Kind, "registration", n.RegistrationID)
	}
}

func (m *Manager) finish(r Result) Result {
	m.metrics.RegistrationOutcome(string(r.Outcome))
	return r
}

func spotsLeft(capacity *int, count int) *int {
	if capacity == nil {
		return nil
	}
	left := max(*capacity-count, 0)
	return &left
}

var keyNamespace = uuid.MustParse("0b5d7a6e-2f43-4c55-9a1e-6f1c3d2b8e90")

// DeriveKey is the idempotency key used when the client sends none: one
// active registration per email and event.
func DeriveKey(eventID, email string) string {
	return uuid.NewSHA1(keyNamespace, []byte(eventID+"\x00"+strings.ToLower(strings.TrimSpace(email)))).String()
}

// Hash fingerprints the normalised request so a replayed key can be told
// apart from a reused one.
func (r Request) Hash() string {
	h := sha256.New()
	for _, f := range []string{
		r.EventID, r.Name, r.Email, r.Phone,
		r.EmergencyContact, r.DietaryRequirements, r.AdditionalInfo,
	} {
		h.Write([]byte(f))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (r Request) normalized() Request {
	r.EventID = strings.TrimSpace(r.EventID)
	r.Name = strings.Join(strings.Fields(r.Name), " ")
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.EmergencyContact = strings.TrimSpace(r.EmergencyContact)
	r.DietaryRequirements = strings.TrimSpace(r.DietaryRequirements)
	r.AdditionalInfo = strings.TrimSpace(r.AdditionalInfo)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	return r
}
