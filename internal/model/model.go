// Package model holds the event and registration types shared across eventdesk.
package model

import "time"

// Event is one scheduled community activity as stored. Date and time fields
// keep the text an administrator typed; normalisation happens on read
// (internal/datetime) and is never written back.
type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// DateRaw is ISO yyyy-mm-dd or free-form text such as
	// "September 14-15, 2025".
	DateRaw string `json:"date"`
	// TimeRange is free-form, e.g. "7:00pm-11pm".
	TimeRange string `json:"time_range"`
	// ScheduleRaw holds one agenda entry per line. Empty means no agenda.
	ScheduleRaw string `json:"schedule,omitempty"`

	// Capacity is nil for unlimited events.
	Capacity *int `json:"capacity,omitempty"`
	// ConfirmedCount counts registrations in a Counted status.
	ConfirmedCount int `json:"confirmed_count"`

	// ExternalUID is the iCalendar UID for events imported from a feed.
	ExternalUID string `json:"external_uid,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SpotsLeft reports remaining capacity. The bool is false for unlimited
// events.
func (e Event) SpotsLeft() (int, bool) {
	if e.Capacity == nil {
		return 0, false
	}
	left := *e.Capacity - e.ConfirmedCount
	if left < 0 {
		left = 0
	}
	return left, true
}

// ScheduleItem is one parsed agenda line.
type ScheduleItem struct {
	// Time is "7:00 PM", "7:00 PM - 9:00 PM" or empty.
	Time     string `json:"time"`
	Activity string `json:"activity"`
}

type Status string

const (
	StatusConfirmed  Status = "confirmed"
	StatusPending    Status = "pending"
	StatusCancelled  Status = "cancelled"
	StatusWaitlisted Status = "waitlisted"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusPending, StatusCancelled, StatusWaitlisted:
		return true
	}
	return false
}

// Counted reports whether a registration in this status occupies a spot.
func (s Status) Counted() bool {
	return s == StatusConfirmed || s == StatusPending
}

// CanTransition reports whether an administrator may move a registration
// from s to to. Cancellation is terminal.
func (s Status) CanTransition(to Status) bool {
	if !s.Valid() || !to.Valid() || s == to {
		return false
	}
	return s != StatusCancelled
}

// Registration is one participant's claim on an event.
type Registration struct {
	ID                  string `json:"id"`
	EventID             string `json:"event_id"`
	Name                string `json:"name"`
	Email               string `json:"email"`
	Phone               string `json:"phone"`
	EmergencyContact    string `json:"emergency_contact,omitempty"`
	DietaryRequirements string `json:"dietary_requirements,omitempty"`
	AdditionalInfo      string `json:"additional_info,omitempty"`

	Status         Status `json:"status"`
	IdempotencyKey string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session identifies the caller of a request, as asserted by the external
// auth provider.
type Session struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

// Anonymous reports whether no identity is attached.
func (s Session) Anonymous() bool {
	return s.Email == "" && s.Subject == ""
}
