package web

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strings"
	"time"

	"eventdesk/internal/auth"
	appLog "eventdesk/internal/log"
	"eventdesk/internal/model"
	"eventdesk/internal/store"
)

// eventInput is the body of the admin create and update calls.
type eventInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	TimeRange   string `json:"time_range"`
	Schedule    string `json:"schedule"`
	// Capacity is omitted or null for unlimited events.
	Capacity *int `json:"capacity"`
}

func (in eventInput) validate() map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(in.Title) == "" {
		fields["title"] = "is required"
	}
	if strings.TrimSpace(in.Date) == "" {
		fields["date"] = "is required"
	}
	if in.Capacity != nil && *in.Capacity <= 0 {
		fields["capacity"] = "must be positive, or omitted for unlimited"
	}
	return fields
}

func (in eventInput) event(id string) model.Event {
	return model.Event{
		ID:          id,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		DateRaw:     strings.TrimSpace(in.Date),
		TimeRange:   strings.TrimSpace(in.TimeRange),
		ScheduleRaw: in.Schedule,
		Capacity:    in.Capacity,
	}
}

type fieldErrors struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// readEventInput decodes and validates the body, writing a 400 itself when
// it is unusable.
func (s *Server) readEventInput(w http.ResponseWriter, r *http.Request) (eventInput, bool) {
	var in eventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return in, false
	}
	if fields := in.validate(); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrors{Error: "invalid event", Fields: fields})
		return in, false
	}
	if _, ok := s.norm.ComparableDate(in.Date); !ok {
		// Free-form dates are allowed; they sort as the oldest past event.
		appLog.Warn("admin event date is not machine-readable", "date", in.Date)
	}
	return in, true
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	in, ok := s.readEventInput(w, r)
	if !ok {
		return
	}
	ev, err := s.store.CreateEvent(r.Context(), in.event(""))
	if err != nil {
		appLog.Error("admin: create event failed", err)
		writeError(w, http.StatusServiceUnavailable, "failed to create event")
		return
	}
	s.InvalidateEvents()
	appLog.Info("event created", "event", ev.ID, "by", auth.SessionFrom(r.Context()).Email)
	writeJSON(w, http.StatusCreated, newEventView(ev))
}

// handleUpdateEvent replaces an event's editable fields. Raising capacity
// promotes waitlisted registrations, who are notified.
func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	in, ok := s.readEventInput(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	ev, promoted, err := s.store.UpdateEvent(r.Context(), in.event(id))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
		return
	case errors.Is(err, store.ErrCapacityBelowCount):
		writeError(w, http.StatusConflict, "capacity is below the number of confirmed registrations")
		return
	case err != nil:
		appLog.Error("admin: update event failed", err, "event", id)
		writeError(w, http.StatusServiceUnavailable, "failed to update event")
		return
	}

	s.manager.Promoted(r.Context(), ev, promoted)
	s.InvalidateEvents()
	appLog.Info("event updated", "event", ev.ID, "promoted", len(promoted), "by", auth.SessionFrom(r.Context()).Email)
	writeJSON(w, http.StatusOK, struct {
		eventView
		Promoted []model.Registration `json:"promoted"`
	}{newEventView(ev), nonNil(promoted)})
}

var csvHeader = []string{
	"ID", "Name", "Email", "Phone", "Emergency contact",
	"Dietary requirements", "Additional info", "Status", "Registered at",
}

// handleListRegistrations lists an event's registrations in registration
// order, as JSON or, with ?format=csv, as a spreadsheet-friendly download.
func (s *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.loadEvent(w, r)
	if !ok {
		return
	}
	regs, err := s.store.ListRegistrations(r.Context(), ev.ID)
	if err != nil {
		appLog.Error("admin: list registrations failed", err, "event", ev.ID)
		writeError(w, http.StatusServiceUnavailable, "registrations are temporarily unavailable")
		return
	}

	if r.URL.Query().Get("format") != "csv" {
		writeJSON(w, http.StatusOK, struct {
			Event         eventView            `json:"event"`
			Registrations []model.Registration `json:"registrations"`
		}{newEventView(ev), nonNil(regs)})
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="registrations-`+ev.ID+`.csv"`)
	w.WriteHeader(http.StatusOK)

	// UTF-8 BOM so spreadsheet apps pick the right encoding.
	_, _ = w.Write([]byte("\xEF\xBB\xBF"))
	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)
	for _, reg := range regs {
		_ = cw.Write([]string{
			reg.ID,
			reg.Name,
			reg.Email,
			reg.Phone,
			reg.EmergencyContact,
			reg.DietaryRequirements,
			reg.AdditionalInfo,
			string(reg.Status),
			reg.CreatedAt.Format(time.RFC3339),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		appLog.Error("admin: csv export failed", err, "event", ev.ID)
	}
}

// handleChangeStatus moves a registration to another status.
//
// PATCH /api/admin/registrations/{id}  {"status": "cancelled"}
func (s *Server) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status model.Status `json:"status"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := r.PathValue("id")
	change, err := s.manager.ChangeStatus(r.Context(), id, body.Status)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "registration not found")
		return
	case errors.Is(err, store.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "status change not allowed")
		return
	case errors.Is(err, store.ErrEventFull):
		writeError(w, http.StatusConflict, "event is full")
		return
	case err != nil:
		appLog.Error("admin: change status failed", err, "registration", id)
		writeError(w, http.StatusServiceUnavailable, "failed to change status")
		return
	}

	s.InvalidateEvents()
	writeJSON(w, http.StatusOK, struct {
		Registration model.Registration   `json:"registration"`
		Previous     model.Status         `json:"previous"`
		Promoted     []model.Registration `json:"promoted"`
	}{change.Registration, change.Previous, nonNil(change.Promoted)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
