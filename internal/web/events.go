package web

import (
	"errors"
	"net/http"
	"strings"

	"eventdesk/internal/auth"
	"eventdesk/internal/datetime"
	"eventdesk/internal/ics"
	appLog "eventdesk/internal/log"
	"eventdesk/internal/model"
	"eventdesk/internal/registration"
	"eventdesk/internal/schedule"
	"eventdesk/internal/store"
	"eventdesk/internal/ticket"
)

// eventView is the JSON shape of an event in listings.
type eventView struct {
	model.Event
	// Time is the canonical form of TimeRange.
	Time      string `json:"time"`
	SpotsLeft *int   `json:"spots_left,omitempty"`
	Full      bool   `json:"full"`
}

// eventDetail adds the parsed agenda to eventView.
type eventDetail struct {
	eventView
	ScheduleItems []model.ScheduleItem `json:"schedule_items"`
}

type partitionResponse struct {
	Upcoming []eventView `json:"upcoming"`
	Past     []eventView `json:"past"`
}

type listResponse struct {
	Events []eventView `json:"events"`
}

func newEventView(e model.Event) eventView {
	v := eventView{Event: e, Time: datetime.FormatTimeRange(e.TimeRange)}
	if left, limited := e.SpotsLeft(); limited {
		v.SpotsLeft = &left
		v.Full = left == 0
	}
	return v
}

func viewsOf(events []model.Event) []eventView {
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, newEventView(e))
	}
	return out
}

// handleEvents lists events.
//
// GET /api/events?q=salsa&view=combined
//   - q:    case-insensitive title/description filter; implies the combined view
//   - view: "combined" returns one list, upcoming first then past
//
// Without either parameter the response is {upcoming, past}.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	view := r.URL.Query().Get("view")

	// Only the two fixed listings are cached; searches are keyed by
	// caller text and always run against the store.
	cacheKey := ""
	switch {
	case q != "":
	case view == "combined":
		cacheKey = "combined"
	default:
		cacheKey = "partition"
	}
	if cacheKey != "" {
		if body, ok := s.cachedEvents(cacheKey); ok {
			writeJSON(w, http.StatusOK, body)
			return
		}
	}

	events, err := s.store.ListEvents(r.Context())
	if err != nil {
		appLog.Error("api events: list failed", err)
		writeError(w, http.StatusServiceUnavailable, "events are temporarily unavailable")
		return
	}

	var body any
	switch {
	case q != "":
		body = listResponse{Events: viewsOf(s.sorter.Search(events, q))}
	case view == "combined":
		body = listResponse{Events: viewsOf(s.sorter.Ordered(events))}
	default:
		p := s.sorter.Partition(events)
		body = partitionResponse{Upcoming: viewsOf(p.Upcoming), Past: viewsOf(p.Past)}
	}

	if cacheKey != "" {
		s.storeEvents(cacheKey, body)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.loadEvent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, eventDetail{
		eventView:     newEventView(ev),
		ScheduleItems: schedule.Items(ev.ScheduleRaw),
	})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.loadEvent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		EventID string               `json:"event_id"`
		Items   []model.ScheduleItem `json:"items"`
	}{ev.ID, schedule.Items(ev.ScheduleRaw)})
}

// loadEvent fetches the {id} event, writing the error response itself when
// it cannot.
func (s *Server) loadEvent(w http.ResponseWriter, r *http.Request) (model.Event, bool) {
	id := r.PathValue("id")
	ev, err := s.store.GetEvent(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return model.Event{}, false
	}
	if err != nil {
		appLog.Error("api event: load failed", err, "event", id)
		writeError(w, http.StatusServiceUnavailable, "event is temporarily unavailable")
		return model.Event{}, false
	}
	return ev, true
}

// handleEventsICS serves upcoming events as an iCalendar feed.
func (s *Server) handleEventsICS(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListEvents(r.Context())
	if err != nil {
		appLog.Error("api events.ics: list failed", err)
		writeError(w, http.StatusServiceUnavailable, "events are temporarily unavailable")
		return
	}
	body := ics.Export(s.sorter.Partition(events).Upcoming, s.norm, ics.ExportOptions{
		Name:    s.calendarName,
		BaseURL: s.baseURL,
	})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

type registerResponse struct {
	registration.Result
	Fields map[string]string `json:"fields,omitempty"`
}

// handleRegister maps registration outcomes onto status codes:
// 201 confirmed, 202 waitlisted, 400 invalid input, 409 duplicate,
// 404 unknown event, 503 store failure.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registration.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.EventID = r.PathValue("id")
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	res, err := s.manager.Register(r.Context(), req)
	resp := registerResponse{Result: res}

	status := http.StatusServiceUnavailable
	var verr *registration.ValidationError
	switch {
	case res.Outcome == registration.OutcomeConfirmed:
		status = http.StatusCreated
	case res.Outcome == registration.OutcomeWaitlisted:
		status = http.StatusAccepted
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		resp.Fields = verr.Fields
	case errors.Is(err, registration.ErrAlreadyRegistered), errors.Is(err, registration.ErrIdempotencyConflict):
		status = http.StatusConflict
	case errors.Is(err, registration.ErrEventNotFound):
		status = http.StatusNotFound
	}

	// A replayed submission answers exactly like the original did.
	if err == nil && !res.Replayed {
		s.InvalidateEvents()
	}
	writeJSON(w, status, resp)
}

// handleTicket serves the check-in QR code of a registration to its owner
// or an administrator.
//
// GET /api/registrations/{id}/qr?size=256
func (s *Server) handleTicket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reg, err := s.store.GetRegistration(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "registration not found")
		return
	}
	if err != nil {
		appLog.Error("api ticket: load failed", err, "registration", id)
		writeError(w, http.StatusServiceUnavailable, "registration is temporarily unavailable")
		return
	}

	sess := auth.SessionFrom(r.Context())
	if !strings.EqualFold(sess.Email, reg.Email) && !s.isAdmin(sess) {
		writeError(w, http.StatusForbidden, "not your registration")
		return
	}

	size := min(max(parseIntDefault(r.URL.Query().Get("size"), ticket.DefaultSize), 64), 1024)
	png, err := ticket.PNG(s.baseURL, reg, size)
	if errors.Is(err, ticket.ErrNoTicket) {
		writeError(w, http.StatusConflict, "registration does not hold a spot")
		return
	}
	if err != nil {
		appLog.Error("api ticket: render failed", err, "registration", id)
		writeError(w, http.StatusInternalServerError, "failed to render ticket")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
