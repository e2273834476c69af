package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"eventdesk/internal/auth"
	"eventdesk/internal/datetime"
	appLog "eventdesk/internal/log"
	"eventdesk/internal/metrics"
	"eventdesk/internal/model"
	"eventdesk/internal/registration"
	"eventdesk/internal/sorter"
)

// Store is the persistence the HTTP surface reads and writes directly.
// Registration writes go through the registration.Manager instead.
type Store interface {
	Ping(ctx context.Context) error
	GetEvent(ctx context.Context, id string) (model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	CreateEvent(ctx context.Context, ev model.Event) (model.Event, error)
	UpdateEvent(ctx context.Context, ev model.Event) (model.Event, []model.Registration, error)
	GetRegistration(ctx context.Context, id string) (model.Registration, error)
	ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error)
}

// Options wires a Server. Store and Manager are required.
type Options struct {
	Store      Store
	Manager    *registration.Manager
	Normalizer *datetime.Normalizer
	Sorter     *sorter.Sorter
	Verifier   *auth.Verifier
	Metrics    *metrics.Metrics

	Admins []string
	// BaseURL is the public address used in QR codes and feed links.
	BaseURL      string
	CalendarName string
}

// Server provides the public event API and the admin API.
type Server struct {
	store    Store
	manager  *registration.Manager
	norm     *datetime.Normalizer
	sorter   *sorter.Sorter
	verifier *auth.Verifier
	metrics  *metrics.Metrics

	baseURL      string
	calendarName string

	admins atomic.Pointer[[]string]
	mux    *http.ServeMux

	// In-memory cache for /api/events responses, keyed by query. Writes
	// that change what a listing shows drop the whole cache.
	eventsMu    sync.RWMutex
	eventsCache map[string]eventsCacheEntry
}

const eventsCacheTTL = 30 * time.Second

type eventsCacheEntry struct {
	body      any
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(opts Options) *Server {
	norm := opts.Normalizer
	if norm == nil {
		norm = datetime.New(nil)
	}
	srt := opts.Sorter
	if srt == nil {
		srt = sorter.New(norm, sorter.WithMetrics(opts.Metrics))
	}
	s := &Server{
		store:        opts.Store,
		manager:      opts.Manager,
		norm:         norm,
		sorter:       srt,
		verifier:     opts.Verifier,
		metrics:      opts.Metrics,
		baseURL:      opts.BaseURL,
		calendarName: opts.CalendarName,
		mux:          http.NewServeMux(),
		eventsCache:  make(map[string]eventsCacheEntry),
	}
	s.SetAdmins(opts.Admins)
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.sessionMiddleware(s.mux)
}

// SetAdmins replaces the admin allow-list. Safe to call while serving.
func (s *Server) SetAdmins(admins []string) {
	list := append([]string(nil), admins...)
	s.admins.Store(&list)
	appLog.Info("admin allow-list updated", "admins", len(list))
}

// InvalidateEvents drops cached event listings, e.g. after a feed import.
func (s *Server) InvalidateEvents() {
	s.eventsMu.Lock()
	clear(s.eventsCache)
	s.eventsMu.Unlock()
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/events.ics", s.handleEventsICS)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleEvent)
	s.mux.HandleFunc("GET /api/events/{id}/schedule", s.handleSchedule)
	s.mux.HandleFunc("POST /api/events/{id}/register", s.handleRegister)
	s.mux.HandleFunc("GET /api/registrations/{id}/qr", s.requireSession(s.handleTicket))

	s.mux.HandleFunc("POST /api/admin/events", s.requireAdmin(s.handleCreateEvent))
	s.mux.HandleFunc("PUT /api/admin/events/{id}", s.requireAdmin(s.handleUpdateEvent))
	s.mux.HandleFunc("GET /api/admin/events/{id}/registrations", s.requireAdmin(s.handleListRegistrations))
	s.mux.HandleFunc("PATCH /api/admin/registrations/{id}", s.requireAdmin(s.handleChangeStatus))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.store.Ping(r.Context()); err != nil {
		appLog.Error("health: store ping failed", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// sessionMiddleware attaches the caller's session, if any, to the request
// context. A missing or invalid token leaves the request anonymous; routes
// that need a session reject it themselves.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromRequest(r)
		if token == "" || s.verifier == nil {
			next.ServeHTTP(w, r)
			return
		}
		sess, err := s.verifier.Verify(token)
		if err != nil {
			appLog.Debug("session rejected", "path", r.URL.Path, "err", err)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), sess)))
	})
}

func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.SessionFrom(r.Context()).Anonymous() {
			writeError(w, http.StatusUnauthorized, "sign in required")
			return
		}
		next(w, r)
	}
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireSession(func(w http.ResponseWriter, r *http.Request) {
		sess := auth.SessionFrom(r.Context())
		if !s.isAdmin(sess) {
			appLog.Warn("admin route denied", "path", r.URL.Path, "email", sess.Email)
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, r)
	})
}

func (s *Server) isAdmin(sess model.Session) bool {
	return auth.IsAdmin(*s.admins.Load(), sess)
}

func (s *Server) cachedEvents(key string) (any, bool) {
	s.eventsMu.RLock()
	ec, ok := s.eventsCache[key]
	s.eventsMu.RUnlock()
	if !ok || time.Since(ec.updatedAt) >= eventsCacheTTL {
		return nil, false
	}
	return ec.body, true
}

func (s *Server) storeEvents(key string, body any) {
	s.eventsMu.Lock()
	s.eventsCache[key] = eventsCacheEntry{body: body, updatedAt: time.Now()}
	s.eventsMu.Unlock()
}

// maxBodySize caps JSON request bodies.
const maxBodySize = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
