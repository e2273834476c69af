package registration

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventdesk/internal/metrics"
	"eventdesk/internal/model"
	"eventdesk/internal/notify"
	"eventdesk/internal/store"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
	err     error
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return r.err
}

func (r *recordingNotifier) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, len(r.notices))
	for i, n := range r.notices {
		out[i] = n.Kind
	}
	return out
}

// stubStore returns canned answers and records what it was asked.
type stubStore struct {
	event     model.Event
	getErr    error
	insertRes InsertResult
	insertErr error
	change    StatusChange
	changeErr error

	inserted []model.Registration
	hashes   []string
}

func (s *stubStore) GetEvent(_ context.Context, id string) (model.Event, error) {
	if s.getErr != nil {
		return model.Event{}, s.getErr
	}
	return s.event, nil
}

func (s *stubStore) InsertRegistrationIfCapacityAvailable(_ context.Context, reg model.Registration, hash string) (InsertResult, error) {
	s.inserted = append(s.inserted, reg)
	s.hashes = append(s.hashes, hash)
	if s.insertErr != nil {
		return InsertResult{}, s.insertErr
	}
	res := s.insertRes
	res.Registration = reg
	return res, nil
}

func (s *stubStore) UpdateRegistrationStatus(_ context.Context, id string, to model.Status) (StatusChange, error) {
	return s.change, s.changeErr
}

func validRequest(eventID string) Request {
	return Request{
		EventID: eventID,
		Name:    "Ana Souza",
		Email:   "ana@example.com",
		Phone:   "+1 (555) 010-0199",
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "reg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterCapacityTwoThirdIsWaitlisted(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	capacity := 2
	ev, err := s.CreateEvent(ctx, model.Event{Title: "Salsa Night", DateRaw: "2025-09-14", Capacity: &capacity})
	require.NoError(t, err)

	n := &recordingNotifier{}
	m := metrics.New()
	mgr := NewManager(s, n, m)

	var results []Result
	for i := range 3 {
		req := validRequest(ev.ID)
		req.Email = fmt.Sprintf("p%d@example.com", i)
		res, err := mgr.Register(ctx, req)
		require.NoError(t, err)
		results = append(results, res)
	}

	assert.Equal(t, OutcomeConfirmed, results[0].Outcome)
	require.NotNil(t, results[0].SpotsLeft)
	assert.Equal(t, 1, *results[0].SpotsLeft)
	assert.Equal(t, OutcomeConfirmed, results[1].Outcome)
	assert.Equal(t, 0, *results[1].SpotsLeft)
	assert.Equal(t, OutcomeWaitlisted, results[2].Outcome)
	assert.Equal(t, 0, *results[2].SpotsLeft)
	assert.Contains(t, results[2].Message, "waitlist")

	assert.Equal(t, []notify.Kind{notify.KindConfirmed, notify.KindConfirmed, notify.KindWaitlisted}, n.kinds())
	assert.Equal(t, 2.0, registrationCounter(t, m, "confirmed"))
	assert.Equal(t, 1.0, registrationCounter(t, m, "waitlisted"))
}

func registrationCounter(t *testing.T, m *metrics.Metrics, outcome string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "eventdesk_registration_outcomes_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestRegisterIsIdempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	ev, err := s.CreateEvent(ctx, model.Event{Title: "Hike", DateRaw: "2025-10-01"})
	require.NoError(t, err)

	n := &recordingNotifier{}
	mgr := NewManager(s, n, nil)

	first, err := mgr.Register(ctx, validRequest(ev.ID))
	require.NoError(t, err)
	assert.Nil(t, first.SpotsLeft)

	// Same submission, differently formatted email: a replay.
	req := validRequest(ev.ID)
	req.Email = "  ANA@example.com "
	again, err := mgr.Register(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Registration.ID, again.Registration.ID)
	assert.Len(t, n.kinds(), 1, "replays are not notified twice")

	// Same person, different details.
	req.Phone = "555 123 4567"
	conflict, err := mgr.Register(ctx, req)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.Equal(t, OutcomeRejected, conflict.Outcome)

	// Same email under a client-chosen key.
	req = validRequest(ev.ID)
	req.IdempotencyKey = "tab-2"
	dup, err := mgr.Register(ctx, req)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.Equal(t, OutcomeRejected, dup.Outcome)

	got, err := s.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ConfirmedCount)
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		fields []string
	}{
		{"missing name", func(r *Request) { r.Name = "  " }, []string{"name"}},
		{"missing email", func(r *Request) { r.Email = "" }, []string{"email"}},
		{"bad email", func(r *Request) { r.Email = "ana@" }, []string{"email"}},
		{"no tld", func(r *Request) { r.Email = "ana@localhost" }, []string{"email"}},
		{"display name", func(r *Request) { r.Email = "Ana <ana@example.com>" }, []string{"email"}},
		{"short phone", func(r *Request) { r.Phone = "12-34" }, []string{"phone"}},
		{"everything", func(r *Request) { *r = Request{EventID: r.EventID} }, []string{"name", "email", "phone"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &stubStore{}
			mgr := NewManager(st, nil, nil)
			req := validRequest("ev")
			tt.mutate(&req)

			res, err := mgr.Register(context.Background(), req)
			assert.Equal(t, OutcomeRejected, res.Outcome)
			assert.NotEmpty(t, res.Message)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			for _, f := range tt.fields {
				assert.Contains(t, verr.Fields, f)
			}
			assert.Len(t, verr.Fields, len(tt.fields))
			assert.Empty(t, st.inserted, "invalid requests never reach the store")
		})
	}
}

func TestRegisterStoreFailures(t *testing.T) {
	boom := errors.New("disk on fire")

	t.Run("unknown event", func(t *testing.T) {
		mgr := NewManager(&stubStore{getErr: fmt.Errorf("event x: %w", store.ErrNotFound)}, nil, nil)
		res, err := mgr.Register(context.Background(), validRequest("x"))
		assert.ErrorIs(t, err, ErrEventNotFound)
		assert.Equal(t, OutcomeError, res.Outcome)
	})

	t.Run("lookup error", func(t *testing.T) {
		mgr := NewManager(&stubStore{getErr: boom}, nil, nil)
		res, err := mgr.Register(context.Background(), validRequest("x"))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, OutcomeError, res.Outcome)
		assert.Equal(t, msgTryAgain, res.Message)
	})

	t.Run("insert error", func(t *testing.T) {
		mgr := NewManager(&stubStore{insertErr: boom}, nil, nil)
		res, err := mgr.Register(context.Background(), validRequest("x"))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, OutcomeError, res.Outcome)
		assert.Nil(t, res.Registration)
	})
}

func TestRegisterNotifyFailureKeepsOutcome(t *testing.T) {
	capacity := 10
	st := &stubStore{
		event:     model.Event{ID: "ev", Title: "Hike", Capacity: &capacity},
		insertRes: InsertResult{Accepted: true, NewCount: 4, Capacity: &capacity},
	}
	m := metrics.New()
	mgr := NewManager(st, &recordingNotifier{err: errors.New("nats down")}, m)

	res, err := mgr.Register(context.Background(), validRequest("ev"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	require.NotNil(t, res.SpotsLeft)
	assert.Equal(t, 6, *res.SpotsLeft, "spots left comes from the store count")
}

func TestRegisterDerivesKeyAndHash(t *testing.T) {
	st := &stubStore{event: model.Event{ID: "ev"}, insertRes: InsertResult{Accepted: true}}
	mgr := NewManager(st, nil, nil)

	_, err := mgr.Register(context.Background(), validRequest("ev"))
	require.NoError(t, err)
	req := validRequest("ev")
	req.IdempotencyKey = "client-key"
	_, err = mgr.Register(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, st.inserted, 2)
	assert.Equal(t, DeriveKey("ev", "ANA@example.com"), st.inserted[0].IdempotencyKey)
	assert.Equal(t, "client-key", st.inserted[1].IdempotencyKey)
	assert.Equal(t, st.hashes[0], st.hashes[1], "the key is not part of the request hash")
	assert.NotEqual(t, DeriveKey("ev", "ana@example.com"), DeriveKey("other", "ana@example.com"))
}

func TestChangeStatusNotifiesPromotions(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	capacity := 1
	ev, err := s.CreateEvent(ctx, model.Event{Title: "Workshop", DateRaw: "2025-11-01", Capacity: &capacity})
	require.NoError(t, err)

	n := &recordingNotifier{}
	mgr := NewManager(s, n, nil)

	first := validRequest(ev.ID)
	a, err := mgr.Register(ctx, first)
	require.NoError(t, err)
	second := validRequest(ev.ID)
	second.Email = "bo@example.com"
	b, err := mgr.Register(ctx, second)
	require.NoError(t, err)
	require.Equal(t, OutcomeWaitlisted, b.Outcome)

	change, err := mgr.ChangeStatus(ctx, a.Registration.ID, model.StatusCancelled)
	require.NoError(t, err)
	require.Len(t, change.Promoted, 1)
	assert.Equal(t, b.Registration.ID, change.Promoted[0].ID)

	assert.Equal(t, []notify.Kind{
		notify.KindConfirmed, notify.KindWaitlisted, notify.KindCancelled, notify.KindPromoted,
	}, n.kinds())

	_, err = mgr.ChangeStatus(ctx, a.Registration.ID, model.Status("archived"))
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
}
