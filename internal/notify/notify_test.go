package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventdesk/internal/model"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject, data})
	return nil
}

func TestNATSNotifierPublishes(t *testing.T) {
	pub := &fakePublisher{}
	n := newNATSNotifier(pub, "community.")

	ev := model.Event{ID: "ev1", Title: "Salsa Night", DateRaw: "2025-09-14"}
	reg := model.Registration{ID: "r1", Name: "Ana", Email: "ana@example.com", Status: model.StatusWaitlisted}
	require.NoError(t, n.Notify(context.Background(), NewNotice(KindWaitlisted, ev, reg)))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "community.registration.waitlisted", pub.msgs[0].subject)

	var got Notice
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &got))
	assert.Equal(t, KindWaitlisted, got.Kind)
	assert.Equal(t, "r1", got.RegistrationID)
	assert.Equal(t, "Salsa Night", got.EventTitle)
	assert.Equal(t, model.StatusWaitlisted, got.Status)
}

func TestNATSNotifierDefaults(t *testing.T) {
	n := newNATSNotifier(&fakePublisher{}, "")
	assert.Equal(t, "eventdesk.registration.promoted", n.Subject(KindPromoted))
	assert.NoError(t, n.Close())
}

func TestNATSNotifierErrors(t *testing.T) {
	boom := errors.New("boom")
	n := newNATSNotifier(&fakePublisher{err: boom}, "x")
	err := n.Notify(context.Background(), Notice{Kind: KindConfirmed})
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Notify(ctx, Notice{Kind: KindConfirmed}), context.Canceled)
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, KindConfirmed, KindFor(model.StatusConfirmed))
	assert.Equal(t, KindWaitlisted, KindFor(model.StatusWaitlisted))
	assert.Equal(t, KindCancelled, KindFor(model.StatusCancelled))
	assert.Equal(t, KindPending, KindFor(model.StatusPending))
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, LogNotifier{}.Notify(context.Background(), Notice{Kind: KindConfirmed}))
}
