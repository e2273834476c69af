// Package notify publishes registration notices for downstream delivery
// (email, chat). Delivery itself happens outside this process.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"eventdesk/internal/log"
	"eventdesk/internal/model"
)

type Kind string

const (
	KindConfirmed  Kind = "confirmed"
	KindWaitlisted Kind = "waitlisted"
	KindPromoted   Kind = "promoted"
	KindCancelled  Kind = "cancelled"
	KindPending    Kind = "pending"
)

// KindFor maps a registration status to the notice sent when a
// registration enters it.
func KindFor(s model.Status) Kind {
	switch s {
	case model.StatusConfirmed:
		return KindConfirmed
	case model.StatusWaitlisted:
		return KindWaitlisted
	case model.StatusCancelled:
		return KindCancelled
	default:
		return KindPending
	}
}

// Notice is the JSON payload published for every registration change.
type Notice struct {
	Kind           Kind         `json:"kind"`
	RegistrationID string       `json:"registration_id"`
	EventID        string       `json:"event_id"`
	EventTitle     string       `json:"event_title"`
	EventDate      string       `json:"event_date"`
	Name           string       `json:"name"`
	Email          string       `json:"email"`
	Status         model.Status `json:"status"`
	At             time.Time    `json:"at"`
}

// NewNotice fills a Notice from the registration and its event.
func NewNotice(kind Kind, ev model.Event, reg model.Registration) Notice {
	return Notice{
		Kind:           kind,
		RegistrationID: reg.ID,
		EventID:        ev.ID,
		EventTitle:     ev.Title,
		EventDate:      ev.DateRaw,
		Name:           reg.Name,
		Email:          reg.Email,
		Status:         reg.Status,
		At:             time.Now().UTC(),
	}
}

type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// publisher is the subset of *nats.Conn used here.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes each notice to "<prefix>.registration.<kind>".
type NATSNotifier struct {
	pub    publisher
	conn   *nats.Conn
	prefix string
}

// DialNATS connects to url and returns a notifier that owns the connection.
func DialNATS(url, prefix string) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("eventdesk"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	n := newNATSNotifier(conn, prefix)
	n.conn = conn
	return n, nil
}

func newNATSNotifier(pub publisher, prefix string) *NATSNotifier {
	prefix = strings.Trim(prefix, ". ")
	if prefix == "" {
		prefix = "eventdesk"
	}
	return &NATSNotifier{pub: pub, prefix: prefix}
}

// Subject returns the subject a notice of kind is published on.
func (n *NATSNotifier) Subject(kind Kind) string {
	return n.prefix + ".registration." + string(kind)
}

func (n *NATSNotifier) Notify(ctx context.Context, notice Notice) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	if err := n.pub.Publish(n.Subject(notice.Kind), data); err != nil {
		return fmt.Errorf("publish %s: %w", notice.Kind, err)
	}
	return nil
}

// Close drains the connection if this notifier owns one.
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

// LogNotifier writes notices to the application log. It is used when no
// NATS URL is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notice) error {
	log.Info("registration notice",
		"kind", n.Kind,
		"registration", n.RegistrationID,
		"event", n.EventID,
		"email", n.Email,
	)
	return nil
}
