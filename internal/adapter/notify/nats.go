package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chainremit/config"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// publisher is the slice of *nats.Conn the notifier uses.
type publisher interface {
	Publish(subj string, data []byte) error
}

// NatsNotifier implements ports.Notifier by publishing JSON events to NATS.
// Delivery is fire-and-forget; the orchestrator never rolls back financial
// state on a publish failure.
type NatsNotifier struct {
	conn    publisher
	subject string
	log     zerolog.Logger
}

// NewNatsNotifier creates a notifier publishing under the given subject
// prefix, e.g. "chainremit.events".
func NewNatsNotifier(conn *nats.Conn, subject string, log zerolog.Logger) *NatsNotifier {
	return &NatsNotifier{
		conn:    conn,
		subject: subject,
		log:     log.With().Str("component", "nats_notifier").Logger(),
	}
}

// Connect establishes a NATS connection with reconnect enabled.
func Connect(cfg config.NATSConfig, log zerolog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	log.Info().Str("url", cfg.URL).Msg("NATS connection established")
	return conn, nil
}

type event struct {
	UserID     uuid.UUID `json:"user_id"`
	Event      string    `json:"event"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notify publishes one event. The subject is the prefix plus the event name,
// e.g. "chainremit.events.transfer.completed".
func (n *NatsNotifier) Notify(ctx context.Context, userID uuid.UUID, eventName string, payload any) error {
	data, err := json.Marshal(event{
		UserID:     userID,
		Event:      eventName,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subj := n.subject + "." + eventName
	if err := n.conn.Publish(subj, data); err != nil {
		return fmt.Errorf("publish to %s: %w", subj, err)
	}

	n.log.Debug().
		Str("subject", subj).
		Str("user_id", userID.String()).
		Msg("event published")

	return nil
}
