package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/openclaw/taskforge/internal/logging"
)

// Publisher streams session events to a NATS subject so external
// consumers can follow runs live. Publishing is best-effort: a broker
// hiccup must never fail the run that produced the event.
type Publisher struct {
	conn    *nats.Conn
	subject string
	log     *logging.Logger
}

// PublisherConfig configures the event publisher.
type PublisherConfig struct {
	URL     string // NATS server URL, e.g. nats://localhost:4222
	Subject string
	Logger  *logging.Logger
}

// wireEvent is the published payload.
type wireEvent struct {
	SessionID string `json:"session_id"`
	Goal      string `json:"goal,omitempty"`
	Event     Event  `json:"event"`
}

// NewPublisher connects to NATS. The connection keeps reconnecting in
// the background if the broker goes away.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if cfg.Subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("taskforge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &Publisher{
		conn:    conn,
		subject: cfg.Subject,
		log:     cfg.Logger,
	}, nil
}

// Publish sends one event. Failures are logged and swallowed.
func (p *Publisher) Publish(sess *Session, event Event) {
	if p == nil || p.conn == nil {
		return
	}

	data, err := json.Marshal(wireEvent{
		SessionID: sess.ID,
		Goal:      sess.Goal,
		Event:     event,
	})
	if err != nil {
		if p.log != nil {
			p.log.Warn("Failed to encode event for publishing", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		if p.log != nil {
			p.log.Warn("Failed to publish event", map[string]interface{}{
				"subject": p.subject,
				"error":   err.Error(),
			})
		}
	}
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
