// ABOUTME: Staff notification events published to RabbitMQ
// ABOUTME: Optional; the engine and API run with a no-op sink when unconfigured

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Routing keys for chatdesk events.
const (
	KeySessionHandoff = "chat.session.handoff"
	KeyLeadCreated    = "chat.lead.created"
)

const producer = "chatdesk"

// Meta is the envelope header shared by all events.
type Meta struct {
	ID       string    `json:"id"`
	Producer string    `json:"producer"`
	Time     time.Time `json:"time"`
	Type     string    `json:"type"`
}

// Envelope wraps an event payload with its metadata.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// SessionHandoffData is the payload for chat.session.handoff events.
type SessionHandoffData struct {
	SessionID   string `json:"session_id"`
	OwnerUserID string `json:"owner_user_id"`
}

// LeadCreatedData is the payload for chat.lead.created events.
type LeadCreatedData struct {
	LeadID      string  `json:"lead_id"`
	OwnerUserID *string `json:"owner_user_id"`
	Email       string  `json:"email"`
}

// Publisher delivers staff notification events.
type Publisher interface {
	SessionHandedOff(ctx context.Context, sessionID, ownerUserID string)
	LeadCreated(ctx context.Context, leadID string, ownerUserID *string, email string)
	Close() error
}

// AMQPPublisher publishes events to a durable topic exchange. Publish
// failures are logged and swallowed; notifications never affect the
// conversation path.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
	logger   *slog.Logger
}

// NewAMQPPublisher connects to RabbitMQ and declares the exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring exchange: %w", err)
	}

	return &AMQPPublisher{
		conn:     conn,
		exchange: exchange,
		logger:   slog.Default().With("component", "notify"),
	}, nil
}

// SessionHandedOff publishes a chat.session.handoff event.
func (p *AMQPPublisher) SessionHandedOff(ctx context.Context, sessionID, ownerUserID string) {
	p.publish(ctx, KeySessionHandoff, SessionHandoffData{
		SessionID:   sessionID,
		OwnerUserID: ownerUserID,
	})
}

// LeadCreated publishes a chat.lead.created event.
func (p *AMQPPublisher) LeadCreated(ctx context.Context, leadID string, ownerUserID *string, email string) {
	p.publish(ctx, KeyLeadCreated, LeadCreatedData{
		LeadID:      leadID,
		OwnerUserID: ownerUserID,
		Email:       email,
	})
}

func (p *AMQPPublisher) publish(ctx context.Context, key string, data any) {
	envelope := Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Producer: producer,
			Time:     time.Now().UTC(),
			Type:     key,
		},
		Data: data,
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		p.logger.Error("encoding event failed", "key", key, "error", err)
		return
	}

	ch, err := p.conn.Channel()
	if err != nil {
		p.logger.Error("opening channel failed", "key", key, "error", err)
		return
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    envelope.Meta.ID,
		Timestamp:    envelope.Meta.Time,
		Body:         body,
	})
	if err != nil {
		p.logger.Error("publish failed", "key", key, "error", err)
		return
	}

	p.logger.Info("published event", "key", key, "exchange", p.exchange)
}

// Close closes the underlying connection.
func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

// NopPublisher discards all events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) SessionHandedOff(context.Context, string, string)     {}
func (NopPublisher) LeadCreated(context.Context, string, *string, string) {}
func (NopPublisher) Close() error                                         { return nil }

var (
	_ Publisher = (*AMQPPublisher)(nil)
	_ Publisher = NopPublisher{}
)
