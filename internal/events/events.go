// Package events publishes party lifecycle events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	PartyCreated      = "party.created"
	PartyEnded        = "party.ended"
	ParticipantJoined = "participant.joined"
	ParticipantKicked = "participant.kicked"
	DefaultExchange   = "watchparty.events"
	contentTypeJSON   = "application/json"
	exchangeKindTopic = "topic"
)

type Event struct {
	Type          string    `json:"type"`
	PartyCode     string    `json:"partyCode"`
	PartyId       string    `json:"partyId,omitempty"`
	ParticipantId string    `json:"participantId,omitempty"`
	SeatId        string    `json:"seatId,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NewPublisher connects to the AMQP broker and declares a durable topic
// exchange. Any failure falls back to a publisher that only logs.
func NewPublisher(amqpURL, exchange string, log zerolog.Logger) Publisher {
	log = log.With().Str("module", "events").Logger()

	if amqpURL == "" {
		log.Info().Msg("amqp disabled, using noop publisher: empty amqp url")
		return NewNoopPublisher(log)
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Warn().Err(err).Msg("amqp disabled, using noop publisher")
		return NewNoopPublisher(log)
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Warn().Err(err).Msg("amqp disabled, using noop publisher")
		_ = conn.Close()
		return NewNoopPublisher(log)
	}

	if err := ch.ExchangeDeclare(exchange, exchangeKindTopic, true, false, false, false, nil); err != nil {
		log.Warn().Err(err).Msg("amqp disabled, using noop publisher")
		_ = ch.Close()
		_ = conn.Close()
		return NewNoopPublisher(log)
	}

	log.Info().Str("exchange", exchange).Msg("amqp connected")
	return &amqpPublisher{log: log, conn: conn, ch: ch, exchange: exchange}
}

type amqpPublisher struct {
	log      zerolog.Logger
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func (p *amqpPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		p.log.Error().Err(err).Str("routing_key", event.Type).Msg("amqp publish failed")
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	log zerolog.Logger
}

func NewNoopPublisher(log zerolog.Logger) Publisher {
	return noopPublisher{log: log}
}

func (p noopPublisher) Publish(_ context.Context, event Event) error {
	p.log.Debug().
		Str("routing_key", event.Type).
		Str("party", event.PartyCode).
		Msg("noop publish")
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// Mode reports the publisher mode for logging.
func Mode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}
