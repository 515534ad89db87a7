package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
	"github.com/streadway/amqp"
)

// DefaultEventsExchange receives one event per audit entry, routed by action.
const DefaultEventsExchange = "whatsapp.dispatch"

// Publisher publishes dispatch events to RabbitMQ.
type Publisher struct {
	conn     *amqp.Connection
	exchange string
}

// NewPublisher creates a new Publisher.
func NewPublisher(conn *amqp.Connection, exchange string) *Publisher {
	if exchange == "" {
		exchange = DefaultEventsExchange
	}
	return &Publisher{conn: conn, exchange: exchange}
}

// PublishDispatchEvent publishes an event with the action as routing key.
func (p *Publisher) PublishDispatchEvent(ctx context.Context, event *models.DispatchEvent) error {
	if p == nil || p.conn == nil {
		return errors.New("publisher not connected")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return ch.Publish(
		p.exchange,   // exchange
		event.Action, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.EventID,
			Timestamp:    event.CreatedAt,
			Body:         body,
		})
}
