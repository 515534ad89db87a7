package rabbitmq

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"
)

// Manager maintains a single AMQP connection and helps declare topology.
type Manager struct {
	url    string
	conn   *amqp.Connection
	logger *slog.Logger
	mu     sync.RWMutex
}

func NewManager(url string, logger *slog.Logger) (*Manager, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &Manager{
		url:    url,
		conn:   conn,
		logger: logger,
	}, nil
}

func (m *Manager) Connection() *amqp.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

// DeclareTopology ensures the direct exchange exists and binds each queue to
// its routing keys. A queue bound to several keys receives all of them.
func (m *Manager) DeclareTopology(exchange string, bindings map[string][]string, dlq string) error {
	conn := m.Connection()
	if conn == nil {
		return fmt.Errorf("rabbitmq connection closed")
	}
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if dlq != "" {
		if _, err := ch.QueueDeclare(
			dlq,
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return fmt.Errorf("declare dlq: %w", err)
		}
	}

	for queue, keys := range bindings {
		if _, err := ch.QueueDeclare(
			queue,
			true,
			false,
			false,
			false,
			DeadLetterArgs(dlq),
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}

		for _, key := range keys {
			if err := ch.QueueBind(
				queue,
				key,
				exchange,
				false,
				nil,
			); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", queue, key, err)
			}
		}
		m.logger.Info("rabbitmq queue bound",
			slog.String("exchange", exchange),
			slog.String("queue", queue),
			slog.Any("routing_keys", keys))
	}

	return nil
}

// DeadLetterArgs returns the queue arguments that route rejected messages to dlq.
func DeadLetterArgs(dlq string) amqp.Table {
	args := amqp.Table{}
	if dlq != "" {
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = dlq
	}
	return args
}
