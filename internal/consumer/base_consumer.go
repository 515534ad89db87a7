package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/pkg/rabbitmq"
	"github.com/streadway/amqp"
)

// QueueBinding names the queue a consumer reads and where it is bound.
type QueueBinding struct {
	Exchange   string
	Queue      string
	RoutingKey string
	DLQ        string
}

// BaseConsumer wires RabbitMQ connectivity, queue declaration and worker handling.
type BaseConsumer struct {
	conn        *amqp.Connection
	binding     QueueBinding
	prefetch    int
	workerCount int
	logger      *slog.Logger
}

func NewBaseConsumer(conn *amqp.Connection, binding QueueBinding, prefetch, workerCount int, logger *slog.Logger) *BaseConsumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	return &BaseConsumer{
		conn:        conn,
		binding:     binding,
		prefetch:    prefetch,
		workerCount: workerCount,
		logger:      logger,
	}
}

func (c *BaseConsumer) Start(ctx context.Context, handler func(context.Context, amqp.Delivery) error) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := c.setupQueue(ch); err != nil {
		return fmt.Errorf("queue setup failed: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("qos configuration failed: %w", err)
	}

	deliveries, err := ch.Consume(
		c.binding.Queue,
		"",
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	c.logger.Info("consuming trigger queue",
		slog.String("queue", c.binding.Queue),
		slog.Int("workers", c.workerCount))

	var wg sync.WaitGroup
	for i := 0; i < c.workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-deliveries:
					if !ok {
						return
					}
					if err := handler(ctx, msg); err != nil {
						c.logger.Error("handler returned error", slog.Int("worker", id), slog.Any("error", err))
					}
				}
			}
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (c *BaseConsumer) setupQueue(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		c.binding.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}

	if c.binding.DLQ != "" {
		if _, err := ch.QueueDeclare(
			c.binding.DLQ,
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return err
		}
	}

	if _, err := ch.QueueDeclare(
		c.binding.Queue,
		true,
		false,
		false,
		false,
		rabbitmq.DeadLetterArgs(c.binding.DLQ),
	); err != nil {
		return err
	}

	return ch.QueueBind(
		c.binding.Queue,
		c.binding.RoutingKey,
		c.binding.Exchange,
		false,
		nil,
	)
}
