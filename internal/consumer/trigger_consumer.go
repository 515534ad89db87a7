package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
	"github.com/streadway/amqp"
)

// BatchRunner is the dispatch entry point a trigger drives.
type BatchRunner interface {
	RunBatch(ctx context.Context, n int) models.BatchSummary
}

// TriggerRequest is the optional JSON body of a trigger message.
type TriggerRequest struct {
	BatchSize int `json:"batch_size"`
}

// TriggerConsumer runs dispatch invocations on every message from the trigger
// queue. Triggers are always acked once run; queue rows keep their own retry state.
type TriggerConsumer struct {
	base         *BaseConsumer
	runner       BatchRunner
	logger       *slog.Logger
	defaultBatch int
	maxBatch     int
}

func NewTriggerConsumer(base *BaseConsumer, runner BatchRunner, logger *slog.Logger, defaultBatch, maxBatch int) *TriggerConsumer {
	if defaultBatch <= 0 {
		defaultBatch = 1
	}
	if maxBatch < defaultBatch {
		maxBatch = defaultBatch
	}
	return &TriggerConsumer{
		base:         base,
		runner:       runner,
		logger:       logger,
		defaultBatch: defaultBatch,
		maxBatch:     maxBatch,
	}
}

func (t *TriggerConsumer) Start(ctx context.Context) error {
	return t.base.Start(ctx, t.handleDelivery)
}

func (t *TriggerConsumer) handleDelivery(ctx context.Context, msg amqp.Delivery) error {
	size, err := t.batchSize(msg.Body)
	if err != nil {
		t.logger.Error("rejecting malformed trigger", slog.Any("error", err))
		_ = msg.Reject(false)
		return err
	}

	summary := t.runner.RunBatch(ctx, size)
	t.logger.Info("trigger processed",
		slog.Int("batch_size", size),
		slog.Int("attempted", summary.Attempted),
		slog.Any("counts", summary.Counts))
	return msg.Ack(false)
}

func (t *TriggerConsumer) batchSize(body []byte) (int, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return t.defaultBatch, nil
	}
	var req TriggerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return 0, fmt.Errorf("decode trigger: %w", err)
	}
	switch {
	case req.BatchSize <= 0:
		return t.defaultBatch, nil
	case req.BatchSize > t.maxBatch:
		return t.maxBatch, nil
	default:
		return req.BatchSize, nil
	}
}
