package services

import (
	"context"
	"log/slog"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
)

// ChannelWhatsApp is the channel written on history rows.
const ChannelWhatsApp = "whatsapp"

// HistoryWriter is the persistence side of the audit sink.
type HistoryWriter interface {
	InsertAudit(ctx context.Context, entry *models.AuditLog) error
	InsertMessage(ctx context.Context, msg *models.SentMessage) error
}

// EventPublisher fans audit entries out to other services.
type EventPublisher interface {
	PublishDispatchEvent(ctx context.Context, event *models.DispatchEvent) error
}

// AuditSink records dispatch history. Publishing is optional and best effort.
type AuditSink struct {
	store     HistoryWriter
	publisher EventPublisher
	logger    *slog.Logger
}

func NewAuditSink(store HistoryWriter, publisher EventPublisher, logger *slog.Logger) *AuditSink {
	return &AuditSink{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Record appends an audit entry and, when configured, publishes it.
func (s *AuditSink) Record(ctx context.Context, entry *models.AuditLog) error {
	if err := s.store.InsertAudit(ctx, entry); err != nil {
		return err
	}

	if s.publisher != nil {
		event := &models.DispatchEvent{
			EventID:   entry.ID,
			SalonID:   entry.SalonID,
			Action:    entry.Action,
			Details:   entry.Details,
			Category:  entry.Category,
			CreatedAt: entry.CreatedAt,
		}
		if err := s.publisher.PublishDispatchEvent(ctx, event); err != nil {
			s.logger.Warn("failed to publish dispatch event",
				slog.String("action", entry.Action),
				slog.String("salon_id", entry.SalonID),
				slog.Any("error", err))
		}
	}
	return nil
}

// RecordDelivery writes the messages history row for a delivered queue entry.
func (s *AuditSink) RecordDelivery(ctx context.Context, msg *models.QueuedMessage) error {
	return s.store.InsertMessage(ctx, &models.SentMessage{
		SalonID:        msg.SalonID,
		QueueID:        msg.ID,
		RecipientPhone: msg.RecipientPhone,
		Content:        msg.Content,
		Type:           msg.Type,
		Channel:        ChannelWhatsApp,
		Status:         "sent",
	})
}
