package models

import "time"

// Audit actions written by the dispatch worker.
const (
	ActionWhatsAppSent    = "whatsapp_sent"
	ActionMessageRetry    = "message_retry"
	ActionLimitReached    = "limit_reached"
	ActionMessageFailed   = "message_failed"
	ActionMessageDeferred = "message_deferred"
	ActionMessageRequeued = "message_requeued"
)

// AuditLog is an append-only dispatch history entry.
type AuditLog struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SalonID   string    `gorm:"index" json:"salon_id"`
	Action    string    `gorm:"index;not null" json:"action"`
	Details   string    `gorm:"type:text" json:"details"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// SentMessage is the messages history row inserted after a successful delivery.
type SentMessage struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SalonID        string    `gorm:"index;not null" json:"salon_id"`
	QueueID        string    `gorm:"index" json:"queue_id"`
	RecipientPhone string    `json:"recipient_phone"`
	Content        string    `gorm:"type:text" json:"content"`
	Type           string    `gorm:"column:type" json:"type"`
	Channel        string    `json:"channel"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

func (SentMessage) TableName() string {
	return "messages"
}

// DispatchEvent is the JSON body published to the dispatch exchange for every audit entry.
type DispatchEvent struct {
	EventID   string    `json:"event_id"`
	SalonID   string    `json:"salon_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}
