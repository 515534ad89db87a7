package models

import (
	"strings"
	"time"
)

// Queue row statuses. Delivered rows are deleted rather than marked.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
)

// Message categories as written by the CRM.
const (
	CategoryConfirmation = "confirmation"
	CategoryReminder     = "reminder"
	CategoryPromotion    = "promotion"
	CategoryCustom       = "custom"
	CategoryStaffAlert   = "staff_alert"
)

// QueuedMessage is a pending outbound WhatsApp message in message_queue.
type QueuedMessage struct {
	ID             string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SalonID        string     `gorm:"index;not null" json:"salon_id"`
	RecipientPhone string     `gorm:"not null" json:"recipient_phone"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	Type           string     `gorm:"column:type;not null" json:"type"`
	Status         string     `gorm:"index:idx_queue_due,priority:1;not null;default:queued" json:"status"`
	ScheduledFor   time.Time  `gorm:"index:idx_queue_due,priority:2;not null" json:"scheduled_for"`
	RetryCount     int        `gorm:"not null;default:0" json:"retry_count"`
	LastError      string     `gorm:"type:text" json:"last_error,omitempty"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (QueuedMessage) TableName() string {
	return "message_queue"
}

// QuotaCategory maps a message category onto the ledger column it counts against.
// staff_alert and anything unrecognised share the custom budget.
func QuotaCategory(category string) string {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case CategoryConfirmation:
		return CategoryConfirmation
	case CategoryReminder:
		return CategoryReminder
	case CategoryPromotion:
		return CategoryPromotion
	default:
		return CategoryCustom
	}
}

// QuotaCategories lists the ledger columns in display order.
var QuotaCategories = []string{
	CategoryConfirmation,
	CategoryReminder,
	CategoryPromotion,
	CategoryCustom,
}
