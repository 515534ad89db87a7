package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HistoryStore appends to audit_logs and messages. Rows are never updated.
type HistoryStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewHistoryStore(db *gorm.DB) (*HistoryStore, error) {
	if err := db.AutoMigrate(&models.AuditLog{}, &models.SentMessage{}); err != nil {
		return nil, fmt.Errorf("migrate history tables: %w", err)
	}
	return &HistoryStore{db: db, now: time.Now}, nil
}

func (s *HistoryStore) InsertAudit(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *HistoryStore) InsertMessage(ctx context.Context, msg *models.SentMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("insert message history: %w", err)
	}
	return nil
}

// ListAudit returns the newest entries for a tenant, optionally filtered by action.
func (s *HistoryStore) ListAudit(ctx context.Context, salonID, action string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Where("salon_id = ?", salonID)
	if action != "" {
		q = q.Where("action = ?", action)
	}
	var entries []models.AuditLog
	if err := q.Order("created_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return entries, nil
}

// CountMessages returns how many history rows a tenant has.
func (s *HistoryStore) CountMessages(ctx context.Context, salonID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.SentMessage{}).Where("salon_id = ?", salonID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}
