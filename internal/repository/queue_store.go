package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultClaimAttempts = 3

var mutableStatuses = []string{models.StatusQueued, models.StatusProcessing}

// QueueStore owns the message_queue table and every status transition on it.
type QueueStore struct {
	db            *gorm.DB
	now           func() time.Time
	claimAttempts int
	skipLocked    bool
}

func NewQueueStore(db *gorm.DB) (*QueueStore, error) {
	if err := db.AutoMigrate(&models.QueuedMessage{}); err != nil {
		return nil, fmt.Errorf("migrate message_queue: %w", err)
	}
	return &QueueStore{
		db:            db,
		now:           time.Now,
		claimAttempts: defaultClaimAttempts,
		skipLocked:    db.Dialector.Name() == "postgres",
	}, nil
}

// WithClock overrides the store clock. Tests only.
func (s *QueueStore) WithClock(now func() time.Time) *QueueStore {
	s.now = now
	return s
}

func (s *QueueStore) clock() time.Time {
	return s.now().UTC()
}

// Enqueue inserts a message. The worker never calls this.
func (s *QueueStore) Enqueue(ctx context.Context, msg *models.QueuedMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = models.StatusQueued
	}
	if msg.ScheduledFor.IsZero() {
		msg.ScheduledFor = s.clock()
	}
	msg.ScheduledFor = msg.ScheduledFor.UTC()
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	return nil
}

// Get loads one row by id.
func (s *QueueStore) Get(ctx context.Context, id string) (*models.QueuedMessage, error) {
	var msg models.QueuedMessage
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &msg, nil
}

// DequeueNext claims the oldest eligible queued message, or returns nil when
// nothing is due. A lost race moves on to the next candidate; losing every
// attempt looks like an empty queue to the caller.
func (s *QueueStore) DequeueNext(ctx context.Context, now time.Time) (*models.QueuedMessage, error) {
	now = now.UTC()
	for attempt := 0; attempt < s.claimAttempts; attempt++ {
		msg, err := s.claimOldest(ctx, now)
		if errors.Is(err, ErrNotClaimable) {
			continue
		}
		return msg, err
	}
	return nil, nil
}

func (s *QueueStore) claimOldest(ctx context.Context, now time.Time) (*models.QueuedMessage, error) {
	var claimed *models.QueuedMessage
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status = ? AND scheduled_for <= ?", models.StatusQueued, now).
			Order("scheduled_for ASC").
			Order("id ASC")
		if s.skipLocked {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var msg models.QueuedMessage
		if err := q.Take(&msg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("select next message: %w", err)
		}

		if err := claim(tx, msg.ID, now); err != nil {
			return err
		}
		msg.Status = models.StatusProcessing
		msg.ClaimedAt = &now
		msg.UpdatedAt = now
		claimed = &msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func claim(tx *gorm.DB, id string, now time.Time) error {
	res := tx.Model(&models.QueuedMessage{}).
		Where("id = ? AND status = ?", id, models.StatusQueued).
		Updates(map[string]interface{}{
			"status":     models.StatusProcessing,
			"claimed_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("claim message %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotClaimable
	}
	return nil
}

// MarkProcessing performs the queued to processing transition for a known id.
func (s *QueueStore) MarkProcessing(ctx context.Context, id string) error {
	err := claim(s.db.WithContext(ctx), id, s.clock())
	if errors.Is(err, ErrNotClaimable) {
		return s.transitionError(ctx, id)
	}
	return err
}

// MarkFailedTerminal moves a non-terminal row to failed and stores the number
// of failed attempts it ended with. The row is kept.
func (s *QueueStore) MarkFailedTerminal(ctx context.Context, id string, retryCount int, reason string) error {
	return s.transition(ctx, id, map[string]interface{}{
		"status":      models.StatusFailed,
		"retry_count": retryCount,
		"last_error":  reason,
		"claimed_at":  nil,
	})
}

// RescheduleWithBackoff puts the row back in the queue after a failed attempt
// and returns the next eligibility time.
func (s *QueueStore) RescheduleWithBackoff(ctx context.Context, id string, retryCount int, backoff time.Duration, reason string) (time.Time, error) {
	next := s.clock().Add(backoff)
	err := s.transition(ctx, id, map[string]interface{}{
		"status":        models.StatusQueued,
		"retry_count":   retryCount + 1,
		"scheduled_for": next,
		"last_error":    reason,
		"claimed_at":    nil,
	})
	return next, err
}

// Defer requeues the row for a later time without consuming a retry.
func (s *QueueStore) Defer(ctx context.Context, id string, until time.Time, reason string) error {
	return s.transition(ctx, id, map[string]interface{}{
		"status":        models.StatusQueued,
		"scheduled_for": until.UTC(),
		"last_error":    reason,
		"claimed_at":    nil,
	})
}

// Complete removes a delivered row.
func (s *QueueStore) Complete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND status IN ?", id, mutableStatuses).
		Delete(&models.QueuedMessage{})
	if res.Error != nil {
		return fmt.Errorf("complete message %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

// RequeueStale returns rows stuck in processing for longer than olderThan to
// the queue and reports which rows moved.
func (s *QueueStore) RequeueStale(ctx context.Context, olderThan time.Duration) ([]models.QueuedMessage, error) {
	now := s.clock()
	cutoff := now.Add(-olderThan)

	var stale []models.QueuedMessage
	err := s.db.WithContext(ctx).
		Where("status = ? AND claimed_at IS NOT NULL AND claimed_at < ?", models.StatusProcessing, cutoff).
		Order("claimed_at ASC").
		Find(&stale).Error
	if err != nil {
		return nil, fmt.Errorf("find stale messages: %w", err)
	}

	requeued := make([]models.QueuedMessage, 0, len(stale))
	for _, msg := range stale {
		res := s.db.WithContext(ctx).Model(&models.QueuedMessage{}).
			Where("id = ? AND status = ? AND claimed_at < ?", msg.ID, models.StatusProcessing, cutoff).
			Updates(map[string]interface{}{
				"status":     models.StatusQueued,
				"claimed_at": nil,
				"updated_at": now,
			})
		if res.Error != nil {
			return requeued, fmt.Errorf("requeue message %s: %w", msg.ID, res.Error)
		}
		if res.RowsAffected == 1 {
			msg.Status = models.StatusQueued
			msg.ClaimedAt = nil
			requeued = append(requeued, msg)
		}
	}
	return requeued, nil
}

func (s *QueueStore) transition(ctx context.Context, id string, values map[string]interface{}) error {
	values["updated_at"] = s.clock()
	res := s.db.WithContext(ctx).Model(&models.QueuedMessage{}).
		Where("id = ? AND status IN ?", id, mutableStatuses).
		Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update message %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.transitionError(ctx, id)
	}
	return nil
}

func (s *QueueStore) transitionError(ctx context.Context, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.QueuedMessage{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("lookup message %s: %w", id, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrNotClaimable
}
