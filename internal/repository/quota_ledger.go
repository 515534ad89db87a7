package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultDailyLimit applies when a tenant has no cap configured.
const DefaultDailyLimit = 50

var usedColumns = map[string]string{
	models.CategoryConfirmation: "used_confirmation",
	models.CategoryReminder:     "used_reminder",
	models.CategoryPromotion:    "used_promotion",
	models.CategoryCustom:       "used_custom",
}

var reservedColumns = map[string]string{
	models.CategoryConfirmation: "reserved_confirmation",
	models.CategoryReminder:     "reserved_reminder",
	models.CategoryPromotion:    "reserved_promotion",
	models.CategoryCustom:       "reserved_custom",
}

// usedColumn and reservedColumn only ever return ledger column names, so they
// are safe to splice into SQL.
func usedColumn(category string) string {
	return usedColumns[models.QuotaCategory(category)]
}

func reservedColumn(category string) string {
	return reservedColumns[models.QuotaCategory(category)]
}

// QuotaLedger tracks per-tenant, per-category daily usage in daily_message_limits.
type QuotaLedger struct {
	db           *gorm.DB
	cache        LimitsCache
	defaultLimit int
}

func NewQuotaLedger(db *gorm.DB, cache LimitsCache, defaultLimit int) (*QuotaLedger, error) {
	if err := db.AutoMigrate(&models.DailyMessageLimit{}, &models.MarketingSettings{}); err != nil {
		return nil, fmt.Errorf("migrate quota tables: %w", err)
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultDailyLimit
	}
	return &QuotaLedger{
		db:           db,
		cache:        cache,
		defaultLimit: defaultLimit,
	}, nil
}

// Caps resolves the tenant's caps, consulting the cache first. Cache failures
// fall through to the database.
func (l *QuotaLedger) Caps(ctx context.Context, salonID string) (models.DailyCaps, error) {
	if l.cache != nil {
		if caps, found, err := l.cache.GetCaps(ctx, salonID); err == nil && found {
			return caps, nil
		}
	}

	var settings models.MarketingSettings
	err := l.db.WithContext(ctx).Where("salon_id = ?", salonID).Take(&settings).Error
	var caps models.DailyCaps
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		caps = (*models.MarketingSettings)(nil).Caps(l.defaultLimit)
	case err != nil:
		return models.DailyCaps{}, fmt.Errorf("load marketing settings: %w", err)
	default:
		caps = settings.Caps(l.defaultLimit)
	}

	if l.cache != nil {
		_ = l.cache.SetCaps(ctx, salonID, caps)
	}
	return caps, nil
}

// CheckQuota reports whether one more message of category fits under the cap.
func (l *QuotaLedger) CheckQuota(ctx context.Context, salonID, category, date string) (bool, error) {
	caps, err := l.Caps(ctx, salonID)
	if err != nil {
		return false, err
	}
	row, err := l.load(ctx, salonID, date)
	if err != nil {
		return false, err
	}
	return row.Used(category) < caps.For(category), nil
}

// IncrementQuota adds amount to the counter with a single upsert.
func (l *QuotaLedger) IncrementQuota(ctx context.Context, salonID, category, date string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("increment quota: amount must be positive, got %d", amount)
	}
	col := usedColumn(category)
	row := models.DailyMessageLimit{SalonID: salonID, Date: date}
	setUsed(&row, category, amount)

	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "salon_id"}, {Name: "date"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				col: gorm.Expr(row.TableName()+"."+col+" + ?", amount),
			}),
		}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("increment quota: %w", err)
	}
	return nil
}

// Reserve holds one unit of the tenant's budget for an in-flight send, only
// if delivered plus in-flight messages are still below the cap. Concurrent
// callers can never oversubscribe the cap. The used counter is not touched.
func (l *QuotaLedger) Reserve(ctx context.Context, salonID, category, date string) (bool, error) {
	caps, err := l.Caps(ctx, salonID)
	if err != nil {
		return false, err
	}
	if err := l.ensureRow(ctx, salonID, date); err != nil {
		return false, err
	}

	used, reserved := usedColumn(category), reservedColumn(category)
	res := l.db.WithContext(ctx).
		Model(&models.DailyMessageLimit{}).
		Where("salon_id = ? AND date = ? AND "+used+" + "+reserved+" < ?", salonID, date, caps.For(category)).
		UpdateColumn(reserved, gorm.Expr(reserved+" + ?", 1))
	if res.Error != nil {
		return false, fmt.Errorf("reserve quota: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Commit records a delivery: one statement moves a reservation into the used
// counter. Without a row to update it falls back to IncrementQuota.
func (l *QuotaLedger) Commit(ctx context.Context, salonID, category, date string) error {
	used, reserved := usedColumn(category), reservedColumn(category)
	res := l.db.WithContext(ctx).
		Model(&models.DailyMessageLimit{}).
		Where("salon_id = ? AND date = ?", salonID, date).
		UpdateColumns(map[string]interface{}{
			used:     gorm.Expr(used + " + 1"),
			reserved: gorm.Expr("CASE WHEN " + reserved + " > 0 THEN " + reserved + " - 1 ELSE 0 END"),
		})
	if res.Error != nil {
		return fmt.Errorf("commit quota: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return l.IncrementQuota(ctx, salonID, category, date, 1)
	}
	return nil
}

// Release drops one reservation after a failed send. Used is never lowered.
func (l *QuotaLedger) Release(ctx context.Context, salonID, category, date string) error {
	col := reservedColumn(category)
	err := l.db.WithContext(ctx).
		Model(&models.DailyMessageLimit{}).
		Where("salon_id = ? AND date = ? AND "+col+" > 0", salonID, date).
		UpdateColumn(col, gorm.Expr(col+" - ?", 1)).Error
	if err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}

// Usage returns all four counters and caps for one tenant day.
func (l *QuotaLedger) Usage(ctx context.Context, salonID, date string) (*models.QuotaUsage, error) {
	caps, err := l.Caps(ctx, salonID)
	if err != nil {
		return nil, err
	}
	row, err := l.load(ctx, salonID, date)
	if err != nil {
		return nil, err
	}

	usage := &models.QuotaUsage{
		SalonID:  salonID,
		Date:     date,
		Used:     make(map[string]int, len(models.QuotaCategories)),
		Reserved: make(map[string]int, len(models.QuotaCategories)),
		Caps:     make(map[string]int, len(models.QuotaCategories)),
	}
	for _, category := range models.QuotaCategories {
		usage.Used[category] = row.Used(category)
		usage.Reserved[category] = row.Reserved(category)
		usage.Caps[category] = caps.For(category)
	}
	return usage, nil
}

func (l *QuotaLedger) load(ctx context.Context, salonID, date string) (models.DailyMessageLimit, error) {
	var row models.DailyMessageLimit
	err := l.db.WithContext(ctx).
		Where("salon_id = ? AND date = ?", salonID, date).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DailyMessageLimit{SalonID: salonID, Date: date}, nil
	}
	if err != nil {
		return row, fmt.Errorf("load quota row: %w", err)
	}
	return row, nil
}

func (l *QuotaLedger) ensureRow(ctx context.Context, salonID, date string) error {
	row := models.DailyMessageLimit{SalonID: salonID, Date: date}
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("ensure quota row: %w", err)
	}
	return nil
}

func setUsed(row *models.DailyMessageLimit, category string, v int) {
	switch models.QuotaCategory(category) {
	case models.CategoryConfirmation:
		row.UsedConfirmation = v
	case models.CategoryReminder:
		row.UsedReminder = v
	case models.CategoryPromotion:
		row.UsedPromotion = v
	default:
		row.UsedCustom = v
	}
}
