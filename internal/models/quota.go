package models

// DailyMessageLimit holds one tenant's per-category usage for one quota day.
// Used only counts delivered messages and never goes down within the day.
// Reserved counts sends currently in flight.
type DailyMessageLimit struct {
	SalonID              string `gorm:"primaryKey;type:varchar(64)" json:"salon_id"`
	Date                 string `gorm:"primaryKey;type:varchar(10)" json:"date"`
	UsedConfirmation     int    `gorm:"not null;default:0" json:"used_confirmation"`
	UsedReminder         int    `gorm:"not null;default:0" json:"used_reminder"`
	UsedPromotion        int    `gorm:"not null;default:0" json:"used_promotion"`
	UsedCustom           int    `gorm:"not null;default:0" json:"used_custom"`
	ReservedConfirmation int    `gorm:"not null;default:0" json:"reserved_confirmation"`
	ReservedReminder     int    `gorm:"not null;default:0" json:"reserved_reminder"`
	ReservedPromotion    int    `gorm:"not null;default:0" json:"reserved_promotion"`
	ReservedCustom       int    `gorm:"not null;default:0" json:"reserved_custom"`
}

func (DailyMessageLimit) TableName() string {
	return "daily_message_limits"
}

// Used returns the counter for a quota category.
func (d DailyMessageLimit) Used(category string) int {
	switch QuotaCategory(category) {
	case CategoryConfirmation:
		return d.UsedConfirmation
	case CategoryReminder:
		return d.UsedReminder
	case CategoryPromotion:
		return d.UsedPromotion
	default:
		return d.UsedCustom
	}
}

// Reserved returns the in-flight count for a quota category.
func (d DailyMessageLimit) Reserved(category string) int {
	switch QuotaCategory(category) {
	case CategoryConfirmation:
		return d.ReservedConfirmation
	case CategoryReminder:
		return d.ReservedReminder
	case CategoryPromotion:
		return d.ReservedPromotion
	default:
		return d.ReservedCustom
	}
}

// MarketingSettings is the tenant-owned cap configuration. Nil caps fall back to the default.
type MarketingSettings struct {
	SalonID           string `gorm:"primaryKey;type:varchar(64)" json:"salon_id"`
	ConfirmationLimit *int   `json:"confirmation_limit,omitempty"`
	ReminderLimit     *int   `json:"reminder_limit,omitempty"`
	PromotionLimit    *int   `json:"promotion_limit,omitempty"`
	CustomLimit       *int   `json:"custom_limit,omitempty"`
}

func (MarketingSettings) TableName() string {
	return "marketing_settings"
}

// Caps resolves the settings into a full cap set using def for anything unset or non-positive.
func (m *MarketingSettings) Caps(def int) DailyCaps {
	caps := DailyCaps{
		Confirmation: def,
		Reminder:     def,
		Promotion:    def,
		Custom:       def,
	}
	if m == nil {
		return caps
	}
	pick := func(v *int) int {
		if v == nil || *v <= 0 {
			return def
		}
		return *v
	}
	caps.Confirmation = pick(m.ConfirmationLimit)
	caps.Reminder = pick(m.ReminderLimit)
	caps.Promotion = pick(m.PromotionLimit)
	caps.Custom = pick(m.CustomLimit)
	return caps
}

// DailyCaps is the resolved per-category cap for a tenant.
type DailyCaps struct {
	Confirmation int `json:"confirmation"`
	Reminder     int `json:"reminder"`
	Promotion    int `json:"promotion"`
	Custom       int `json:"custom"`
}

// For returns the cap for a quota category.
func (c DailyCaps) For(category string) int {
	switch QuotaCategory(category) {
	case CategoryConfirmation:
		return c.Confirmation
	case CategoryReminder:
		return c.Reminder
	case CategoryPromotion:
		return c.Promotion
	default:
		return c.Custom
	}
}

// QuotaUsage is the read-path view of one tenant's quota day.
type QuotaUsage struct {
	SalonID  string         `json:"salon_id"`
	Date     string         `json:"date"`
	Used     map[string]int `json:"used"`
	Reserved map[string]int `json:"reserved"`
	Caps     map[string]int `json:"caps"`
}
