package repository

import (
	"context"
	"time"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
	"github.com/patrickmn/go-cache"
)

// LimitsCache caches resolved per-tenant caps between ledger lookups.
type LimitsCache interface {
	GetCaps(ctx context.Context, salonID string) (models.DailyCaps, bool, error)
	SetCaps(ctx context.Context, salonID string, caps models.DailyCaps) error
}

// MemoryCache is the in-process LimitsCache used when Redis is not configured.
type MemoryCache struct {
	store *cache.Cache
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryCache{store: cache.New(ttl, 2*ttl)}
}

func (m *MemoryCache) GetCaps(_ context.Context, salonID string) (models.DailyCaps, bool, error) {
	v, found := m.store.Get(limitsKeyPrefix + salonID)
	if !found {
		return models.DailyCaps{}, false, nil
	}
	caps, ok := v.(models.DailyCaps)
	return caps, ok, nil
}

func (m *MemoryCache) SetCaps(_ context.Context, salonID string, caps models.DailyCaps) error {
	m.store.Set(limitsKeyPrefix+salonID, caps, cache.DefaultExpiration)
	return nil
}
