package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
	"github.com/go-redis/redis/v8"
)

const limitsKeyPrefix = "whatsapp:limits:"

// RedisRepository caches tenant cap settings in Redis.
type RedisRepository struct {
	Client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	return &RedisRepository{
		Client: client,
		ttl:    ttl,
	}
}

func (r *RedisRepository) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// GetCaps implements LimitsCache.
func (r *RedisRepository) GetCaps(ctx context.Context, salonID string) (models.DailyCaps, bool, error) {
	var caps models.DailyCaps
	found, err := r.GetJSON(ctx, limitsKeyPrefix+salonID, &caps)
	return caps, found, err
}

// SetCaps implements LimitsCache.
func (r *RedisRepository) SetCaps(ctx context.Context, salonID string, caps models.DailyCaps) error {
	if r == nil {
		return nil
	}
	return r.SetJSON(ctx, limitsKeyPrefix+salonID, caps, r.ttl)
}

// GetJSON fetches a JSON payload from Redis and unmarshals it into dest.
func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if r == nil || r.Client == nil {
		return false, nil
	}
	data, err := r.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON stores a JSON payload in Redis with the provided TTL.
func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r == nil || r.Client == nil {
		return nil
	}
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.Client.SetEX(ctx, key, data, ttl).Err()
}
