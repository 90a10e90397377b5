package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"grillbook/internal/config"
	"grillbook/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	listKey          = "reservations:list"
	attemptKeyPrefix = "cancel_attempts:"
)

// RedisRepository keeps the reservation list cache and cancellation attempt counters in Redis.
type RedisRepository struct {
	client  *redis.Client
	listTTL time.Duration
}

// NewRedisClient builds a client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisRepository(client *redis.Client, listTTL time.Duration) *RedisRepository {
	return &RedisRepository{
		client:  client,
		listTTL: listTTL,
	}
}

func (r *RedisRepository) GetList(ctx context.Context) ([]*models.Reservation, bool, error) {
	if r.client == nil {
		return nil, false, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, listKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get reservation list from redis: %w", err)
	}

	var list []*models.Reservation
	if err := json.Unmarshal(val, &list); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal reservation list: %w", err)
	}
	return list, true, nil
}

func (r *RedisRepository) SetList(ctx context.Context, list []*models.Reservation) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if list == nil {
		list = []*models.Reservation{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal reservation list: %w", err)
	}
	if err := r.client.Set(ctx, listKey, data, r.listTTL).Err(); err != nil {
		return fmt.Errorf("failed to set reservation list in redis: %w", err)
	}
	return nil
}

func (r *RedisRepository) Invalidate(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, listKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate reservation list: %w", err)
	}
	return nil
}

// Allow counts an attempt for key and reports whether it is within limit for the window.
func (r *RedisRepository) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	redisKey := attemptKeyPrefix + key

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to count cancellation attempt: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set attempt window: %w", err)
		}
	}
	return count <= int64(limit), nil
}

func (r *RedisRepository) Reset(ctx context.Context, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, attemptKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset cancellation attempts: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
