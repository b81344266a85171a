package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prepforge/billing-service/internal/domain"
	"github.com/prepforge/billing-service/pkg/logger"
)

const (
	// Префиксы ключей для записей подписок
	userKeyPrefix     = "billing:subscription:user:"
	customerKeyPrefix = "billing:subscription:customer:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// RedisCacheRepository реализует кеширование записей подписок в Redis.
type RedisCacheRepository struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis репозитория
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCacheRepository{
		client: client,
		log:    log,
	}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// CacheSubscription кеширует запись подписки по user ID и, если есть связь,
// по внешнему customer ID.
func (r *RedisCacheRepository) CacheSubscription(ctx context.Context, sub *domain.Subscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	if err := r.client.Set(ctx, userKeyPrefix+sub.UserID, data, defaultCacheTTL).Err(); err != nil {
		r.log.Errorw("Failed to cache subscription by user ID", "error", err, "userID", sub.UserID)
		return fmt.Errorf("failed to cache subscription: %w", err)
	}

	if sub.StripeCustomerID != nil {
		if err := r.client.Set(ctx, customerKeyPrefix+*sub.StripeCustomerID, data, defaultCacheTTL).Err(); err != nil {
			r.log.Errorw("Failed to cache subscription by customer ID", "error", err, "customerID", *sub.StripeCustomerID)
			return fmt.Errorf("failed to cache subscription: %w", err)
		}
	}

	r.log.Debugw("Subscription cached", "userID", sub.UserID)
	return nil
}

// GetCachedByUserID получает запись из кеша по user ID.
// Возвращает (nil, nil) при промахе кеша.
func (r *RedisCacheRepository) GetCachedByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	return r.getCached(ctx, userKeyPrefix+userID)
}

// GetCachedByCustomerID получает запись из кеша по внешнему customer ID.
func (r *RedisCacheRepository) GetCachedByCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error) {
	return r.getCached(ctx, customerKeyPrefix+customerID)
}

func (r *RedisCacheRepository) getCached(ctx context.Context, key string) (*domain.Subscription, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Промах кеша - не ошибка
		}
		r.log.Errorw("Error getting subscription from Redis", "error", err, "key", key)
		return nil, fmt.Errorf("failed to get subscription from cache: %w", err)
	}

	var sub domain.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached subscription: %w", err)
	}

	return &sub, nil
}

// InvalidateSubscription удаляет запись из кеша по обоим ключам.
// Вызывается после каждой записи: вебхуки должны читать свежие данные.
func (r *RedisCacheRepository) InvalidateSubscription(ctx context.Context, userID string, customerID *string) error {
	keys := []string{userKeyPrefix + userID}
	if customerID != nil {
		keys = append(keys, customerKeyPrefix+*customerID)
	}

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.log.Errorw("Failed to invalidate subscription cache", "error", err, "userID", userID)
		return fmt.Errorf("failed to invalidate subscription cache: %w", err)
	}

	r.log.Debugw("Subscription cache invalidated", "userID", userID)
	return nil
}
