package repository

import (
	"context"

	"github.com/prepforge/billing-service/internal/domain"
	"github.com/prepforge/billing-service/pkg/logger"
)

// CachedSubscriptionRepository реализует SubscriptionRepository с кешированием.
// Ошибки кеша никогда не фатальны: источником истины остается БД.
type CachedSubscriptionRepository struct {
	repo  SubscriptionRepository
	cache *RedisCacheRepository
	log   *logger.Logger
}

// NewCachedSubscriptionRepository создает новый репозиторий с кешированием
func NewCachedSubscriptionRepository(
	repo SubscriptionRepository,
	cache *RedisCacheRepository,
	log *logger.Logger,
) SubscriptionRepository {
	return &CachedSubscriptionRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// GetByUserID получает запись подписки (сначала из кеша, потом из БД)
func (r *CachedSubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	cached, err := r.cache.GetCachedByUserID(ctx, userID)
	if err != nil {
		r.log.Warnw("Error getting subscription from cache", "error", err, "userID", userID)
	}
	if cached != nil {
		return cached, nil
	}

	sub, err := r.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.CacheSubscription(ctx, sub); err != nil {
		r.log.Warnw("Failed to cache subscription after fetching", "error", err, "userID", userID)
	}

	return sub, nil
}

// GetByExternalCustomerID получает запись по внешнему customer ID
func (r *CachedSubscriptionRepository) GetByExternalCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error) {
	cached, err := r.cache.GetCachedByCustomerID(ctx, customerID)
	if err != nil {
		r.log.Warnw("Error getting subscription from cache", "error", err, "customerID", customerID)
	}
	if cached != nil {
		return cached, nil
	}

	sub, err := r.repo.GetByExternalCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.CacheSubscription(ctx, sub); err != nil {
		r.log.Warnw("Failed to cache subscription after fetching", "error", err, "customerID", customerID)
	}

	return sub, nil
}

// EnsureCustomerLink создает связь и инвалидирует кеш
func (r *CachedSubscriptionRepository) EnsureCustomerLink(ctx context.Context, userID, customerID string) error {
	if err := r.repo.EnsureCustomerLink(ctx, userID, customerID); err != nil {
		return err
	}

	if err := r.cache.InvalidateSubscription(ctx, userID, &customerID); err != nil {
		r.log.Warnw("Failed to invalidate cache after customer link", "error", err, "userID", userID)
	}
	return nil
}

// UpsertTierAndStatus перезаписывает поля подписки и инвалидирует кеш
func (r *CachedSubscriptionRepository) UpsertTierAndStatus(ctx context.Context, userID string, upd domain.SubscriptionUpdate) error {
	if err := r.repo.UpsertTierAndStatus(ctx, userID, upd); err != nil {
		return err
	}

	r.invalidate(ctx, userID)
	return nil
}

// ClearSubscription сбрасывает запись и инвалидирует кеш
func (r *CachedSubscriptionRepository) ClearSubscription(ctx context.Context, userID string) error {
	if err := r.repo.ClearSubscription(ctx, userID); err != nil {
		return err
	}

	r.invalidate(ctx, userID)
	return nil
}

// invalidate чистит оба ключа записи. Customer ID берем из закешированной
// копии, чтобы не ходить в БД ради инвалидации.
func (r *CachedSubscriptionRepository) invalidate(ctx context.Context, userID string) {
	var customerID *string
	if cached, err := r.cache.GetCachedByUserID(ctx, userID); err == nil && cached != nil {
		customerID = cached.StripeCustomerID
	}

	if err := r.cache.InvalidateSubscription(ctx, userID, customerID); err != nil {
		r.log.Warnw("Failed to invalidate subscription cache", "error", err, "userID", userID)
	}
}
