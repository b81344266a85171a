package repository

import (
	"context"

	"github.com/prepforge/billing-service/internal/domain"
)

// SubscriptionRepository узкий контракт хранилища подписок, который потребляет
// обработчик вебхуков и checkout. Остальная персистентность продукта
// (экзамены, вопросы, материалы) живет в соседних сервисах.
type SubscriptionRepository interface {
	// GetByUserID возвращает запись подписки пользователя
	GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error)

	// GetByExternalCustomerID возвращает запись по внешнему customer ID
	GetByExternalCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error)

	// EnsureCustomerLink создает связь пользователь -> внешний customer ID.
	// Связь write-once: существующий customer ID никогда не перезаписывается.
	EnsureCustomerLink(ctx context.Context, userID, customerID string) error

	// UpsertTierAndStatus абсолютно перезаписывает tier/status/subscription_id/period_end
	UpsertTierAndStatus(ctx context.Context, userID string, upd domain.SubscriptionUpdate) error

	// ClearSubscription сбрасывает запись в free/inactive и чистит внешние ссылки
	ClearSubscription(ctx context.Context, userID string) error
}
