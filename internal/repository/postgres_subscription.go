package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/prepforge/billing-service/internal/domain"
	"github.com/prepforge/billing-service/pkg/logger"
)

// postgresSubscriptionRepo реализует SubscriptionRepository для PostgreSQL.
type postgresSubscriptionRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresSubscriptionRepository создает новый экземпляр репозитория для PostgreSQL.
func NewPostgresSubscriptionRepository(db *sqlx.DB, log *logger.Logger) SubscriptionRepository {
	return &postgresSubscriptionRepo{
		db:  db,
		log: log,
	}
}

const subscriptionColumns = `
	user_id, tier, status, stripe_customer_id, stripe_subscription_id,
	current_period_end, created_at, updated_at`

// GetByUserID возвращает запись подписки пользователя.
func (r *postgresSubscriptionRepo) GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `SELECT` + subscriptionColumns + `
        FROM user_subscriptions
        WHERE user_id = $1`

	err := r.db.GetContext(ctx, &sub, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get subscription by user ID", "error", err, "userID", userID)
		return nil, fmt.Errorf("repository: failed to get subscription by user id: %w", err)
	}

	return &sub, nil
}

// GetByExternalCustomerID возвращает запись по внешнему customer ID.
func (r *postgresSubscriptionRepo) GetByExternalCustomerID(ctx context.Context, customerID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	query := `SELECT` + subscriptionColumns + `
        FROM user_subscriptions
        WHERE stripe_customer_id = $1`

	err := r.db.GetContext(ctx, &sub, query, customerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get subscription by customer ID", "error", err, "customerID", customerID)
		return nil, fmt.Errorf("repository: failed to get subscription by customer id: %w", err)
	}

	return &sub, nil
}

// EnsureCustomerLink создает связь пользователь -> внешний customer ID.
// COALESCE гарантирует write-once: уже сохраненный customer ID не перезаписывается,
// даже если два первых checkout-запроса создали в Stripe по клиенту каждый.
func (r *postgresSubscriptionRepo) EnsureCustomerLink(ctx context.Context, userID, customerID string) error {
	now := time.Now().UTC()
	query := `
        INSERT INTO user_subscriptions (
            user_id, tier, status, stripe_customer_id, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $5)
        ON CONFLICT (user_id) DO UPDATE SET
            stripe_customer_id = COALESCE(user_subscriptions.stripe_customer_id, EXCLUDED.stripe_customer_id),
            updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		userID, domain.PlanFree, domain.SubscriptionStatusInactive, customerID, now)
	if err != nil {
		r.log.Errorw("Failed to ensure customer link", "error", err, "userID", userID, "customerID", customerID)
		return fmt.Errorf("repository: failed to ensure customer link: %w", err)
	}

	r.log.Debugw("Customer link ensured", "userID", userID, "customerID", customerID)
	return nil
}

// UpsertTierAndStatus абсолютно перезаписывает изменяемые поля подписки.
// Связь с клиентом (stripe_customer_id) при этом не трогается.
func (r *postgresSubscriptionRepo) UpsertTierAndStatus(ctx context.Context, userID string, upd domain.SubscriptionUpdate) error {
	if err := upd.Validate(); err != nil {
		return fmt.Errorf("repository: %w", err)
	}

	now := time.Now().UTC()
	query := `
        INSERT INTO user_subscriptions (
            user_id, tier, status, stripe_subscription_id, current_period_end,
            created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $6)
        ON CONFLICT (user_id) DO UPDATE SET
            tier = EXCLUDED.tier,
            status = EXCLUDED.status,
            stripe_subscription_id = EXCLUDED.stripe_subscription_id,
            current_period_end = EXCLUDED.current_period_end,
            updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		userID, upd.Tier, upd.Status, upd.StripeSubscriptionID, upd.CurrentPeriodEnd, now)
	if err != nil {
		r.log.Errorw("Failed to upsert subscription", "error", err, "userID", userID)
		return fmt.Errorf("repository: failed to upsert subscription: %w", err)
	}

	r.log.Debugw("Subscription upserted", "userID", userID, "tier", upd.Tier, "status", upd.Status)
	return nil
}

// ClearSubscription сбрасывает запись в free/inactive и чистит внешние ссылки.
func (r *postgresSubscriptionRepo) ClearSubscription(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	query := `
        UPDATE user_subscriptions SET
            tier = $1,
            status = $2,
            stripe_subscription_id = NULL,
            current_period_end = NULL,
            updated_at = $3
        WHERE user_id = $4`

	result, err := r.db.ExecContext(ctx, query,
		domain.PlanFree, domain.SubscriptionStatusInactive, now, userID)
	if err != nil {
		r.log.Errorw("Failed to clear subscription", "error", err, "userID", userID)
		return fmt.Errorf("repository: failed to clear subscription: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err == nil && rowsAffected == 0 {
		return ErrNotFound
	}

	r.log.Debugw("Subscription cleared", "userID", userID)
	return nil
}
