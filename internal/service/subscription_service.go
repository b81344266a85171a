package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/prepforge/billing-service/internal/domain"
	"github.com/prepforge/billing-service/internal/repository"
	"github.com/prepforge/billing-service/pkg/logger"
)

// SubscriptionService отдает текущее состояние подписки пользователя
type SubscriptionService interface {
	// GetForUser возвращает подписку пользователя. Для пользователя без
	// записи возвращается бесплатный тариф: отсутствие записи не ошибка.
	GetForUser(ctx context.Context, userID string) (*domain.Subscription, error)

	// ListPlans возвращает доступные платные тарифы
	ListPlans(ctx context.Context) []domain.Plan
}

type subscriptionService struct {
	repo repository.SubscriptionRepository
	log  *logger.Logger
}

// NewSubscriptionService создает новый сервис чтения подписок
func NewSubscriptionService(repo repository.SubscriptionRepository, log *logger.Logger) SubscriptionService {
	return &subscriptionService{
		repo: repo,
		log:  log,
	}
}

// GetForUser возвращает подписку пользователя
func (s *subscriptionService) GetForUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.FreeSubscription(userID), nil
		}
		s.log.Errorw("Failed to load subscription", "userId", userID, "error", err)
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return sub, nil
}

// ListPlans возвращает доступные платные тарифы
func (s *subscriptionService) ListPlans(_ context.Context) []domain.Plan {
	return domain.PaidPlans()
}
