package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/prepforge/billing-service/internal/domain"
	"github.com/prepforge/billing-service/internal/metrics"
	"github.com/prepforge/billing-service/internal/repository"
	"github.com/prepforge/billing-service/internal/stripe"
	"github.com/prepforge/billing-service/pkg/logger"
)

const (
	metadataUserIDKey = "user_id"
	metadataPlanIDKey = "plan_id"
)

// CheckoutService открывает hosted checkout сессии для платных тарифов.
type CheckoutService interface {
	// CreateCheckout возвращает redirect URL платежной страницы для
	// аутентифицированного пользователя и выбранного платного тарифа.
	CreateCheckout(ctx context.Context, userID, email string, plan domain.PlanID) (string, error)
}

type checkoutService struct {
	repo         repository.SubscriptionRepository
	stripeClient stripe.Client
	catalog      CatalogService
	metrics      metrics.BillingMetrics
	log          *logger.Logger
}

// NewCheckoutService создает новый сервис checkout
func NewCheckoutService(
	repo repository.SubscriptionRepository,
	stripeClient stripe.Client,
	catalog CatalogService,
	billingMetrics metrics.BillingMetrics,
	log *logger.Logger,
) CheckoutService {
	return &checkoutService{
		repo:         repo,
		stripeClient: stripeClient,
		catalog:      catalog,
		metrics:      billingMetrics,
		log:          log,
	}
}

// CreateCheckout валидирует тариф, разрешает (или создает) связь пользователя
// с внешним customer и открывает checkout-сессию. Связь с customer фиксируется
// в хранилище ДО открытия сессии: даже если сессия не откроется, повторная
// попытка переиспользует того же customer.
func (s *checkoutService) CreateCheckout(ctx context.Context, userID, email string, plan domain.PlanID) (string, error) {
	if _, ok := domain.PaidPlan(plan); !ok {
		s.metrics.IncCheckoutFailed("invalid_plan")
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidPlan, plan)
	}

	priceID, err := s.catalog.PriceForPlan(ctx, plan)
	if err != nil {
		s.metrics.IncCheckoutFailed("provisioning")
		return "", err
	}

	customerID, err := s.resolveCustomer(ctx, userID, email)
	if err != nil {
		s.metrics.IncCheckoutFailed("customer")
		return "", domain.NewCheckoutError(userID, err)
	}

	metadata := map[string]string{
		metadataUserIDKey: userID,
		metadataPlanIDKey: string(plan),
	}

	checkoutURL, err := s.stripeClient.CreateCheckoutSession(ctx, customerID, priceID, metadata, uuid.NewString())
	if err != nil {
		s.metrics.IncCheckoutFailed("session")
		return "", domain.NewCheckoutError(userID, err)
	}

	s.metrics.IncCheckoutStarted(string(plan))
	s.log.Infow("Checkout session created", "userId", userID, "plan", plan, "customerId", customerID)
	return checkoutURL, nil
}

// resolveCustomer возвращает внешний customer ID пользователя, создавая
// клиента в Stripe при первом обращении. После EnsureCustomerLink запись
// перечитывается: при гонке двух запросов авторитетен тот ID, который
// закрепился в хранилище.
func (s *checkoutService) resolveCustomer(ctx context.Context, userID, email string) (string, error) {
	sub, err := s.repo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("load subscription: %w", err)
	}
	if sub != nil && sub.StripeCustomerID != nil && *sub.StripeCustomerID != "" {
		return *sub.StripeCustomerID, nil
	}

	customerID, err := s.stripeClient.CreateCustomer(ctx, userID, email)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}

	if err := s.repo.EnsureCustomerLink(ctx, userID, customerID); err != nil {
		return "", fmt.Errorf("persist customer link: %w", err)
	}

	linked, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("reload customer link: %w", err)
	}
	if linked.StripeCustomerID == nil || *linked.StripeCustomerID == "" {
		return "", fmt.Errorf("customer link missing after write for user %s", userID)
	}
	return *linked.StripeCustomerID, nil
}
