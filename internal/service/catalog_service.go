package service

import (
	"context"
	"sync"

	"github.com/prepforge/billing-service/internal/domain"
	"github.com/prepforge/billing-service/internal/stripe"
	"github.com/prepforge/billing-service/pkg/logger"
)

// CatalogService лениво разворачивает каталог тарифов в Stripe
// (продукт и цены) и кэширует идентификаторы на время жизни процесса.
type CatalogService interface {
	// Ensure возвращает каталог, при первом вызове создавая недостающие
	// объекты Stripe. Повторные вызовы отдают кэш без обращений к API.
	Ensure(ctx context.Context) (domain.Catalog, error)
	// PriceForPlan возвращает идентификатор цены Stripe для платного тарифа.
	PriceForPlan(ctx context.Context, plan domain.PlanID) (string, error)
}

type catalogService struct {
	stripeClient stripe.Client
	productName  string
	log          *logger.Logger

	mu      sync.Mutex
	catalog *domain.Catalog
}

// NewCatalogService создает новый сервис каталога тарифов
func NewCatalogService(stripeClient stripe.Client, productName string, log *logger.Logger) CatalogService {
	return &catalogService{
		stripeClient: stripeClient,
		productName:  productName,
		log:          log,
	}
}

// Ensure разворачивает каталог в Stripe, если он еще не создан.
// Мьютекс удерживается на все время провижининга: конкурирующие запросы
// ждут первого и получают его результат, поиск/создание не дублируется.
func (s *catalogService) Ensure(ctx context.Context) (domain.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.catalog != nil {
		return *s.catalog, nil
	}

	s.log.Infow("Provisioning billing catalog in Stripe", "product", s.productName)

	productID, err := s.stripeClient.EnsureProduct(ctx, s.productName)
	if err != nil {
		s.log.Errorw("Failed to ensure Stripe product", "product", s.productName, "error", err)
		return domain.Catalog{}, domain.NewProvisioningError("ensure product", err)
	}

	monthlyPlan, _ := domain.PaidPlan(domain.PlanMonthly)
	monthlyPriceID, err := s.stripeClient.EnsurePrice(ctx, productID, monthlyPlan)
	if err != nil {
		s.log.Errorw("Failed to ensure monthly price", "productId", productID, "error", err)
		return domain.Catalog{}, domain.NewProvisioningError("ensure monthly price", err)
	}

	annualPlan, _ := domain.PaidPlan(domain.PlanAnnual)
	annualPriceID, err := s.stripeClient.EnsurePrice(ctx, productID, annualPlan)
	if err != nil {
		s.log.Errorw("Failed to ensure annual price", "productId", productID, "error", err)
		return domain.Catalog{}, domain.NewProvisioningError("ensure annual price", err)
	}

	// Кэшируем только полностью собранный каталог: после ошибки на любом
	// шаге следующий вызов повторит провижининг с начала.
	s.catalog = &domain.Catalog{
		ProductID:      productID,
		MonthlyPriceID: monthlyPriceID,
		AnnualPriceID:  annualPriceID,
	}

	s.log.Infow("Billing catalog provisioned",
		"productId", productID,
		"monthlyPriceId", monthlyPriceID,
		"annualPriceId", annualPriceID)

	return *s.catalog, nil
}

// PriceForPlan возвращает цену Stripe для платного тарифа
func (s *catalogService) PriceForPlan(ctx context.Context, plan domain.PlanID) (string, error) {
	catalog, err := s.Ensure(ctx)
	if err != nil {
		return "", err
	}

	priceID, ok := catalog.PriceFor(plan)
	if !ok {
		return "", domain.ErrInvalidPlan
	}
	return priceID, nil
}
