package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripego "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/prepforge/billing-service/internal/domain"
	"github.com/prepforge/billing-service/pkg/logger"
)

const (
	// Ключи метаданных для связи объектов Stripe с локальным пользователем
	metadataUserIDKey = "user_id"
	metadataPlanIDKey = "plan_id"
)

// SubscriptionDetails срез полей подписки Stripe, который нужен обработчику вебхуков
type SubscriptionDetails struct {
	ID               string
	Status           string
	CurrentPeriodEnd time.Time
}

// Client определяет методы для взаимодействия со Stripe API.
type Client interface {
	// CreateCustomer создает нового клиента в Stripe и возвращает его Stripe ID.
	CreateCustomer(ctx context.Context, userID, email string) (string, error)

	// EnsureProduct находит активный продукт по имени или создает новый.
	EnsureProduct(ctx context.Context, name string) (string, error)

	// EnsurePrice находит активную цену продукта по интервалу и сумме или создает новую.
	EnsurePrice(ctx context.Context, productID string, plan domain.Plan) (string, error)

	// CreateCheckoutSession открывает hosted checkout сессию и возвращает redirect URL.
	CreateCheckoutSession(ctx context.Context, customerID, priceID string, metadata map[string]string, idempotencyKey string) (string, error)

	// GetSubscription возвращает актуальное состояние подписки из Stripe.
	GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionDetails, error)
}

// Config конфигурация клиента Stripe
type Config struct {
	APIKey     string
	SuccessURL string
	CancelURL  string
}

// stripeClient реализует интерфейс Client поверх официального SDK.
type stripeClient struct {
	api *client.API
	cfg Config
	log *logger.Logger
}

// NewClient создает новый экземпляр клиента Stripe.
func NewClient(cfg Config, log *logger.Logger) Client {
	api := &client.API{}
	api.Init(cfg.APIKey, nil)
	return &stripeClient{
		api: api,
		cfg: cfg,
		log: log,
	}
}

// CreateCustomer создает нового клиента в Stripe.
func (sc *stripeClient) CreateCustomer(ctx context.Context, userID, email string) (string, error) {
	params := &stripego.CustomerParams{
		Email: stripego.String(email),
	}
	params.Context = ctx
	params.AddMetadata(metadataUserIDKey, userID)

	cus, err := sc.api.Customers.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateCustomer", err)
		return "", fmt.Errorf("stripe: failed to create customer: %w", err)
	}

	sc.log.Infow("Stripe customer created", "stripeCustomerID", cus.ID, "userID", userID)
	return cus.ID, nil
}

// EnsureProduct ищет активный продукт по имени; если не находит - создает.
// Гонка двух первых вызовов может породить дубликат продукта в каталоге,
// это безвредно: цены сессий всегда берутся из закешированных ID.
func (sc *stripeClient) EnsureProduct(ctx context.Context, name string) (string, error) {
	listParams := &stripego.ProductListParams{
		Active: stripego.Bool(true),
	}
	listParams.Context = ctx

	it := sc.api.Products.List(listParams)
	for it.Next() {
		p := it.Product()
		if p.Name == name {
			sc.log.Debugw("Found existing Stripe product", "productID", p.ID, "name", name)
			return p.ID, nil
		}
	}
	if err := it.Err(); err != nil {
		logStripeError(sc.log, "ListProducts", err)
		return "", fmt.Errorf("stripe: failed to list products: %w", err)
	}

	createParams := &stripego.ProductParams{
		Name: stripego.String(name),
	}
	createParams.Context = ctx

	p, err := sc.api.Products.New(createParams)
	if err != nil {
		logStripeError(sc.log, "CreateProduct", err)
		return "", fmt.Errorf("stripe: failed to create product: %w", err)
	}

	sc.log.Infow("Stripe product created", "productID", p.ID, "name", name)
	return p.ID, nil
}

// EnsurePrice ищет активную цену продукта по интервалу, сумме и валюте; если
// не находит - создает новую.
func (sc *stripeClient) EnsurePrice(ctx context.Context, productID string, plan domain.Plan) (string, error) {
	listParams := &stripego.PriceListParams{
		Product: stripego.String(productID),
		Active:  stripego.Bool(true),
	}
	listParams.Context = ctx

	it := sc.api.Prices.List(listParams)
	for it.Next() {
		p := it.Price()
		if p.Recurring == nil {
			continue
		}
		if string(p.Recurring.Interval) == string(plan.Interval) &&
			p.UnitAmount == plan.Amount &&
			string(p.Currency) == plan.Currency {
			sc.log.Debugw("Found existing Stripe price", "priceID", p.ID, "plan", plan.ID)
			return p.ID, nil
		}
	}
	if err := it.Err(); err != nil {
		logStripeError(sc.log, "ListPrices", err)
		return "", fmt.Errorf("stripe: failed to list prices: %w", err)
	}

	createParams := &stripego.PriceParams{
		Product:    stripego.String(productID),
		UnitAmount: stripego.Int64(plan.Amount),
		Currency:   stripego.String(plan.Currency),
		Recurring: &stripego.PriceRecurringParams{
			Interval: stripego.String(string(plan.Interval)),
		},
	}
	createParams.Context = ctx
	createParams.AddMetadata(metadataPlanIDKey, string(plan.ID))

	p, err := sc.api.Prices.New(createParams)
	if err != nil {
		logStripeError(sc.log, "CreatePrice", err)
		return "", fmt.Errorf("stripe: failed to create price: %w", err)
	}

	sc.log.Infow("Stripe price created", "priceID", p.ID, "plan", plan.ID, "amount", plan.Amount)
	return p.ID, nil
}

// CreateCheckoutSession открывает hosted checkout для одной цены, количество 1.
// Метаданные сессии - единственный канал, по которому completion-событие
// свяжется с локальным пользователем.
func (sc *stripeClient) CreateCheckoutSession(ctx context.Context, customerID, priceID string, metadata map[string]string, idempotencyKey string) (string, error) {
	params := &stripego.CheckoutSessionParams{
		Customer: stripego.String(customerID),
		Mode:     stripego.String(string(stripego.CheckoutSessionModeSubscription)),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				Price:    stripego.String(priceID),
				Quantity: stripego.Int64(1),
			},
		},
		SuccessURL: stripego.String(sc.cfg.SuccessURL),
		CancelURL:  stripego.String(sc.cfg.CancelURL),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.IdempotencyKey = stripego.String(idempotencyKey)
	}
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}

	sess, err := sc.api.CheckoutSessions.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateCheckoutSession", err)
		return "", fmt.Errorf("stripe: failed to create checkout session: %w", err)
	}

	sc.log.Infow("Stripe checkout session created", "sessionID", sess.ID, "customerID", customerID)
	return sess.URL, nil
}

// GetSubscription возвращает актуальное состояние подписки из Stripe.
func (sc *stripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionDetails, error) {
	params := &stripego.SubscriptionParams{}
	params.Context = ctx

	sub, err := sc.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		logStripeError(sc.log, "GetSubscription", err)
		return nil, fmt.Errorf("stripe: failed to get subscription: %w", err)
	}

	return &SubscriptionDetails{
		ID:               sub.ID,
		Status:           string(sub.Status),
		CurrentPeriodEnd: time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	}, nil
}

// logStripeError логирует детали ошибки Stripe API, если они доступны
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", stripeErr.Type,
			"code", stripeErr.Code,
			"message", stripeErr.Msg,
		)
		return
	}
	log.Errorw("Stripe request failed", "operation", operation, "error", err)
}
