package service_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prepforge/billing-service/internal/domain"
	"github.com/prepforge/billing-service/internal/repository"
	"github.com/prepforge/billing-service/internal/stripe"
	"github.com/prepforge/billing-service/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.ERROR)
}

// fakeRepo повторяет семантику постгресового репозитория в памяти:
// write-once связь с customer, абсолютная перезапись полей подписки.
type fakeRepo struct {
	mu   sync.Mutex
	subs map[string]*domain.Subscription

	failGet    error
	failUpsert error
	failClear  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{subs: make(map[string]*domain.Subscription)}
}

func (f *fakeRepo) GetByUserID(_ context.Context, userID string) (*domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, f.failGet
	}
	sub, ok := f.subs[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeRepo) GetByExternalCustomerID(_ context.Context, customerID string) (*domain.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, f.failGet
	}
	for _, sub := range f.subs {
		if sub.StripeCustomerID != nil && *sub.StripeCustomerID == customerID {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRepo) EnsureCustomerLink(_ context.Context, userID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	if !ok {
		sub = domain.FreeSubscription(userID)
		sub.CreatedAt = time.Now().UTC()
		f.subs[userID] = sub
	}
	if sub.StripeCustomerID == nil || *sub.StripeCustomerID == "" {
		sub.StripeCustomerID = &customerID
	}
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeRepo) UpsertTierAndStatus(_ context.Context, userID string, upd domain.SubscriptionUpdate) error {
	if err := upd.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert != nil {
		return f.failUpsert
	}
	sub, ok := f.subs[userID]
	if !ok {
		sub = domain.FreeSubscription(userID)
		sub.CreatedAt = time.Now().UTC()
		f.subs[userID] = sub
	}
	sub.Tier = upd.Tier
	sub.Status = upd.Status
	sub.StripeSubscriptionID = upd.StripeSubscriptionID
	sub.CurrentPeriodEnd = upd.CurrentPeriodEnd
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeRepo) ClearSubscription(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failClear != nil {
		return f.failClear
	}
	sub, ok := f.subs[userID]
	if !ok {
		return repository.ErrNotFound
	}
	sub.Tier = domain.PlanFree
	sub.Status = domain.SubscriptionStatusInactive
	sub.StripeSubscriptionID = nil
	sub.CurrentPeriodEnd = nil
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeRepo) get(userID string) *domain.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[userID]
	if !ok {
		return nil
	}
	cp := *sub
	return &cp
}

func (f *fakeRepo) seed(sub *domain.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[sub.UserID] = sub
}

// fakeStripeClient управляемый клиент платежного провайдера
type fakeStripeClient struct {
	mu sync.Mutex

	customersCreated int
	productsEnsured  int
	pricesEnsured    []string
	sessionsCreated  []map[string]string

	subscription     *stripe.SubscriptionDetails
	failCustomer     error
	failProduct      error
	failPrice        error
	failSession      error
	failSubscription error
}

func newFakeStripeClient() *fakeStripeClient {
	return &fakeStripeClient{
		subscription: &stripe.SubscriptionDetails{
			ID:               "sub_123",
			Status:           "active",
			CurrentPeriodEnd: time.Date(2026, 9, 28, 0, 0, 0, 0, time.UTC),
		},
	}
}

func (f *fakeStripeClient) CreateCustomer(_ context.Context, userID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCustomer != nil {
		return "", f.failCustomer
	}
	f.customersCreated++
	return fmt.Sprintf("cus_%s_%d", userID, f.customersCreated), nil
}

func (f *fakeStripeClient) EnsureProduct(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failProduct != nil {
		return "", f.failProduct
	}
	f.productsEnsured++
	return "prod_" + name, nil
}

func (f *fakeStripeClient) EnsurePrice(_ context.Context, productID string, plan domain.Plan) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPrice != nil {
		return "", f.failPrice
	}
	priceID := fmt.Sprintf("price_%s_%s", productID, plan.ID)
	f.pricesEnsured = append(f.pricesEnsured, priceID)
	return priceID, nil
}

func (f *fakeStripeClient) CreateCheckoutSession(_ context.Context, customerID, priceID string, metadata map[string]string, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSession != nil {
		return "", f.failSession
	}
	recorded := map[string]string{
		"customer":        customerID,
		"price":           priceID,
		"idempotency_key": idempotencyKey,
	}
	for k, v := range metadata {
		recorded[k] = v
	}
	f.sessionsCreated = append(f.sessionsCreated, recorded)
	return "https://checkout.stripe.test/session/" + priceID, nil
}

func (f *fakeStripeClient) GetSubscription(_ context.Context, subscriptionID string) (*stripe.SubscriptionDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubscription != nil {
		return nil, f.failSubscription
	}
	details := *f.subscription
	details.ID = subscriptionID
	return &details, nil
}
