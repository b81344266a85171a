package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepforge/billing-service/internal/domain"
	"github.com/prepforge/billing-service/internal/metrics"
	"github.com/prepforge/billing-service/internal/service"
)

func newCheckoutService(repo *fakeRepo, client *fakeStripeClient) service.CheckoutService {
	catalog := service.NewCatalogService(client, "PrepForge Premium", testLogger())
	return service.NewCheckoutService(repo, client, catalog, metrics.NopBillingMetrics{}, testLogger())
}

func TestCreateCheckout_ReturnsSessionURL(t *testing.T) {
	repo := newFakeRepo()
	client := newFakeStripeClient()
	svc := newCheckoutService(repo, client)

	url, err := svc.CreateCheckout(context.Background(), "user-1", "user@example.com", domain.PlanMonthly)
	require.NoError(t, err)
	assert.Contains(t, url, "https://checkout.stripe.test/")

	require.Len(t, client.sessionsCreated, 1)
	session := client.sessionsCreated[0]
	assert.Equal(t, "user-1", session["user_id"])
	assert.Equal(t, "monthly", session["plan_id"])
	assert.NotEmpty(t, session["idempotency_key"])
}

func TestCreateCheckout_RejectsUnknownPlan(t *testing.T) {
	svc := newCheckoutService(newFakeRepo(), newFakeStripeClient())

	_, err := svc.CreateCheckout(context.Background(), "user-1", "user@example.com", domain.PlanID("enterprise"))
	require.ErrorIs(t, err, domain.ErrInvalidPlan)

	_, err = svc.CreateCheckout(context.Background(), "user-1", "user@example.com", domain.PlanFree)
	require.ErrorIs(t, err, domain.ErrInvalidPlan)
}

func TestCreateCheckout_PersistsCustomerLinkBeforeSession(t *testing.T) {
	repo := newFakeRepo()
	client := newFakeStripeClient()
	client.failSession = errors.New("stripe down")
	svc := newCheckoutService(repo, client)

	_, err := svc.CreateCheckout(context.Background(), "user-1", "user@example.com", domain.PlanMonthly)
	var checkoutErr *domain.CheckoutError
	require.ErrorAs(t, err, &checkoutErr)

	// Связь с customer закрепилась несмотря на падение сессии
	sub := repo.get("user-1")
	require.NotNil(t, sub)
	require.NotNil(t, sub.StripeCustomerID)

	// Повторная попытка переиспользует того же customer
	client.failSession = nil
	_, err = svc.CreateCheckout(context.Background(), "user-1", "user@example.com", domain.PlanMonthly)
	require.NoError(t, err)
	assert.Equal(t, 1, client.customersCreated)
}

func TestCreateCheckout_ReusesExistingCustomerLink(t *testing.T) {
	repo := newFakeRepo()
	customerID := "cus_existing"
	repo.seed(&domain.Subscription{
		UserID:           "user-1",
		Tier:             domain.PlanFree,
		Status:           domain.SubscriptionStatusInactive,
		StripeCustomerID: &customerID,
	})
	client := newFakeStripeClient()
	svc := newCheckoutService(repo, client)

	_, err := svc.CreateCheckout(context.Background(), "user-1", "user@example.com", domain.PlanAnnual)
	require.NoError(t, err)

	assert.Equal(t, 0, client.customersCreated)
	require.Len(t, client.sessionsCreated, 1)
	assert.Equal(t, "cus_existing", client.sessionsCreated[0]["customer"])
}

func TestCreateCheckout_ProvisioningFailureSurfaces(t *testing.T) {
	client := newFakeStripeClient()
	client.failPrice = errors.New("stripe down")
	svc := newCheckoutService(newFakeRepo(), client)

	_, err := svc.CreateCheckout(context.Background(), "user-1", "user@example.com", domain.PlanMonthly)
	var provisioningErr *domain.ProvisioningError
	require.ErrorAs(t, err, &provisioningErr)
}

func TestCreateCheckout_CustomerCreationFailureWrapsUser(t *testing.T) {
	client := newFakeStripeClient()
	client.failCustomer = errors.New("stripe down")
	svc := newCheckoutService(newFakeRepo(), client)

	_, err := svc.CreateCheckout(context.Background(), "user-1", "user@example.com", domain.PlanMonthly)
	var checkoutErr *domain.CheckoutError
	require.ErrorAs(t, err, &checkoutErr)
	assert.Equal(t, "user-1", checkoutErr.UserID)
}
