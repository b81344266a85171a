package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepforge/billing-service/internal/api/rest/handlers"
	"github.com/prepforge/billing-service/internal/domain"
	"github.com/prepforge/billing-service/internal/middleware"
	"github.com/prepforge/billing-service/pkg/logger"
)

type scriptedCheckoutService struct {
	url  string
	err  error
	user string
	plan domain.PlanID
}

func (s *scriptedCheckoutService) CreateCheckout(_ context.Context, userID, _ string, plan domain.PlanID) (string, error) {
	s.user = userID
	s.plan = plan
	if s.err != nil {
		return "", s.err
	}
	return s.url, nil
}

type scriptedSubscriptionService struct {
	sub *domain.Subscription
	err error
}

func (s *scriptedSubscriptionService) GetForUser(_ context.Context, userID string) (*domain.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.sub != nil {
		return s.sub, nil
	}
	return domain.FreeSubscription(userID), nil
}

func (s *scriptedSubscriptionService) ListPlans(_ context.Context) []domain.Plan {
	return domain.PaidPlans()
}

// fakeAuth подменяет JWT middleware, прокидывая пользователя в контекст
func fakeAuth(userID, email string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(string(middleware.ContextUserIDKey), userID)
		c.Set(string(middleware.ContextUserEmailKey), email)
		c.Next()
	}
}

func newBillingRouter(checkout *scriptedCheckoutService, subs *scriptedSubscriptionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.New(logger.ERROR)

	var handler *handlers.BillingHandler
	if checkout == nil {
		handler = handlers.NewBillingHandler(nil, subs, log)
	} else {
		handler = handlers.NewBillingHandler(checkout, subs, log)
	}

	r := gin.New()
	billing := r.Group("/api/v1/billing")
	billing.Use(fakeAuth("user-1", "user@example.com"))
	{
		billing.POST("/checkout", handler.CreateCheckout)
		billing.GET("/subscription", handler.GetSubscription)
		billing.GET("/plans", handler.ListPlans)
	}
	return r
}

func TestCreateCheckout_ReturnsCheckoutURL(t *testing.T) {
	checkout := &scriptedCheckoutService{url: "https://checkout.stripe.test/cs_1"}
	r := newBillingRouter(checkout, &scriptedSubscriptionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(`{"planId":"monthly"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://checkout.stripe.test/cs_1")
	assert.Equal(t, "user-1", checkout.user)
	assert.Equal(t, domain.PlanMonthly, checkout.plan)
}

func TestCreateCheckout_RejectsMalformedBody(t *testing.T) {
	r := newBillingRouter(&scriptedCheckoutService{url: "u"}, &scriptedSubscriptionService{})

	for _, body := range []string{`{}`, `{"planId":"free"}`, `{"planId":"enterprise"}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", body)
	}
}

func TestCreateCheckout_UnconfiguredBillingReturns503(t *testing.T) {
	r := newBillingRouter(nil, &scriptedSubscriptionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(`{"planId":"monthly"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCreateCheckout_ProviderFailureReturns500(t *testing.T) {
	checkout := &scriptedCheckoutService{err: domain.NewCheckoutError("user-1", assert.AnError)}
	r := newBillingRouter(checkout, &scriptedSubscriptionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", strings.NewReader(`{"planId":"annual"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetSubscription_ReturnsFreeDefault(t *testing.T) {
	r := newBillingRouter(&scriptedCheckoutService{}, &scriptedSubscriptionService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/subscription", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tier":"free"`)
	assert.Contains(t, w.Body.String(), `"user_id":"user-1"`)
}

func TestListPlans_ReturnsPaidPlans(t *testing.T) {
	r := newBillingRouter(&scriptedCheckoutService{}, &scriptedSubscriptionService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/plans", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"monthly"`)
	assert.Contains(t, w.Body.String(), `"annual"`)
}
