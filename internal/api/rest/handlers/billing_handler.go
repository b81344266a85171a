package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepforge/billing-service/internal/domain"
	"github.com/prepforge/billing-service/internal/middleware"
	"github.com/prepforge/billing-service/internal/service"
	"github.com/prepforge/billing-service/pkg/logger"
	"github.com/prepforge/billing-service/pkg/req"
	"github.com/prepforge/billing-service/pkg/res"
)

// CreateCheckoutRequest тело запроса на открытие checkout-сессии
type CreateCheckoutRequest struct {
	PlanID string `json:"planId" validate:"required,oneof=monthly annual"`
}

// CreateCheckoutResponse redirect URL платежной страницы
type CreateCheckoutResponse struct {
	URL string `json:"url"`
}

// BillingHandler обработчики пользовательского API биллинга.
// checkoutService равен nil, когда биллинг не сконфигурирован: платные
// маршруты отвечают 503, остальной сервис продолжает работать.
type BillingHandler struct {
	checkoutService     service.CheckoutService
	subscriptionService service.SubscriptionService
	log                 *logger.Logger
}

// NewBillingHandler создает новый обработчик биллинга
func NewBillingHandler(checkoutService service.CheckoutService, subscriptionService service.SubscriptionService, log *logger.Logger) *BillingHandler {
	return &BillingHandler{
		checkoutService:     checkoutService,
		subscriptionService: subscriptionService,
		log:                 log,
	}
}

// CreateCheckout открывает checkout-сессию для платного тарифа
func (h *BillingHandler) CreateCheckout(c *gin.Context) {
	if h.checkoutService == nil {
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "Billing is not configured", ErrorCode: http.StatusServiceUnavailable}, http.StatusServiceUnavailable, h.log)
		return
	}

	body, err := req.HandleBody[CreateCheckoutRequest](c.Writer, c.Request, h.log)
	if err != nil {
		return
	}

	userID := c.GetString(string(middleware.ContextUserIDKey))
	email := c.GetString(string(middleware.ContextUserEmailKey))

	checkoutURL, err := h.checkoutService.CreateCheckout(c.Request.Context(), userID, email, domain.PlanID(body.PlanID))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPlan):
			res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "Unknown billing plan", ErrorCode: http.StatusBadRequest}, http.StatusBadRequest, h.log)
		case errors.Is(err, domain.ErrNotConfigured):
			res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "Billing is not configured", ErrorCode: http.StatusServiceUnavailable}, http.StatusServiceUnavailable, h.log)
		default:
			h.log.Errorw("Failed to create checkout session", "userId", userID, "error", err)
			res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "Failed to create checkout session", ErrorCode: http.StatusInternalServerError}, http.StatusInternalServerError, h.log)
		}
		return
	}

	res.JsonResponse(c.Writer, CreateCheckoutResponse{URL: checkoutURL}, http.StatusOK)
}

// GetSubscription возвращает текущую подписку пользователя
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	userID := c.GetString(string(middleware.ContextUserIDKey))

	sub, err := h.subscriptionService.GetForUser(c.Request.Context(), userID)
	if err != nil {
		h.log.Errorw("Failed to load subscription", "userId", userID, "error", err)
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Error: "Failed to load subscription", ErrorCode: http.StatusInternalServerError}, http.StatusInternalServerError, h.log)
		return
	}

	res.JsonResponse(c.Writer, sub, http.StatusOK)
}

// ListPlans возвращает доступные платные тарифы
func (h *BillingHandler) ListPlans(c *gin.Context) {
	plans := h.subscriptionService.ListPlans(c.Request.Context())
	res.JsonResponse(c.Writer, gin.H{"plans": plans}, http.StatusOK)
}
