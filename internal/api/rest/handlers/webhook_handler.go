package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prepforge/billing-service/internal/domain"
	"github.com/prepforge/billing-service/internal/service"
	"github.com/prepforge/billing-service/internal/stripe"
	"github.com/prepforge/billing-service/pkg/logger"
	"github.com/prepforge/billing-service/pkg/res"
)

// Stripe не шлет тела больше 64KB, лимит с запасом
const maxWebhookBodyBytes = 1 << 20

// WebhookHandler принимает вебхуки Stripe.
// Код ответа управляет повторной доставкой: 2xx подтверждает событие,
// 5xx заставляет Stripe доставить его снова.
type WebhookHandler struct {
	parser         *stripe.EventParser
	webhookService service.WebhookService
	log            *logger.Logger
}

// NewWebhookHandler создает новый обработчик вебхуков.
// parser и webhookService равны nil, когда биллинг не сконфигурирован.
func NewWebhookHandler(parser *stripe.EventParser, webhookService service.WebhookService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		parser:         parser,
		webhookService: webhookService,
		log:            log,
	}
}

// HandleStripeWebhook обрабатывает вебхуки от Stripe
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	if h.parser == nil || h.webhookService == nil {
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{
			Error:     "Billing is not configured",
			ErrorCode: http.StatusServiceUnavailable,
		}, http.StatusServiceUnavailable, h.log)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		h.log.Errorw("Failed to read webhook body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read webhook body"})
		return
	}

	event, err := h.parser.Parse(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSignature) {
			// Причина отказа не раскрывается отправителю
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook signature"})
			return
		}
		h.log.Errorw("Failed to parse webhook payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed webhook payload"})
		return
	}

	if err := h.webhookService.ProcessEvent(c.Request.Context(), event); err != nil {
		if errors.Is(err, domain.ErrUnresolvedCorrelation) {
			// Повторная доставка не исправит корреляцию: подтверждаем,
			// детали уже в логах
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		h.log.Errorw("Failed to apply webhook event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
