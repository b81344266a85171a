package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	stripego "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/prepforge/billing-service/internal/domain"
	"github.com/prepforge/billing-service/pkg/logger"
)

// Типы событий Stripe, которые обрабатывает сервис
const (
	eventCheckoutCompleted    = "checkout.session.completed"
	eventSubscriptionUpdated  = "customer.subscription.updated"
	eventSubscriptionDeleted  = "customer.subscription.deleted"
	eventInvoicePaymentFailed = "invoice.payment_failed"
)

// EventParser проверяет подпись вебхука и сужает полезную нагрузку до
// закрытого набора вариантов domain.BillingEvent.
type EventParser struct {
	secret string
	log    *logger.Logger
}

// NewEventParser создает новый парсер событий с секретом подписи
func NewEventParser(secret string, log *logger.Logger) *EventParser {
	return &EventParser{
		secret: secret,
		log:    log,
	}
}

// Parse проверяет подпись сырого тела запроса и возвращает типизированное
// событие. Проверка подписи предшествует любому разбору: при неверной подписи
// возвращается domain.ErrInvalidSignature и никакой интерпретации payload не происходит.
func (p *EventParser) Parse(payload []byte, signatureHeader string) (domain.BillingEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		// Причину наружу не раскрываем, детали только в логе
		p.log.Warnw("Webhook signature verification failed", "error", err)
		return nil, domain.ErrInvalidSignature
	}

	switch string(event.Type) {
	case eventCheckoutCompleted:
		return p.parseCheckoutCompleted(event)
	case eventSubscriptionUpdated:
		return p.parseSubscriptionUpdated(event)
	case eventSubscriptionDeleted:
		return p.parseSubscriptionDeleted(event)
	case eventInvoicePaymentFailed:
		return p.parseInvoicePaymentFailed(event)
	default:
		return domain.UnknownEvent{EventID: event.ID, Type: string(event.Type)}, nil
	}
}

// parseCheckoutCompleted разбирает завершение checkout-сессии.
// Корреляция - метаданные сессии (user_id, plan_id), проставленные при ее создании.
func (p *EventParser) parseCheckoutCompleted(event stripego.Event) (domain.BillingEvent, error) {
	var sess stripego.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse checkout session payload: %w", err)
	}

	out := domain.CheckoutCompleted{
		EventID: event.ID,
		UserID:  sess.Metadata[metadataUserIDKey],
		Plan:    domain.PlanID(sess.Metadata[metadataPlanIDKey]),
	}
	if sess.Subscription != nil {
		out.SubscriptionID = sess.Subscription.ID
	}
	return out, nil
}

// parseSubscriptionUpdated разбирает изменение подписки.
// Корреляция - внешний customer ID владельца подписки.
func (p *EventParser) parseSubscriptionUpdated(event stripego.Event) (domain.BillingEvent, error) {
	var sub stripego.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("failed to parse subscription payload: %w", err)
	}

	out := domain.SubscriptionUpdated{
		EventID:        event.ID,
		SubscriptionID: sub.ID,
		UpstreamStatus: string(sub.Status),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		out.CurrentPeriodEnd = &periodEnd
	}
	return out, nil
}

// parseSubscriptionDeleted разбирает удаление подписки
func (p *EventParser) parseSubscriptionDeleted(event stripego.Event) (domain.BillingEvent, error) {
	var sub stripego.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("failed to parse subscription payload: %w", err)
	}

	out := domain.SubscriptionDeleted{
		EventID:        event.ID,
		SubscriptionID: sub.ID,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return out, nil
}

// parseInvoicePaymentFailed разбирает неудачное списание
func (p *EventParser) parseInvoicePaymentFailed(event stripego.Event) (domain.BillingEvent, error) {
	var inv stripego.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse invoice payload: %w", err)
	}

	out := domain.InvoicePaymentFailed{
		EventID: event.ID,
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
	}
	return out, nil
}
