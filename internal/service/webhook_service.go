package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prepforge/billing-service/internal/domain"
	"github.com/prepforge/billing-service/internal/kafka"
	"github.com/prepforge/billing-service/internal/metrics"
	"github.com/prepforge/billing-service/internal/repository"
	"github.com/prepforge/billing-service/internal/stripe"
	"github.com/prepforge/billing-service/pkg/logger"
)

// WebhookService применяет вебхук-события провайдера к локальному
// состоянию подписок. Каждое событие обрабатывается как абсолютная
// перезапись состояния: повторная доставка того же события идемпотентна.
type WebhookService interface {
	// ProcessEvent применяет одно событие. Возвращает:
	//   nil - событие применено или безопасно проигнорировано (ack);
	//   domain.ErrUnresolvedCorrelation - событие не удалось связать
	//   с пользователем, повтор не поможет (ack);
	//   *domain.TransitionError - переход не применился, нужна
	//   повторная доставка (nack).
	ProcessEvent(ctx context.Context, event domain.BillingEvent) error
}

type webhookService struct {
	repo         repository.SubscriptionRepository
	stripeClient stripe.Client
	producer     kafka.Producer
	metrics      metrics.BillingMetrics
	log          *logger.Logger
}

// NewWebhookService создает новый сервис обработки вебхуков.
// producer может быть nil: публикация событий жизненного цикла отключается.
func NewWebhookService(
	repo repository.SubscriptionRepository,
	stripeClient stripe.Client,
	producer kafka.Producer,
	billingMetrics metrics.BillingMetrics,
	log *logger.Logger,
) WebhookService {
	return &webhookService{
		repo:         repo,
		stripeClient: stripeClient,
		producer:     producer,
		metrics:      billingMetrics,
		log:          log,
	}
}

// ProcessEvent диспетчеризует событие по варианту
func (s *webhookService) ProcessEvent(ctx context.Context, event domain.BillingEvent) error {
	eventType := eventTypeName(event)
	start := time.Now()
	defer func() {
		s.metrics.ObserveWebhookDuration(eventType, time.Since(start))
	}()

	var err error
	switch e := event.(type) {
	case domain.CheckoutCompleted:
		err = s.applyCheckoutCompleted(ctx, e)
	case domain.SubscriptionUpdated:
		err = s.applySubscriptionUpdated(ctx, e)
	case domain.SubscriptionDeleted:
		err = s.applySubscriptionDeleted(ctx, e)
	case domain.InvoicePaymentFailed:
		err = s.applyInvoicePaymentFailed(ctx, e)
	case domain.UnknownEvent:
		s.log.Debugw("Ignoring unrecognized webhook event", "eventId", e.EventID, "type", e.Type)
		s.metrics.IncWebhookEvent(eventType, metrics.WebhookOutcomeIgnored)
		return nil
	default:
		s.log.Warnw("Webhook event variant without handler", "type", fmt.Sprintf("%T", event))
		s.metrics.IncWebhookEvent(eventType, metrics.WebhookOutcomeIgnored)
		return nil
	}

	switch {
	case err == nil:
		s.metrics.IncWebhookEvent(eventType, metrics.WebhookOutcomeApplied)
	case errors.Is(err, domain.ErrUnresolvedCorrelation):
		s.metrics.IncWebhookEvent(eventType, metrics.WebhookOutcomeUnresolved)
	default:
		s.metrics.IncWebhookEvent(eventType, metrics.WebhookOutcomeFailed)
	}
	return err
}

// applyCheckoutCompleted активирует платную подписку после завершения checkout.
// Актуальные статус и конец периода берутся из провайдера, а не из события:
// к моменту обработки состояние могло уйти вперед.
func (s *webhookService) applyCheckoutCompleted(ctx context.Context, e domain.CheckoutCompleted) error {
	if e.SubscriptionID == "" {
		// Сессия без подписки (разовый платеж) - не наш сценарий
		s.log.Warnw("Checkout session completed without subscription, ignoring", "eventId", e.EventID)
		return nil
	}

	if e.UserID == "" {
		s.log.Errorw("Checkout session metadata has no user id", "eventId", e.EventID)
		return fmt.Errorf("%w: checkout session %s has no user metadata", domain.ErrUnresolvedCorrelation, e.EventID)
	}
	if _, ok := domain.PaidPlan(e.Plan); !ok {
		s.log.Errorw("Checkout session metadata has unknown plan", "eventId", e.EventID, "plan", e.Plan)
		return fmt.Errorf("%w: checkout session %s has unknown plan %q", domain.ErrUnresolvedCorrelation, e.EventID, e.Plan)
	}

	details, err := s.stripeClient.GetSubscription(ctx, e.SubscriptionID)
	if err != nil {
		return domain.NewTransitionError(e.EventID, eventTypeName(e), fmt.Errorf("fetch subscription: %w", err))
	}

	periodEnd := details.CurrentPeriodEnd
	upd := domain.SubscriptionUpdate{
		Tier:                 e.Plan,
		Status:               domain.SubscriptionStatusActive,
		StripeSubscriptionID: &e.SubscriptionID,
		CurrentPeriodEnd:     &periodEnd,
	}
	if err := s.repo.UpsertTierAndStatus(ctx, e.UserID, upd); err != nil {
		return domain.NewTransitionError(e.EventID, eventTypeName(e), fmt.Errorf("persist activation: %w", err))
	}

	s.log.Infow("Subscription activated",
		"eventId", e.EventID,
		"userId", e.UserID,
		"plan", e.Plan,
		"subscriptionId", e.SubscriptionID)

	s.publish(ctx, kafka.TopicSubscriptionActivated, kafka.SubscriptionEvent{
		UserID:         e.UserID,
		Tier:           string(upd.Tier),
		Status:         string(upd.Status),
		SubscriptionID: e.SubscriptionID,
		PeriodEnd:      upd.CurrentPeriodEnd,
	})
	return nil
}

// applySubscriptionUpdated синхронизирует статус и конец периода с провайдером.
// События для подписки, не совпадающей с сохраненной, игнорируются: после
// отмены по записи пользователя могут доезжать запоздавшие updated-события
// старой подписки, и они не должны воскрешать отмененное состояние.
func (s *webhookService) applySubscriptionUpdated(ctx context.Context, e domain.SubscriptionUpdated) error {
	sub, err := s.lookupByCustomer(ctx, e.EventID, e.CustomerID)
	if err != nil {
		return err
	}

	if sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID != e.SubscriptionID {
		s.log.Infow("Ignoring update for untracked subscription",
			"eventId", e.EventID,
			"userId", sub.UserID,
			"subscriptionId", e.SubscriptionID)
		return nil
	}

	upd := domain.SubscriptionUpdate{
		Tier:                 sub.Tier,
		Status:               statusFromUpstream(e.UpstreamStatus),
		StripeSubscriptionID: &e.SubscriptionID,
		CurrentPeriodEnd:     e.CurrentPeriodEnd,
	}
	if err := s.repo.UpsertTierAndStatus(ctx, sub.UserID, upd); err != nil {
		return domain.NewTransitionError(e.EventID, eventTypeName(e), fmt.Errorf("persist update: %w", err))
	}

	s.log.Infow("Subscription state synchronized",
		"eventId", e.EventID,
		"userId", sub.UserID,
		"status", upd.Status,
		"upstreamStatus", e.UpstreamStatus)

	s.publish(ctx, kafka.TopicSubscriptionUpdated, kafka.SubscriptionEvent{
		UserID:         sub.UserID,
		Tier:           string(upd.Tier),
		Status:         string(upd.Status),
		SubscriptionID: e.SubscriptionID,
		PeriodEnd:      e.CurrentPeriodEnd,
	})
	return nil
}

// applySubscriptionDeleted возвращает пользователя на бесплатный тариф.
// Гарантия сходимости: после этого перехода запоздавшие события старой
// подписки отфильтруются проверкой subscription ID.
func (s *webhookService) applySubscriptionDeleted(ctx context.Context, e domain.SubscriptionDeleted) error {
	sub, err := s.lookupByCustomer(ctx, e.EventID, e.CustomerID)
	if err != nil {
		return err
	}

	if sub.StripeSubscriptionID == nil || *sub.StripeSubscriptionID != e.SubscriptionID {
		s.log.Infow("Ignoring deletion for untracked subscription",
			"eventId", e.EventID,
			"userId", sub.UserID,
			"subscriptionId", e.SubscriptionID)
		return nil
	}

	if err := s.repo.ClearSubscription(ctx, sub.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Запись уже сброшена параллельной доставкой
			return nil
		}
		return domain.NewTransitionError(e.EventID, eventTypeName(e), fmt.Errorf("clear subscription: %w", err))
	}

	s.log.Infow("Subscription canceled, user downgraded to free",
		"eventId", e.EventID,
		"userId", sub.UserID,
		"subscriptionId", e.SubscriptionID)

	s.publish(ctx, kafka.TopicSubscriptionCanceled, kafka.SubscriptionEvent{
		UserID:         sub.UserID,
		Tier:           string(domain.PlanFree),
		Status:         string(domain.SubscriptionStatusInactive),
		SubscriptionID: e.SubscriptionID,
	})
	return nil
}

// applyInvoicePaymentFailed помечает подписку как past_due, сохраняя tier
// и внешние ссылки: доступ решается выше по статусу, а подписка еще может
// восстановиться после успешного ретрая списания на стороне провайдера.
func (s *webhookService) applyInvoicePaymentFailed(ctx context.Context, e domain.InvoicePaymentFailed) error {
	sub, err := s.repo.GetByExternalCustomerID(ctx, e.CustomerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Неизвестный customer: списание не по нашей подписке
			s.log.Warnw("Payment failure for unknown customer, ignoring", "eventId", e.EventID, "customerId", e.CustomerID)
			return nil
		}
		return domain.NewTransitionError(e.EventID, eventTypeName(e), fmt.Errorf("load subscription: %w", err))
	}

	if sub.StripeSubscriptionID == nil {
		// Нет отслеживаемой подписки - понижать нечего
		s.log.Warnw("Payment failure without tracked subscription, ignoring", "eventId", e.EventID, "userId", sub.UserID)
		return nil
	}
	if e.SubscriptionID != "" && *sub.StripeSubscriptionID != e.SubscriptionID {
		s.log.Infow("Ignoring payment failure for untracked subscription",
			"eventId", e.EventID,
			"userId", sub.UserID,
			"subscriptionId", e.SubscriptionID)
		return nil
	}

	upd := domain.SubscriptionUpdate{
		Tier:                 sub.Tier,
		Status:               domain.SubscriptionStatusPastDue,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
	}
	if err := s.repo.UpsertTierAndStatus(ctx, sub.UserID, upd); err != nil {
		return domain.NewTransitionError(e.EventID, eventTypeName(e), fmt.Errorf("persist past_due: %w", err))
	}

	s.log.Warnw("Subscription marked past due",
		"eventId", e.EventID,
		"userId", sub.UserID,
		"subscriptionId", *sub.StripeSubscriptionID)

	s.publish(ctx, kafka.TopicSubscriptionPastDue, kafka.SubscriptionEvent{
		UserID:         sub.UserID,
		Tier:           string(sub.Tier),
		Status:         string(domain.SubscriptionStatusPastDue),
		SubscriptionID: *sub.StripeSubscriptionID,
		PeriodEnd:      sub.CurrentPeriodEnd,
	})
	return nil
}

// lookupByCustomer находит запись пользователя по внешнему customer ID.
// Неизвестный customer - ошибка корреляции: повтор доставки не поможет.
func (s *webhookService) lookupByCustomer(ctx context.Context, eventID, customerID string) (*domain.Subscription, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: event %s has no customer id", domain.ErrUnresolvedCorrelation, eventID)
	}

	sub, err := s.repo.GetByExternalCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Errorw("Webhook event references unknown customer", "eventId", eventID, "customerId", customerID)
			return nil, fmt.Errorf("%w: unknown customer %s", domain.ErrUnresolvedCorrelation, customerID)
		}
		return nil, domain.NewTransitionError(eventID, "", fmt.Errorf("load subscription by customer: %w", err))
	}
	return sub, nil
}

// publish асинхронно отправляет событие жизненного цикла в Kafka.
// Ошибка публикации логируется и не влияет на ответ вебхуку: Kafka здесь
// нотификация для соседних сервисов, а не источник истины.
func (s *webhookService) publish(ctx context.Context, topic string, event kafka.SubscriptionEvent) {
	if s.producer == nil {
		return
	}

	go func(ctx context.Context) {
		publishCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		if err := s.producer.PublishSubscriptionEvent(publishCtx, topic, event); err != nil {
			s.log.Errorw("Failed to publish subscription lifecycle event", "topic", topic, "userId", event.UserID, "error", err)
		}
	}(context.WithoutCancel(ctx))
}

// statusFromUpstream переводит статус провайдера в локальный.
// Активен только upstream "active"; любой другой статус закрывает доступ.
// Просрочка платежа отслеживается отдельным событием invoice.payment_failed.
func statusFromUpstream(upstream string) domain.SubscriptionStatus {
	if upstream == "active" {
		return domain.SubscriptionStatusActive
	}
	return domain.SubscriptionStatusInactive
}

func eventTypeName(event domain.BillingEvent) string {
	switch e := event.(type) {
	case domain.CheckoutCompleted:
		return "checkout_completed"
	case domain.SubscriptionUpdated:
		return "subscription_updated"
	case domain.SubscriptionDeleted:
		return "subscription_deleted"
	case domain.InvoicePaymentFailed:
		return "invoice_payment_failed"
	case domain.UnknownEvent:
		if e.Type != "" {
			return e.Type
		}
		return "unknown"
	default:
		return "unknown"
	}
}
