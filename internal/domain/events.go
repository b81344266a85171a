package domain

import "time"

// BillingEvent закрытое множество распознаваемых вебхук-событий.
// Полезная нагрузка внешнего провайдера сужается до этих вариантов на границе
// (internal/stripe), до диспетчеризации; сервисный слой работает только с ними.
type BillingEvent interface {
	billingEvent()
}

// CheckoutCompleted завершение hosted checkout с привязанной подпиской.
// UserID и Plan берутся из метаданных сессии - это единственный канал
// корреляции с локальным пользователем до создания customer link.
type CheckoutCompleted struct {
	EventID        string
	UserID         string
	Plan           PlanID
	SubscriptionID string
}

// SubscriptionUpdated изменение состояния подписки на стороне провайдера
type SubscriptionUpdated struct {
	EventID          string
	CustomerID       string
	SubscriptionID   string
	UpstreamStatus   string
	CurrentPeriodEnd *time.Time
}

// SubscriptionDeleted отмена (удаление) подписки на стороне провайдера
type SubscriptionDeleted struct {
	EventID        string
	CustomerID     string
	SubscriptionID string
}

// InvoicePaymentFailed неудачное списание по подписке
type InvoicePaymentFailed struct {
	EventID        string
	CustomerID     string
	SubscriptionID string
}

// UnknownEvent нераспознанный тип события; подтверждается как no-op
type UnknownEvent struct {
	EventID string
	Type    string
}

func (CheckoutCompleted) billingEvent()    {}
func (SubscriptionUpdated) billingEvent()  {}
func (SubscriptionDeleted) billingEvent()  {}
func (InvoicePaymentFailed) billingEvent() {}
func (UnknownEvent) billingEvent()         {}
