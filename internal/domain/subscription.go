package domain

import (
	"time"
)

// PlanID идентификатор тарифного плана
type PlanID string

const (
	PlanFree    PlanID = "free"
	PlanMonthly PlanID = "monthly"
	PlanAnnual  PlanID = "annual"
)

// SubscriptionStatus статус подписки пользователя
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
)

// BillingInterval период списания
type BillingInterval string

const (
	BillingIntervalMonth BillingInterval = "month"
	BillingIntervalYear  BillingInterval = "year"
)

// Plan представляет тарифный план продукта
type Plan struct {
	ID       PlanID          `json:"id"`
	Name     string          `json:"name"`
	Amount   int64           `json:"amount"` // В минорных единицах валюты (центы)
	Currency string          `json:"currency"`
	Interval BillingInterval `json:"interval"`
}

// Платные планы продукта. Free не покупается, поэтому его здесь нет.
var paidPlans = map[PlanID]Plan{
	PlanMonthly: {
		ID:       PlanMonthly,
		Name:     "PrepForge Monthly",
		Amount:   1499,
		Currency: "usd",
		Interval: BillingIntervalMonth,
	},
	PlanAnnual: {
		ID:       PlanAnnual,
		Name:     "PrepForge Annual",
		Amount:   9999,
		Currency: "usd",
		Interval: BillingIntervalYear,
	},
}

// PaidPlan возвращает платный план по идентификатору.
func PaidPlan(id PlanID) (Plan, bool) {
	plan, ok := paidPlans[id]
	return plan, ok
}

// PaidPlans возвращает список платных планов (monthly, annual).
func PaidPlans() []Plan {
	return []Plan{paidPlans[PlanMonthly], paidPlans[PlanAnnual]}
}

// Subscription представляет запись о подписке пользователя.
// Запись мутируется только обработчиком вебхуков и завершением checkout.
type Subscription struct {
	UserID               string             `db:"user_id" json:"user_id"`
	Tier                 PlanID             `db:"tier" json:"tier"`
	Status               SubscriptionStatus `db:"status" json:"status"`
	StripeCustomerID     *string            `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string            `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	CurrentPeriodEnd     *time.Time         `db:"current_period_end" json:"current_period_end,omitempty"`
	CreatedAt            time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updated_at"`
}

// FreeSubscription возвращает дефолтную запись для пользователя без подписки.
func FreeSubscription(userID string) *Subscription {
	return &Subscription{
		UserID: userID,
		Tier:   PlanFree,
		Status: SubscriptionStatusInactive,
	}
}

// SubscriptionUpdate описывает абсолютную перезапись полей подписки.
// Все поля применяются как есть, без относительных корректировок: повторная
// доставка того же события приводит к тому же состоянию.
type SubscriptionUpdate struct {
	Tier                 PlanID
	Status               SubscriptionStatus
	StripeSubscriptionID *string
	CurrentPeriodEnd     *time.Time
}

// Validate проверяет инвариант записи: платный tier требует внешнего ID подписки.
func (u SubscriptionUpdate) Validate() error {
	if u.Tier != PlanFree && u.StripeSubscriptionID == nil {
		return ErrMissingSubscriptionRef
	}
	return nil
}

// Catalog содержит внешние идентификаторы биллингового каталога,
// полученные при provisioning и закешированные на время жизни процесса.
type Catalog struct {
	ProductID      string
	MonthlyPriceID string
	AnnualPriceID  string
}

// PriceFor возвращает внешний price ID для платного плана.
func (c Catalog) PriceFor(plan PlanID) (string, bool) {
	switch plan {
	case PlanMonthly:
		return c.MonthlyPriceID, c.MonthlyPriceID != ""
	case PlanAnnual:
		return c.AnnualPriceID, c.AnnualPriceID != ""
	default:
		return "", false
	}
}
