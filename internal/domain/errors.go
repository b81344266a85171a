package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrInvalidPlan неизвестный или непокупаемый тарифный план
	ErrInvalidPlan = errors.New("invalid plan id")

	// ErrNotConfigured биллинг отключен (не задан API ключ провайдера)
	ErrNotConfigured = errors.New("billing is not configured")

	// ErrInvalidSignature не удалось проверить подпись вебхука.
	// Отличается от ошибки обработки: состояние не менялось, redelivery не нужен.
	ErrInvalidSignature = errors.New("webhook signature verification failed")

	// ErrUnresolvedCorrelation событие не удалось сопоставить с локальным
	// пользователем; подтверждается (200), т.к. повтор доставки это не исправит.
	ErrUnresolvedCorrelation = errors.New("webhook event correlation unresolved")

	// ErrMissingSubscriptionRef нарушение инварианта: платный tier без внешнего ID подписки
	ErrMissingSubscriptionRef = errors.New("paid tier requires external subscription id")
)

// ProvisioningError представляет ошибку создания биллингового каталога.
// Checkout обязан прерваться: без price ID сессию открывать нельзя.
type ProvisioningError struct {
	Op          string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("catalog provisioning failed [%s]: %v", e.Op, e.OriginalErr)
}

// Unwrap возвращает оригинальную ошибку
func (e *ProvisioningError) Unwrap() error {
	return e.OriginalErr
}

// NewProvisioningError создает новую ошибку provisioning
func NewProvisioningError(op string, err error) *ProvisioningError {
	return &ProvisioningError{Op: op, OriginalErr: err}
}

// CheckoutError представляет ошибку создания checkout-сессии
type CheckoutError struct {
	UserID      string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout failed (user_id: %s): %v", e.UserID, e.OriginalErr)
}

// Unwrap возвращает оригинальную ошибку
func (e *CheckoutError) Unwrap() error {
	return e.OriginalErr
}

// NewCheckoutError создает новую ошибку checkout
func NewCheckoutError(userID string, err error) *CheckoutError {
	return &CheckoutError{UserID: userID, OriginalErr: err}
}

// TransitionError представляет ошибку применения перехода состояния после
// успешной проверки подписи. Единственный класс ошибок, который должен
// приводить к повторной доставке события внешней системой (ответ 5xx).
type TransitionError struct {
	EventID     string
	EventType   string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition failed [%s, event_id: %s]: %v", e.EventType, e.EventID, e.OriginalErr)
}

// Unwrap возвращает оригинальную ошибку
func (e *TransitionError) Unwrap() error {
	return e.OriginalErr
}

// NewTransitionError создает новую ошибку перехода
func NewTransitionError(eventID, eventType string, err error) *TransitionError {
	return &TransitionError{EventID: eventID, EventType: eventType, OriginalErr: err}
}
