package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepforge/billing-service/internal/domain"
	"github.com/prepforge/billing-service/pkg/logger"
)

const testWebhookSecret = "whsec_test_secret"

// signPayload собирает заголовок Stripe-Signature по схеме провайдера:
// t=<unix>,v1=<hex hmac-sha256(secret, "<unix>.<payload>")>
func signPayload(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newTestParser() *EventParser {
	return NewEventParser(testWebhookSecret, logger.New(logger.ERROR))
}

func TestParse_RejectsTamperedSignature(t *testing.T) {
	parser := newTestParser()
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)

	header := signPayload(t, payload, "whsec_wrong_secret")
	_, err := parser.Parse(payload, header)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = parser.Parse(payload, "")
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	// Подпись от другого тела
	header = signPayload(t, []byte(`{"id":"evt_other"}`), testWebhookSecret)
	_, err = parser.Parse(payload, header)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestParse_CheckoutCompleted(t *testing.T) {
	parser := newTestParser()
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_1",
				"subscription": "sub_123",
				"metadata": {"user_id": "user-1", "plan_id": "monthly"}
			}
		}
	}`)

	event, err := parser.Parse(payload, signPayload(t, payload, testWebhookSecret))
	require.NoError(t, err)

	completed, ok := event.(domain.CheckoutCompleted)
	require.True(t, ok, "expected CheckoutCompleted, got %T", event)
	assert.Equal(t, "evt_1", completed.EventID)
	assert.Equal(t, "user-1", completed.UserID)
	assert.Equal(t, domain.PlanMonthly, completed.Plan)
	assert.Equal(t, "sub_123", completed.SubscriptionID)
}

func TestParse_CheckoutCompletedWithoutMetadata(t *testing.T) {
	parser := newTestParser()
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_1", "subscription": "sub_123"}}
	}`)

	event, err := parser.Parse(payload, signPayload(t, payload, testWebhookSecret))
	require.NoError(t, err)

	completed, ok := event.(domain.CheckoutCompleted)
	require.True(t, ok)
	assert.Empty(t, completed.UserID)
}

func TestParse_SubscriptionUpdated(t *testing.T) {
	parser := newTestParser()
	periodEnd := time.Date(2026, 9, 28, 12, 0, 0, 0, time.UTC)
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_2",
		"type": "customer.subscription.updated",
		"data": {
			"object": {
				"id": "sub_123",
				"customer": "cus_1",
				"status": "past_due",
				"current_period_end": %d
			}
		}
	}`, periodEnd.Unix()))

	event, err := parser.Parse(payload, signPayload(t, payload, testWebhookSecret))
	require.NoError(t, err)

	updated, ok := event.(domain.SubscriptionUpdated)
	require.True(t, ok, "expected SubscriptionUpdated, got %T", event)
	assert.Equal(t, "cus_1", updated.CustomerID)
	assert.Equal(t, "sub_123", updated.SubscriptionID)
	assert.Equal(t, "past_due", updated.UpstreamStatus)
	require.NotNil(t, updated.CurrentPeriodEnd)
	assert.Equal(t, periodEnd, *updated.CurrentPeriodEnd)
}

func TestParse_SubscriptionDeleted(t *testing.T) {
	parser := newTestParser()
	payload := []byte(`{
		"id": "evt_3",
		"type": "customer.subscription.deleted",
		"data": {"object": {"id": "sub_123", "customer": "cus_1", "status": "canceled"}}
	}`)

	event, err := parser.Parse(payload, signPayload(t, payload, testWebhookSecret))
	require.NoError(t, err)

	deleted, ok := event.(domain.SubscriptionDeleted)
	require.True(t, ok, "expected SubscriptionDeleted, got %T", event)
	assert.Equal(t, "cus_1", deleted.CustomerID)
	assert.Equal(t, "sub_123", deleted.SubscriptionID)
}

func TestParse_InvoicePaymentFailed(t *testing.T) {
	parser := newTestParser()
	payload := []byte(`{
		"id": "evt_4",
		"type": "invoice.payment_failed",
		"data": {"object": {"id": "in_1", "customer": "cus_1", "subscription": "sub_123"}}
	}`)

	event, err := parser.Parse(payload, signPayload(t, payload, testWebhookSecret))
	require.NoError(t, err)

	failed, ok := event.(domain.InvoicePaymentFailed)
	require.True(t, ok, "expected InvoicePaymentFailed, got %T", event)
	assert.Equal(t, "cus_1", failed.CustomerID)
	assert.Equal(t, "sub_123", failed.SubscriptionID)
}

func TestParse_UnrecognizedTypePassesThrough(t *testing.T) {
	parser := newTestParser()
	payload := []byte(`{
		"id": "evt_5",
		"type": "customer.created",
		"data": {"object": {"id": "cus_1"}}
	}`)

	event, err := parser.Parse(payload, signPayload(t, payload, testWebhookSecret))
	require.NoError(t, err)

	unknown, ok := event.(domain.UnknownEvent)
	require.True(t, ok, "expected UnknownEvent, got %T", event)
	assert.Equal(t, "customer.created", unknown.Type)
}
