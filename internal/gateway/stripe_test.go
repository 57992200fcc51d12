package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"coursemart/internal/domain"
	"coursemart/pkg/config"
	"coursemart/pkg/errors"
	"coursemart/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func testConfig() config.StripeConfig {
	return config.StripeConfig{
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		Currency:      "inr",
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
	}
}

// fakeStripe records form posts to /v1/checkout/sessions and fails the first
// failFirst requests with a 503.
type fakeStripe struct {
	mu        sync.Mutex
	calls     int
	failFirst int
	forms     []url.Values
	listQuery url.Values
	listBody  string
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	w.Header().Set("Content-Type", "application/json")

	if f.calls <= f.failFirst {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"type":"api_error","message":"temporarily unavailable"}}`)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
		_ = r.ParseForm()
		f.forms = append(f.forms, r.PostForm)
		fmt.Fprint(w, `{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/checkout/sessions":
		f.listQuery = r.URL.Query()
		fmt.Fprint(w, f.listBody)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"unknown path"}}`)
	}
}

func newTestClient(t *testing.T, fake *fakeStripe) *StripeClient {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return newStripeClient(testConfig(), srv.URL, logger.NewNop())
}

func checkoutRequest() CheckoutRequest {
	return CheckoutRequest{
		PurchaseID: uuid.New(),
		UserID:     "user_1",
		CourseID:   "course_1",
		Title:      "Go in Production",
		Amount:     decimal.RequireFromString("80.00"),
		Currency:   "inr",
		SuccessURL: "https://shop.example.com/loading/my-enrollments",
		CancelURL:  "https://shop.example.com/",
	}
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(8000), MinorUnits(decimal.RequireFromString("80.00")))
	assert.Equal(t, int64(1699), MinorUnits(decimal.RequireFromString("16.99")))
	assert.Equal(t, int64(0), MinorUnits(decimal.Zero))
}

func TestCreateCheckoutSession_SendsMetadataAndAmount(t *testing.T) {
	fake := &fakeStripe{}
	c := newTestClient(t, fake)
	req := checkoutRequest()

	sess, err := c.CreateCheckoutSession(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", sess.URL)

	require.Len(t, fake.forms, 1)
	form := fake.forms[0]
	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "8000", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "inr", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "1", form.Get("line_items[0][quantity]"))
	assert.Equal(t, req.SuccessURL, form.Get("success_url"))
	assert.Equal(t, req.CancelURL, form.Get("cancel_url"))
	assert.Equal(t, req.PurchaseID.String(), form.Get("metadata[purchaseId]"))
	assert.Equal(t, "user_1", form.Get("metadata[userId]"))
	assert.Equal(t, "course_1", form.Get("metadata[courseId]"))
	assert.Equal(t, req.PurchaseID.String(), form.Get("payment_intent_data[metadata][purchaseId]"))
}

func TestCreateCheckoutSession_RetriesTransientFailures(t *testing.T) {
	fake := &fakeStripe{failFirst: 2}
	c := newTestClient(t, fake)

	sess, err := c.CreateCheckoutSession(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, 3, fake.calls)
}

func TestCreateCheckoutSession_GivesUpAsGatewayUnavailable(t *testing.T) {
	fake := &fakeStripe{failFirst: 10}
	c := newTestClient(t, fake)

	_, err := c.CreateCheckoutSession(context.Background(), checkoutRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrGatewayUnavailable)
	assert.Equal(t, 3, fake.calls)
}

func TestResolvePaymentReference(t *testing.T) {
	purchaseID := uuid.New()
	fake := &fakeStripe{listBody: fmt.Sprintf(`{
		"object": "list",
		"url": "/v1/checkout/sessions",
		"has_more": false,
		"data": [{
			"id": "cs_test_9",
			"object": "checkout.session",
			"metadata": {"purchaseId": %q, "userId": "user_1", "courseId": "course_1"}
		}]
	}`, purchaseID)}
	c := newTestClient(t, fake)

	meta, err := c.ResolvePaymentReference(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.Equal(t, purchaseID.String(), meta.PurchaseID)
	assert.Equal(t, "user_1", meta.UserID)
	assert.Equal(t, "pi_123", fake.listQuery.Get("payment_intent"))
}

func TestResolvePaymentReference_NoSession(t *testing.T) {
	fake := &fakeStripe{listBody: `{"object":"list","url":"/v1/checkout/sessions","has_more":false,"data":[]}`}
	c := newTestClient(t, fake)

	_, err := c.ResolvePaymentReference(context.Background(), "pi_404")
	assert.ErrorIs(t, err, errors.ErrPurchaseNotFound)

	_, err = c.ResolvePaymentReference(context.Background(), "")
	assert.ErrorIs(t, err, errors.ErrPurchaseNotFound)
}

func signed(t *testing.T, secret, payload string) (string, []byte) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return sp.Header, sp.Payload
}

func TestVerifyEvent(t *testing.T) {
	c := newStripeClient(testConfig(), "", logger.NewNop())
	purchaseID := uuid.New()

	t.Run("checkout completed", func(t *testing.T) {
		header, body := signed(t, testWebhookSecret, fmt.Sprintf(`{
			"id": "evt_1", "object": "event", "type": "checkout.session.completed",
			"data": {"object": {
				"id": "cs_1", "object": "checkout.session", "payment_intent": "pi_1",
				"metadata": {"purchaseId": %q, "userId": "user_1", "courseId": "course_1"}
			}}
		}`, purchaseID))

		ev, err := c.VerifyEvent(body, header)
		require.NoError(t, err)

		completed, ok := ev.(domain.CheckoutCompleted)
		require.True(t, ok)
		assert.Equal(t, "evt_1", completed.EventID())
		assert.Equal(t, "cs_1", completed.SessionID)
		assert.Equal(t, "pi_1", completed.PaymentReference)
		assert.Equal(t, purchaseID.String(), completed.Metadata.PurchaseID)
		assert.Equal(t, "course_1", completed.Metadata.CourseID)
	})

	t.Run("payment failed", func(t *testing.T) {
		header, body := signed(t, testWebhookSecret, `{
			"id": "evt_2", "object": "event", "type": "payment_intent.payment_failed",
			"data": {"object": {"id": "pi_2", "object": "payment_intent", "metadata": {}}}
		}`)

		ev, err := c.VerifyEvent(body, header)
		require.NoError(t, err)

		failed, ok := ev.(domain.PaymentFailed)
		require.True(t, ok)
		assert.Equal(t, "pi_2", failed.PaymentReference)
		assert.Empty(t, failed.Metadata.PurchaseID)
	})

	t.Run("unrecognized", func(t *testing.T) {
		header, body := signed(t, testWebhookSecret, `{
			"id": "evt_3", "object": "event", "type": "charge.refunded",
			"data": {"object": {"id": "ch_1", "object": "charge"}}
		}`)

		ev, err := c.VerifyEvent(body, header)
		require.NoError(t, err)
		assert.Equal(t, domain.Unrecognized{ID: "evt_3", Type: "charge.refunded"}, ev)
	})

	t.Run("wrong secret", func(t *testing.T) {
		header, body := signed(t, "whsec_other", `{"id":"evt_4","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)
		_, err := c.VerifyEvent(body, header)
		assert.ErrorIs(t, err, errors.ErrUnauthenticated)
	})

	t.Run("tampered body", func(t *testing.T) {
		header, body := signed(t, testWebhookSecret, `{"id":"evt_5","object":"event","type":"charge.refunded","data":{"object":{}}}`)
		body = append(body, ' ')
		_, err := c.VerifyEvent(body, header)
		assert.ErrorIs(t, err, errors.ErrUnauthenticated)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := c.VerifyEvent([]byte(`{}`), "")
		assert.ErrorIs(t, err, errors.ErrUnauthenticated)
	})
}
