// ==============================================================================
// PAYMENT GATEWAY CLIENT - internal/gateway/stripe.go
// ==============================================================================
package gateway

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"coursemart/internal/domain"
	"coursemart/pkg/config"
	"coursemart/pkg/errors"
	"coursemart/pkg/logger"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// CheckoutRequest describes one hosted checkout for a pending purchase.
type CheckoutRequest struct {
	PurchaseID  uuid.UUID
	UserID      string
	CourseID    string
	Title       string
	Description string
	Amount      decimal.Decimal
	Currency    string
	SuccessURL  string
	CancelURL   string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// StripeClient is constructed once and injected; it never touches stripe.Key.
type StripeClient struct {
	api           *client.API
	webhookSecret string
	attempts      uint
	retryDelay    time.Duration
	retryMaxDelay time.Duration
	log           logger.Logger
}

func NewStripeClient(cfg config.StripeConfig, log logger.Logger) *StripeClient {
	return newStripeClient(cfg, "", log)
}

// newStripeClient points the API backend at baseURL when set.
func newStripeClient(cfg config.StripeConfig, baseURL string, log logger.Logger) *StripeClient {
	backendCfg := &stripe.BackendConfig{
		// retries are owned by retry-go below
		MaxNetworkRetries: stripe.Int64(0),
	}
	if baseURL != "" {
		backendCfg.URL = stripe.String(baseURL)
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	}

	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}

	return &StripeClient{
		api:           client.New(cfg.SecretKey, backends),
		webhookSecret: cfg.WebhookSecret,
		attempts:      attempts,
		retryDelay:    cfg.RetryDelay,
		retryMaxDelay: cfg.RetryMaxDelay,
		log:           log,
	}
}

// CreateCheckoutSession opens a payment-mode session carrying the purchase
// metadata on both the session and its payment intent.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	meta := domain.Metadata{
		PurchaseID: req.PurchaseID.String(),
		UserID:     req.UserID,
		CourseID:   req.CourseID,
	}

	product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(req.Title),
	}
	if req.Description != "" {
		product.Description = stripe.String(req.Description)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.PurchaseID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String(req.Currency),
					ProductData: product,
					UnitAmount:  stripe.Int64(MinorUnits(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: meta.Map(),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: meta.Map(),
		},
	}
	params.Context = ctx
	// one key per call so retries below cannot open two sessions
	params.SetIdempotencyKey("checkout-" + req.PurchaseID.String() + "-" + uuid.NewString())

	var sess *stripe.CheckoutSession
	err := c.withRetry(ctx, "create_checkout_session", func() error {
		var err error
		sess, err = c.api.CheckoutSessions.New(params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create checkout session: %v", errors.ErrGatewayUnavailable, err)
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// ResolvePaymentReference finds the checkout session that produced a payment
// intent and returns the metadata recorded on it.
func (c *StripeClient) ResolvePaymentReference(ctx context.Context, paymentIntentID string) (domain.Metadata, error) {
	if paymentIntentID == "" {
		return domain.Metadata{}, errors.ErrPurchaseNotFound
	}

	params := &stripe.CheckoutSessionListParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	var found *stripe.CheckoutSession
	err := c.withRetry(ctx, "list_checkout_sessions", func() error {
		found = nil
		iter := c.api.CheckoutSessions.List(params)
		if iter.Next() {
			found = iter.CheckoutSession()
		}
		return iter.Err()
	})
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("%w: resolve payment reference: %v", errors.ErrGatewayUnavailable, err)
	}
	if found == nil {
		return domain.Metadata{}, errors.ErrPurchaseNotFound
	}

	return domain.MetadataFromMap(found.Metadata), nil
}

func (c *StripeClient) withRetry(ctx context.Context, op string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(c.retryMaxDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("Stripe call failed, retrying", map[string]interface{}{
				"operation": op,
				"attempt":   n + 1,
				"error":     err.Error(),
			})
		}),
	)
}

// isTransient: network failures, rate limiting and provider 5xx.
func isTransient(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var stripeErr *stripe.Error
	if stderrors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusTooManyRequests ||
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return true
}

var hundred = decimal.NewFromInt(100)

// MinorUnits converts a 2 dp amount to the gateway's integer minor units.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
