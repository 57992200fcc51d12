package gateway

import (
	"encoding/json"

	"coursemart/internal/domain"
	"coursemart/pkg/errors"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// VerifyEvent authenticates the raw request body against the signing secret
// and maps it to a domain event. Any verification failure is
// ErrUnauthenticated; nothing in the payload is trusted before that.
func (c *StripeClient) VerifyEvent(payload []byte, signature string) (domain.Event, error) {
	if signature == "" {
		return nil, errors.Wrap(errors.ErrUnauthenticated, "missing signature header")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnauthenticated, err.Error())
	}

	return c.toDomainEvent(event), nil
}

// toDomainEvent never fails: an authentic event whose object cannot be decoded
// keeps empty metadata and is discarded downstream.
func (c *StripeClient) toDomainEvent(event stripe.Event) domain.Event {
	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		out := domain.CheckoutCompleted{ID: event.ID}
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			c.log.Warn("Undecodable checkout session in event", map[string]interface{}{
				"event_id": event.ID,
				"error":    err.Error(),
			})
			return out
		}
		out.SessionID = sess.ID
		out.Metadata = domain.MetadataFromMap(sess.Metadata)
		if sess.PaymentIntent != nil {
			out.PaymentReference = sess.PaymentIntent.ID
		}
		return out

	case stripe.EventTypePaymentIntentPaymentFailed:
		out := domain.PaymentFailed{ID: event.ID}
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			c.log.Warn("Undecodable payment intent in event", map[string]interface{}{
				"event_id": event.ID,
				"error":    err.Error(),
			})
			return out
		}
		out.PaymentReference = pi.ID
		out.Metadata = domain.MetadataFromMap(pi.Metadata)
		return out

	default:
		return domain.Unrecognized{ID: event.ID, Type: string(event.Type)}
	}
}
