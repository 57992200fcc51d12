package handler

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"

	"coursemart/internal/settlement"
	"coursemart/pkg/errors"
)

const maxWebhookBody = 1 << 20

// WebhookHandler hands raw gateway deliveries to the reconciler. A non-2xx
// status makes the gateway redeliver, so only retryable faults return 500.
type WebhookHandler struct {
	reconciler Reconciler
	logger     Logger
}

func NewWebhookHandler(reconciler Reconciler, log Logger) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, logger: log}
}

func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		respondError(w, http.StatusBadRequest, "Missing signature header")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Unreadable request body")
		return
	}

	outcome, err := h.reconciler.HandleEvent(r.Context(), payload, signature)
	if err != nil {
		if stderrors.Is(err, errors.ErrUnauthenticated) {
			respondError(w, http.StatusBadRequest, "Webhook signature verification failed")
			return
		}
		h.logger.Error("Webhook processing failed", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Webhook processing failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"received": true,
		"outcome":  outcome,
	})
}

type Reconciler interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) (settlement.Outcome, error)
}
