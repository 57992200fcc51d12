// ==============================================================================
// SETTLEMENT RECONCILER - internal/settlement/reconciler.go
// ==============================================================================
package settlement

import (
	"context"
	stderrors "errors"
	"time"

	"coursemart/internal/domain"
	"coursemart/internal/metrics"
	"coursemart/pkg/errors"
	"coursemart/pkg/logger"

	"github.com/google/uuid"
)

// Outcome is how an authenticated event was resolved. Every outcome is
// acknowledged to the gateway; only returned errors trigger redelivery.
type Outcome string

const (
	OutcomeSettled   Outcome = "settled"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDiscarded Outcome = "discarded"
	OutcomeIgnored   Outcome = "ignored"
)

type Reconciler struct {
	gateway   Gateway
	store     Store
	projector Projector
	receipts  Receipts
	logger    logger.Logger
}

// NewReconciler wires the reconciler. receipts may be nil.
func NewReconciler(gw Gateway, store Store, projector Projector, receipts Receipts, log logger.Logger) *Reconciler {
	return &Reconciler{
		gateway:   gw,
		store:     store,
		projector: projector,
		receipts:  receipts,
		logger:    log,
	}
}

// HandleEvent authenticates payload against signature and applies the event.
// The payload must be the exact bytes received. A returned error is either
// ErrUnauthenticated or a fault the gateway should retry.
func (r *Reconciler) HandleEvent(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.WebhookHandlingTime.Observe(time.Since(start).Seconds())
	}()

	event, err := r.gateway.VerifyEvent(payload, signature)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		r.logger.Warn("Rejected unauthenticated webhook", map[string]interface{}{
			"error": err.Error(),
		})
		if !stderrors.Is(err, errors.ErrUnauthenticated) {
			err = errors.Wrap(errors.ErrUnauthenticated, err.Error())
		}
		return "", err
	}

	kind := string(event.Kind())
	if r.receipts != nil {
		if prior, seen, err := r.receipts.Seen(ctx, event.EventID()); err != nil {
			r.logger.Warn("Event receipt lookup failed", map[string]interface{}{
				"event_id": event.EventID(),
				"error":    err.Error(),
			})
		} else if seen {
			r.logger.Debug("Event already handled", map[string]interface{}{
				"event_id":      event.EventID(),
				"prior_outcome": prior,
			})
			metrics.WebhookEvents.WithLabelValues(kind, string(OutcomeDuplicate)).Inc()
			return OutcomeDuplicate, nil
		}
	}

	outcome, err := r.dispatch(ctx, event)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(kind, "error").Inc()
		r.logger.Error("Webhook handling failed, awaiting redelivery", map[string]interface{}{
			"event_id": event.EventID(),
			"kind":     kind,
			"error":    err.Error(),
		})
		return "", err
	}

	metrics.WebhookEvents.WithLabelValues(kind, string(outcome)).Inc()
	if r.receipts != nil {
		if err := r.receipts.Record(ctx, event.EventID(), string(outcome)); err != nil {
			r.logger.Warn("Failed to record event receipt", map[string]interface{}{
				"event_id": event.EventID(),
				"error":    err.Error(),
			})
		}
	}
	return outcome, nil
}

func (r *Reconciler) dispatch(ctx context.Context, event domain.Event) (Outcome, error) {
	switch e := event.(type) {
	case domain.CheckoutCompleted:
		return r.settle(ctx, e)
	case domain.PaymentFailed:
		return r.fail(ctx, e)
	case domain.Unrecognized:
		r.logger.Info("Unhandled event type", map[string]interface{}{
			"event_id": e.ID,
			"type":     e.Type,
		})
		return OutcomeIgnored, nil
	default:
		r.logger.Warn("Unknown event variant", map[string]interface{}{
			"event_id": event.EventID(),
		})
		return OutcomeIgnored, nil
	}
}

// settle grants enrollment and then moves the purchase to completed. The
// status flip comes last so a crash in between leaves the purchase pending
// and the redelivery finishes the job.
func (r *Reconciler) settle(ctx context.Context, e domain.CheckoutCompleted) (Outcome, error) {
	fields := map[string]interface{}{
		"event_id":    e.ID,
		"session_id":  e.SessionID,
		"purchase_id": e.Metadata.PurchaseID,
		"user_id":     e.Metadata.UserID,
		"course_id":   e.Metadata.CourseID,
	}

	if !e.Metadata.Complete() {
		r.logger.Warn("Discarding checkout event with incomplete metadata", fields)
		return OutcomeDiscarded, nil
	}

	p, outcome, err := r.loadPurchase(ctx, e.Metadata, fields)
	if p == nil {
		return outcome, err
	}

	switch p.Status {
	case domain.PurchaseStatusCompleted:
		r.logger.Debug("Purchase already completed", fields)
		return OutcomeDuplicate, nil
	case domain.PurchaseStatusFailed:
		fields["error"] = errors.ErrInvalidTransition.Error()
		r.logger.Warn("Ignoring checkout completion for failed purchase", fields)
		return OutcomeIgnored, nil
	}

	if _, err := r.store.FindCourseByID(ctx, p.CourseID); err != nil {
		return r.discardIfMissing(err, "Course vanished before settlement", fields)
	}
	if _, err := r.store.FindUserByID(ctx, p.UserID); err != nil {
		return r.discardIfMissing(err, "User vanished before settlement", fields)
	}

	if err := r.projector.Grant(ctx, p.UserID, p.CourseID); err != nil {
		return "", err
	}

	swapped, err := r.store.TransitionPurchase(ctx, p.ID, domain.PurchaseStatusPending, domain.PurchaseStatusCompleted)
	if err != nil {
		return "", errors.Wrap(err, "failed to complete purchase")
	}
	if !swapped {
		return r.lostCompletion(ctx, p.ID, fields)
	}

	fields["amount"] = p.Amount.StringFixed(2)
	fields["currency"] = p.Currency
	r.logger.Info("Purchase settled", fields)
	return OutcomeSettled, nil
}

// lostCompletion rereads a purchase whose pending->completed write matched
// nothing. A concurrent failure leaves the grant in place with a failed
// purchase; that pair is surfaced by the reconcile report.
func (r *Reconciler) lostCompletion(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (Outcome, error) {
	current, err := r.store.FindPurchaseByID(ctx, id)
	if err != nil {
		return "", errors.Wrap(err, "failed to reread purchase")
	}

	if current.Status == domain.PurchaseStatusFailed {
		fields["error"] = errors.ErrInvalidTransition.Error()
		r.logger.Warn("Purchase failed while enrollment was granted", fields)
		return OutcomeIgnored, nil
	}

	r.logger.Debug("Lost completion race", fields)
	return OutcomeDuplicate, nil
}

// fail moves a pending purchase to failed. Terminal purchases are left alone.
func (r *Reconciler) fail(ctx context.Context, e domain.PaymentFailed) (Outcome, error) {
	fields := map[string]interface{}{
		"event_id":          e.ID,
		"payment_reference": e.PaymentReference,
	}

	meta := e.Metadata
	if meta.PurchaseID == "" {
		resolved, err := r.gateway.ResolvePaymentReference(ctx, e.PaymentReference)
		if errors.IsNotFound(err) {
			r.logger.Warn("Discarding payment failure with no owning session", fields)
			return OutcomeDiscarded, nil
		}
		if err != nil {
			return "", err
		}
		meta = resolved
	}
	fields["purchase_id"] = meta.PurchaseID

	p, outcome, err := r.loadPurchase(ctx, meta, fields)
	if p == nil {
		return outcome, err
	}

	switch p.Status {
	case domain.PurchaseStatusFailed:
		return OutcomeDuplicate, nil
	case domain.PurchaseStatusCompleted:
		fields["error"] = errors.ErrInvalidTransition.Error()
		r.logger.Info("Ignoring payment failure for completed purchase", fields)
		return OutcomeIgnored, nil
	}

	swapped, err := r.store.TransitionPurchase(ctx, p.ID, domain.PurchaseStatusPending, domain.PurchaseStatusFailed)
	if err != nil {
		return "", errors.Wrap(err, "failed to mark purchase failed")
	}
	if !swapped {
		return OutcomeDuplicate, nil
	}

	r.logger.Info("Purchase failed", fields)
	return OutcomeFailed, nil
}

// loadPurchase resolves the purchase named by meta and checks that any user
// and course in meta agree with it. A nil purchase means the returned outcome
// and error are final.
func (r *Reconciler) loadPurchase(ctx context.Context, meta domain.Metadata, fields map[string]interface{}) (*domain.Purchase, Outcome, error) {
	id, err := meta.ParsePurchaseID()
	if err != nil {
		fields["error"] = err.Error()
		r.logger.Warn("Discarding event with invalid purchase reference", fields)
		return nil, OutcomeDiscarded, nil
	}

	p, err := r.store.FindPurchaseByID(ctx, id)
	if err != nil {
		outcome, err := r.discardIfMissing(err, "Discarding event for unknown purchase", fields)
		return nil, outcome, err
	}

	if (meta.UserID != "" && meta.UserID != p.UserID) || (meta.CourseID != "" && meta.CourseID != p.CourseID) {
		fields["purchase_user_id"] = p.UserID
		fields["purchase_course_id"] = p.CourseID
		r.logger.Error("Discarding event whose metadata disagrees with purchase", fields)
		return nil, OutcomeDiscarded, nil
	}
	return p, "", nil
}

func (r *Reconciler) discardIfMissing(err error, msg string, fields map[string]interface{}) (Outcome, error) {
	if errors.IsNotFound(err) {
		fields["error"] = err.Error()
		r.logger.Warn(msg, fields)
		return OutcomeDiscarded, nil
	}
	return "", err
}

type Gateway interface {
	VerifyEvent(payload []byte, signature string) (domain.Event, error)
	ResolvePaymentReference(ctx context.Context, paymentIntentID string) (domain.Metadata, error)
}

type Store interface {
	FindPurchaseByID(ctx context.Context, id uuid.UUID) (*domain.Purchase, error)
	TransitionPurchase(ctx context.Context, id uuid.UUID, from, to domain.PurchaseStatus) (bool, error)
	FindCourseByID(ctx context.Context, id string) (*domain.Course, error)
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
}

type Projector interface {
	Grant(ctx context.Context, userID, courseID string) error
}

// Receipts short-circuits redeliveries of events that already reached an
// outcome. It is advisory; the conditional status write is authoritative.
type Receipts interface {
	Seen(ctx context.Context, eventID string) (string, bool, error)
	Record(ctx context.Context, eventID, outcome string) error
}
