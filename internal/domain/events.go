package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Metadata keys attached to every checkout session and echoed back by the gateway.
const (
	MetadataPurchaseID = "purchaseId"
	MetadataUserID     = "userId"
	MetadataCourseID   = "courseId"
)

// Metadata is the gateway-attested link between a payment and a purchase.
type Metadata struct {
	PurchaseID string
	UserID     string
	CourseID   string
}

func MetadataFromMap(m map[string]string) Metadata {
	return Metadata{
		PurchaseID: strings.TrimSpace(m[MetadataPurchaseID]),
		UserID:     strings.TrimSpace(m[MetadataUserID]),
		CourseID:   strings.TrimSpace(m[MetadataCourseID]),
	}
}

func (m Metadata) Map() map[string]string {
	return map[string]string{
		MetadataPurchaseID: m.PurchaseID,
		MetadataUserID:     m.UserID,
		MetadataCourseID:   m.CourseID,
	}
}

// ParsePurchaseID returns the purchase id carried in the metadata.
func (m Metadata) ParsePurchaseID() (uuid.UUID, error) {
	if m.PurchaseID == "" {
		return uuid.Nil, fmt.Errorf("metadata has no %s", MetadataPurchaseID)
	}
	id, err := uuid.Parse(m.PurchaseID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("metadata %s %q: %w", MetadataPurchaseID, m.PurchaseID, err)
	}
	return id, nil
}

// Complete reports whether all three references are present.
func (m Metadata) Complete() bool {
	return m.PurchaseID != "" && m.UserID != "" && m.CourseID != ""
}

// EventKind names the gateway notifications settlement acts on.
type EventKind string

const (
	EventKindCheckoutCompleted EventKind = "checkout.completed"
	EventKindPaymentFailed     EventKind = "payment.failed"
)

// Event is the closed set of authenticated gateway notifications.
// Implementations: CheckoutCompleted, PaymentFailed, Unrecognized.
type Event interface {
	EventID() string
	Kind() EventKind
	isEvent()
}

// CheckoutCompleted: the customer paid for a checkout session.
type CheckoutCompleted struct {
	ID               string
	SessionID        string
	PaymentReference string
	Metadata         Metadata
}

func (e CheckoutCompleted) EventID() string { return e.ID }
func (e CheckoutCompleted) Kind() EventKind { return EventKindCheckoutCompleted }
func (CheckoutCompleted) isEvent()          {}

// PaymentFailed: a payment attempt was declined. Metadata may be empty, in
// which case the purchase is resolved through PaymentReference.
type PaymentFailed struct {
	ID               string
	PaymentReference string
	Metadata         Metadata
}

func (e PaymentFailed) EventID() string { return e.ID }
func (e PaymentFailed) Kind() EventKind { return EventKindPaymentFailed }
func (PaymentFailed) isEvent()          {}

// Unrecognized covers every other gateway event type; it is acknowledged and dropped.
type Unrecognized struct {
	ID   string
	Type string
}

func (e Unrecognized) EventID() string { return e.ID }
func (e Unrecognized) Kind() EventKind { return EventKind(e.Type) }
func (Unrecognized) isEvent()          {}
