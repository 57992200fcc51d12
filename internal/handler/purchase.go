package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"coursemart/internal/domain"
	"coursemart/internal/middleware"
	"coursemart/internal/purchase"
	"coursemart/pkg/errors"
	"coursemart/pkg/validator"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type PurchaseHandler struct {
	service        PurchaseService
	validator      *validator.Validator
	allowedOrigins []string
	logger         Logger
}

// NewPurchaseHandler builds the purchase endpoints. Return URLs are built from
// the request Origin only when it is one of allowedOrigins; an empty list
// trusts any origin.
func NewPurchaseHandler(service PurchaseService, val *validator.Validator, allowedOrigins []string, log Logger) *PurchaseHandler {
	return &PurchaseHandler{service: service, validator: val, allowedOrigins: allowedOrigins, logger: log}
}

type purchaseRequest struct {
	CourseID string `json:"course_id" validate:"required,opaque_id"`
}

type purchaseResponse struct {
	Success    bool      `json:"success"`
	SessionURL string    `json:"session_url"`
	PurchaseID uuid.UUID `json:"purchase_id"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
}

// Purchase opens a checkout for the authenticated user.
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req purchaseRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.CourseID = strings.TrimSpace(req.CourseID)
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	res, err := h.service.InitiatePurchase(r.Context(), purchase.InitiateRequest{
		UserID:   userID,
		CourseID: req.CourseID,
		Origin:   h.origin(r),
	})
	if err != nil {
		h.respondPurchaseError(w, err, userID, req.CourseID)
		return
	}

	respondJSON(w, http.StatusOK, purchaseResponse{
		Success:    true,
		SessionURL: res.RedirectURL,
		PurchaseID: res.PurchaseID,
		Amount:     res.Amount.StringFixed(2),
		Currency:   res.Currency,
	})
}

func (h *PurchaseHandler) respondPurchaseError(w http.ResponseWriter, err error, userID, courseID string) {
	switch {
	case stderrors.Is(err, errors.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "User not found")
	case stderrors.Is(err, errors.ErrCourseNotFound):
		respondError(w, http.StatusNotFound, "Course not found")
	case stderrors.Is(err, errors.ErrAlreadyEnrolled):
		respondError(w, http.StatusConflict, "Already enrolled in this course")
	case stderrors.Is(err, errors.ErrGatewayUnavailable):
		respondError(w, http.StatusBadGateway, "Payment provider unavailable, please retry")
	default:
		h.logger.Error("Purchase initiation failed", map[string]interface{}{
			"user_id":   userID,
			"course_id": courseID,
			"error":     err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "Failed to start purchase")
	}
}

func (h *PurchaseHandler) origin(r *http.Request) string {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(h.allowedOrigins) == 0 {
		return origin
	}
	for _, o := range h.allowedOrigins {
		if strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

// ListPurchases returns the caller's purchases, newest first.
func (h *PurchaseHandler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	purchases, err := h.service.ListPurchases(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to fetch purchases", map[string]interface{}{"user_id": userID, "error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Failed to fetch purchases")
		return
	}
	if purchases == nil {
		purchases = []*domain.Purchase{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"purchases": purchases,
		"total":     len(purchases),
	})
}

func (h *PurchaseHandler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid purchase ID")
		return
	}

	p, err := h.service.GetPurchase(r.Context(), userID, id)
	if err != nil {
		if errors.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "Purchase not found")
			return
		}
		h.logger.Error("Failed to fetch purchase", map[string]interface{}{"purchase_id": id, "error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Failed to fetch purchase")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "purchase": p})
}

// EnrolledCourses lists the courses in the caller's enrollment set.
func (h *PurchaseHandler) EnrolledCourses(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	courses, err := h.service.EnrolledCourses(r.Context(), userID)
	if err != nil {
		if errors.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("Failed to fetch enrolled courses", map[string]interface{}{"user_id": userID, "error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Failed to fetch enrolled courses")
		return
	}
	if courses == nil {
		courses = []*domain.Course{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"enrolledCourses": courses,
	})
}

type PurchaseService interface {
	InitiatePurchase(ctx context.Context, req purchase.InitiateRequest) (*purchase.InitiateResult, error)
	GetPurchase(ctx context.Context, userID string, id uuid.UUID) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, userID string) ([]*domain.Purchase, error)
	EnrolledCourses(ctx context.Context, userID string) ([]*domain.Course, error)
}
