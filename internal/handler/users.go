package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"coursemart/internal/domain"
	"coursemart/internal/middleware"
	"coursemart/pkg/errors"
	"coursemart/pkg/validator"
)

type UsersHandler struct {
	service   UserService
	validator *validator.Validator
	logger    Logger
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func NewUsersHandler(service UserService, val *validator.Validator, log Logger) *UsersHandler {
	return &UsersHandler{service: service, validator: val, logger: log}
}

type syncUserRequest struct {
	Name     string `json:"name" validate:"required,max=128"`
	Email    string `json:"email" validate:"omitempty,email"`
	ImageURL string `json:"image_url" validate:"omitempty,url,max=2048"`
}

// CreateOrUpdate stores the caller's profile on first login and refreshes it afterwards.
// The enrollment set is never touched here.
func (h *UsersHandler) CreateOrUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req syncUserRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		req.Email, _ = middleware.EmailFromContext(r.Context())
	}
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	user, err := h.service.SyncUser(r.Context(), &domain.User{
		ID:       userID,
		Name:     validator.Sanitize(req.Name),
		Email:    req.Email,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		h.logger.Error("Failed to sync user", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "Failed to save user")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": user})
}

// Me returns the caller's user record, enrollment set included.
func (h *UsersHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		if errors.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("Failed to fetch user", map[string]interface{}{"user_id": userID, "error": err.Error()})
		respondError(w, http.StatusInternalServerError, "Failed to fetch user")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user": user})
}

type UserService interface {
	SyncUser(ctx context.Context, u *domain.User) (*domain.User, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{"success": false, "error": message})
}

func respondValidationErrors(w http.ResponseWriter, errors map[string]string) {
	respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"success":           false,
		"error":             "Validation failed",
		"validation_errors": errors,
	})
}
