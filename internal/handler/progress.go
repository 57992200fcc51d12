package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"coursemart/internal/domain"
	"coursemart/internal/middleware"
	"coursemart/pkg/errors"
	"coursemart/pkg/validator"
)

// ProgressHandler serves lecture progress and ratings for enrolled learners.
type ProgressHandler struct {
	service   ProgressService
	validator *validator.Validator
	logger    Logger
}

func NewProgressHandler(service ProgressService, val *validator.Validator, log Logger) *ProgressHandler {
	return &ProgressHandler{service: service, validator: val, logger: log}
}

type updateProgressRequest struct {
	CourseID  string `json:"course_id" validate:"required,opaque_id"`
	LectureID string `json:"lecture_id" validate:"required,opaque_id"`
}

type getProgressRequest struct {
	CourseID string `json:"course_id" validate:"required,opaque_id"`
}

type addRatingRequest struct {
	CourseID string `json:"course_id" validate:"required,opaque_id"`
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
}

func (h *ProgressHandler) UpdateCourseProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req updateProgressRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.CourseID = strings.TrimSpace(req.CourseID)
	req.LectureID = strings.TrimSpace(req.LectureID)
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	added, err := h.service.UpdateCourseProgress(r.Context(), userID, req.CourseID, req.LectureID)
	if err != nil {
		h.respondActivityError(w, err, "Failed to update progress", userID, req.CourseID)
		return
	}

	message := "Progress Updated"
	if !added {
		message = "Lecture Already Completed"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": message})
}

func (h *ProgressHandler) CourseProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req getProgressRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.CourseID = strings.TrimSpace(req.CourseID)
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	progress, err := h.service.CourseProgress(r.Context(), userID, req.CourseID)
	if err != nil {
		h.respondActivityError(w, err, "Failed to fetch progress", userID, req.CourseID)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "progressData": progress})
}

func (h *ProgressHandler) AddRating(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req addRatingRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.CourseID = strings.TrimSpace(req.CourseID)
	if errs := h.validator.ValidateStructured(&req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	rating, err := h.service.AddRating(r.Context(), userID, req.CourseID, req.Rating)
	if err != nil {
		h.respondActivityError(w, err, "Failed to add rating", userID, req.CourseID)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Rating added",
		"rating":  rating,
	})
}

func (h *ProgressHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *ProgressHandler) respondActivityError(w http.ResponseWriter, err error, msg, userID, courseID string) {
	switch {
	case stderrors.Is(err, errors.ErrNotEnrolled):
		respondError(w, http.StatusForbidden, "User has not purchased this course")
	case stderrors.Is(err, errors.ErrInvalidRating):
		respondError(w, http.StatusBadRequest, "Invalid rating details")
	case stderrors.Is(err, errors.ErrCourseNotFound):
		respondError(w, http.StatusNotFound, "Course not found")
	case stderrors.Is(err, errors.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "User not found")
	default:
		h.logger.Error(msg, map[string]interface{}{
			"user_id":   userID,
			"course_id": courseID,
			"error":     err.Error(),
		})
		respondError(w, http.StatusInternalServerError, msg)
	}
}

type ProgressService interface {
	UpdateCourseProgress(ctx context.Context, userID, courseID, lectureID string) (bool, error)
	CourseProgress(ctx context.Context, userID, courseID string) (*domain.CourseProgress, error)
	AddRating(ctx context.Context, userID, courseID string, rating int) (*domain.CourseRating, error)
}
