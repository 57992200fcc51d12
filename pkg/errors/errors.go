// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Lookup errors
var (
	ErrPurchaseNotFound = errors.New("purchase not found")
	ErrCourseNotFound   = errors.New("course not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrProgressNotFound = errors.New("course progress not found")
)

// Settlement errors
var (
	ErrUnauthenticated    = errors.New("event signature verification failed")
	ErrInvalidTransition  = errors.New("invalid purchase status transition")
	ErrPartialEnrollment  = errors.New("enrollment partially applied")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Purchase initiation errors
var (
	ErrAlreadyEnrolled       = errors.New("user already enrolled in course")
	ErrPendingPurchaseExists = errors.New("pending purchase already exists for user and course")
	ErrDuplicateRequest      = errors.New("duplicate request in progress")
)

// Learner activity errors
var (
	ErrNotEnrolled   = errors.New("user has not purchased this course")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// IsNotFound reports whether err refers to a missing ledger record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPurchaseNotFound) ||
		errors.Is(err, ErrCourseNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrProgressNotFound)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
