// Package repository declares the ledger store contract shared by the
// postgres, mongo and memory backends.
package repository

import (
	"context"

	"coursemart/internal/domain"

	"github.com/google/uuid"
)

// Store is the ledger: purchases, courses, users and learner activity. Writes are atomic per
// record only; no operation spans two records.
type Store interface {
	CreatePurchase(ctx context.Context, p *domain.Purchase) error
	FindPurchaseByID(ctx context.Context, id uuid.UUID) (*domain.Purchase, error)
	FindPendingPurchase(ctx context.Context, userID, courseID string) (*domain.Purchase, error)
	TransitionPurchase(ctx context.Context, id uuid.UUID, from, to domain.PurchaseStatus) (bool, error)
	SetPurchaseSession(ctx context.Context, id uuid.UUID, sessionID string) error
	ListPurchasesByUser(ctx context.Context, userID string) ([]*domain.Purchase, error)

	FindCourseByID(ctx context.Context, id string) (*domain.Course, error)
	ListCoursesByIDs(ctx context.Context, ids []string) ([]*domain.Course, error)
	AddEnrolledStudent(ctx context.Context, courseID, userID string) error

	FindUserByID(ctx context.Context, id string) (*domain.User, error)
	UpsertUser(ctx context.Context, u *domain.User) error
	AddEnrolledCourse(ctx context.Context, userID, courseID string) error

	// AddLectureCompleted set-unions lectureID into the progress record,
	// creating it on first use. It reports whether the lecture was new.
	AddLectureCompleted(ctx context.Context, userID, courseID, lectureID string) (bool, error)
	FindCourseProgress(ctx context.Context, userID, courseID string) (*domain.CourseProgress, error)
	UpsertCourseRating(ctx context.Context, r *domain.CourseRating) error
	ListCourseRatings(ctx context.Context, courseID string) ([]*domain.CourseRating, error)

	Ping(ctx context.Context) error
	Close() error
}
