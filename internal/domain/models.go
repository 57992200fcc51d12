// Package domain holds the purchase, course and user records shared by the
// settlement engine and its stores.
package domain

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PurchaseStatus is monotonic: pending moves once to completed or failed.
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
)

func (s PurchaseStatus) IsTerminal() bool {
	return s == PurchaseStatusCompleted || s == PurchaseStatusFailed
}

// CanTransitionTo reports whether from -> to is a legal lifecycle step.
func (s PurchaseStatus) CanTransitionTo(to PurchaseStatus) bool {
	return s == PurchaseStatusPending && to.IsTerminal()
}

// Purchase is the financial record created when checkout begins.
type Purchase struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	CourseID  string          `json:"course_id" db:"course_id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Currency  string          `json:"currency" db:"currency"`
	Status    PurchaseStatus  `json:"status" db:"status"`
	SessionID *string         `json:"session_id,omitempty" db:"session_id"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Course is the catalog entry; only EnrolledStudents is written by settlement.
type Course struct {
	ID               string          `json:"id" db:"id"`
	Title            string          `json:"title" db:"title"`
	Description      string          `json:"description" db:"description"`
	Price            decimal.Decimal `json:"price" db:"price"`
	Discount         decimal.Decimal `json:"discount" db:"discount"`
	IsPublished      bool            `json:"is_published" db:"is_published"`
	EnrolledStudents IDSet           `json:"enrolled_students" db:"enrolled_students"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

var hundred = decimal.NewFromInt(100)

// ChargeAmount is price minus discount percent, rounded to minor-unit precision.
func (c *Course) ChargeAmount() decimal.Decimal {
	off := c.Price.Mul(c.Discount).Div(hundred)
	return c.Price.Sub(off).Round(2)
}

// User mirrors an identity-provider subject; the ID is the subject id.
type User struct {
	ID              string    `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	Email           string    `json:"email" db:"email"`
	ImageURL        string    `json:"image_url" db:"image_url"`
	EnrolledCourses IDSet     `json:"enrolled_courses" db:"enrolled_courses"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// IsEnrolledIn reports whether courseID is in the user's enrollment set.
func (u *User) IsEnrolledIn(courseID string) bool {
	return u.EnrolledCourses.Contains(courseID)
}

// IDSet is a membership set of opaque ids; order carries no meaning.
type IDSet []string

func (s IDSet) Contains(id string) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// With returns the union of s and {id}; s is returned unchanged when id is present.
func (s IDSet) With(id string) IDSet {
	if s.Contains(id) {
		return s
	}
	out := make(IDSet, len(s), len(s)+1)
	copy(out, s)
	return append(out, id)
}

func (s IDSet) Value() (driver.Value, error) {
	if s == nil {
		return pq.StringArray{}.Value()
	}
	return pq.StringArray(s).Value()
}

func (s *IDSet) Scan(value interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(value); err != nil {
		return err
	}
	*s = IDSet(arr)
	return nil
}

// CourseProgress is one user's lecture completion record for one course.
type CourseProgress struct {
	UserID           string    `json:"user_id" db:"user_id"`
	CourseID         string    `json:"course_id" db:"course_id"`
	Completed        bool      `json:"completed" db:"completed"`
	LectureCompleted IDSet     `json:"lecture_completed" db:"lecture_completed"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

const (
	MinRating = 1
	MaxRating = 5
)

// CourseRating is a user's score for a course. A user holds at most one
// rating per course; rating again replaces it.
type CourseRating struct {
	CourseID  string    `json:"course_id" db:"course_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Rating    int       `json:"rating" db:"rating"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ValidRating reports whether n is within MinRating..MaxRating.
func ValidRating(n int) bool {
	return n >= MinRating && n <= MaxRating
}
