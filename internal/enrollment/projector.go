// Package enrollment applies the access side effects of a completed purchase.
package enrollment

import (
	"context"
	stderrors "errors"
	"fmt"

	"coursemart/pkg/errors"
	"coursemart/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Projector writes a grant into both enrollment sets. Each write is a
// set-union, so replaying a grant any number of times converges on the same
// state.
type Projector struct {
	store  Store
	logger logger.Logger
}

func NewProjector(store Store, log logger.Logger) *Projector {
	return &Projector{store: store, logger: log}
}

// Grant adds userID to the course's students and courseID to the user's
// courses. It succeeds only when both unions are durable; otherwise the
// returned error wraps ErrPartialEnrollment together with each cause.
func (p *Projector) Grant(ctx context.Context, userID, courseID string) error {
	var courseErr, userErr error

	var g errgroup.Group
	g.Go(func() error {
		courseErr = p.store.AddEnrolledStudent(ctx, courseID, userID)
		return courseErr
	})
	g.Go(func() error {
		userErr = p.store.AddEnrolledCourse(ctx, userID, courseID)
		return userErr
	})

	if err := g.Wait(); err == nil {
		p.logger.Debug("Enrollment granted", map[string]interface{}{
			"user_id":   userID,
			"course_id": courseID,
		})
		return nil
	}

	fields := map[string]interface{}{
		"user_id":          userID,
		"course_id":        courseID,
		"course_side_done": courseErr == nil,
		"user_side_done":   userErr == nil,
	}
	if courseErr != nil {
		fields["course_error"] = courseErr.Error()
	}
	if userErr != nil {
		fields["user_error"] = userErr.Error()
	}
	p.logger.Warn("Enrollment grant incomplete", fields)

	return fmt.Errorf("%w: %w", errors.ErrPartialEnrollment, stderrors.Join(courseErr, userErr))
}

// Store is the slice of the ledger the projector writes to.
type Store interface {
	AddEnrolledStudent(ctx context.Context, courseID, userID string) error
	AddEnrolledCourse(ctx context.Context, userID, courseID string) error
}
