package purchase

import (
	"context"
	stderrors "errors"

	"coursemart/internal/domain"
	"coursemart/pkg/errors"
)

// UpdateCourseProgress marks lectureID completed for an enrolled user. It
// reports false when the lecture was already recorded.
func (s *Service) UpdateCourseProgress(ctx context.Context, userID, courseID, lectureID string) (bool, error) {
	if err := s.requireEnrollment(ctx, userID, courseID); err != nil {
		return false, err
	}

	added, err := s.store.AddLectureCompleted(ctx, userID, courseID, lectureID)
	if err != nil {
		return false, err
	}
	if added {
		s.logger.Debug("Lecture completed", map[string]interface{}{
			"user_id":    userID,
			"course_id":  courseID,
			"lecture_id": lectureID,
		})
	}
	return added, nil
}

// CourseProgress returns the user's progress record, or an empty one when
// nothing has been completed yet.
func (s *Service) CourseProgress(ctx context.Context, userID, courseID string) (*domain.CourseProgress, error) {
	p, err := s.store.FindCourseProgress(ctx, userID, courseID)
	if stderrors.Is(err, errors.ErrProgressNotFound) {
		return &domain.CourseProgress{UserID: userID, CourseID: courseID, LectureCompleted: domain.IDSet{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AddRating records the user's 1..5 score for a course they own, replacing
// any earlier score.
func (s *Service) AddRating(ctx context.Context, userID, courseID string, rating int) (*domain.CourseRating, error) {
	if !domain.ValidRating(rating) {
		return nil, errors.ErrInvalidRating
	}
	if err := s.requireEnrollment(ctx, userID, courseID); err != nil {
		return nil, err
	}

	r := &domain.CourseRating{CourseID: courseID, UserID: userID, Rating: rating}
	if err := s.store.UpsertCourseRating(ctx, r); err != nil {
		return nil, err
	}

	s.logger.Info("Course rated", map[string]interface{}{
		"user_id":   userID,
		"course_id": courseID,
		"rating":    rating,
	})
	return r, nil
}

// requireEnrollment checks the course exists and is in the user's enrollment set.
func (s *Service) requireEnrollment(ctx context.Context, userID, courseID string) error {
	if _, err := s.store.FindCourseByID(ctx, courseID); err != nil {
		return err
	}
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsEnrolledIn(courseID) {
		return errors.ErrNotEnrolled
	}
	return nil
}
