package postgres

import (
	"context"
	"database/sql"
	"time"

	"coursemart/internal/domain"
	"coursemart/pkg/errors"

	"github.com/jmoiron/sqlx"
)

// ActivityRepository stores per-user lecture progress and course ratings.
type ActivityRepository struct {
	db *sqlx.DB
}

func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) AddLectureCompleted(ctx context.Context, userID, courseID, lectureID string) (bool, error) {
	query := `
		INSERT INTO course_progress (user_id, course_id, lecture_completed, created_at, updated_at)
		VALUES ($1, $2, ARRAY[$3::TEXT], $4, $4)
		ON CONFLICT (user_id, course_id) DO UPDATE SET
			lecture_completed = array_append(course_progress.lecture_completed, $3::TEXT),
			updated_at = EXCLUDED.updated_at
		WHERE NOT ($3::TEXT = ANY(course_progress.lecture_completed))
	`

	res, err := r.db.ExecContext(ctx, query, userID, courseID, lectureID, time.Now().UTC())
	if err != nil {
		return false, errors.Wrap(err, "failed to record completed lecture")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to record completed lecture")
	}
	return n == 1, nil
}

func (r *ActivityRepository) FindCourseProgress(ctx context.Context, userID, courseID string) (*domain.CourseProgress, error) {
	var p domain.CourseProgress
	err := r.db.GetContext(ctx, &p,
		`SELECT * FROM course_progress WHERE user_id = $1 AND course_id = $2`,
		userID, courseID,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrProgressNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find course progress")
	}
	return &p, nil
}

// UpsertCourseRating replaces the user's existing rating for the course in place.
func (r *ActivityRepository) UpsertCourseRating(ctx context.Context, rating *domain.CourseRating) error {
	query := `
		INSERT INTO course_ratings (course_id, user_id, rating, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (course_id, user_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, rating.CourseID, rating.UserID, rating.Rating, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "failed to upsert course rating")
	}
	return nil
}

func (r *ActivityRepository) ListCourseRatings(ctx context.Context, courseID string) ([]*domain.CourseRating, error) {
	var ratings []*domain.CourseRating
	err := r.db.SelectContext(ctx, &ratings,
		`SELECT * FROM course_ratings WHERE course_id = $1 ORDER BY created_at`,
		courseID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list course ratings")
	}
	return ratings, nil
}
