package postgres

import (
	"context"
	"database/sql"
	"time"

	"coursemart/internal/domain"
	"coursemart/pkg/errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// CourseRepository reads the catalog and maintains course enrollment sets.
type CourseRepository struct {
	db *sqlx.DB
}

func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) FindCourseByID(ctx context.Context, id string) (*domain.Course, error) {
	var c domain.Course
	err := r.db.GetContext(ctx, &c, `SELECT * FROM courses WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrCourseNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find course")
	}
	return &c, nil
}

func (r *CourseRepository) ListCoursesByIDs(ctx context.Context, ids []string) ([]*domain.Course, error) {
	courses := []*domain.Course{}
	if len(ids) == 0 {
		return courses, nil
	}
	err := r.db.SelectContext(ctx, &courses,
		`SELECT * FROM courses WHERE id = ANY($1) ORDER BY title`, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list courses")
	}
	return courses, nil
}

// AddEnrolledStudent appends userID unless already present, in one statement.
func (r *CourseRepository) AddEnrolledStudent(ctx context.Context, courseID, userID string) error {
	query := `
		UPDATE courses SET
			enrolled_students = CASE
				WHEN $2 = ANY(enrolled_students) THEN enrolled_students
				ELSE array_append(enrolled_students, $2)
			END,
			updated_at = $3
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, courseID, userID, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "failed to add enrolled student")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrCourseNotFound
	}
	return nil
}

// UpsertCourse writes catalog fields for development seeding. Enrollment sets
// of an existing course are left alone.
func (r *CourseRepository) UpsertCourse(ctx context.Context, c *domain.Course) error {
	query := `
		INSERT INTO courses (id, title, description, price, discount, is_published, enrolled_students, created_at, updated_at)
		VALUES (:id, :title, :description, :price, :discount, :is_published, :enrolled_students, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			discount = EXCLUDED.discount,
			is_published = EXCLUDED.is_published,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return errors.Wrap(err, "failed to upsert course")
	}
	return nil
}
