package postgres

import (
	"context"
	"database/sql"
	"time"

	"coursemart/internal/domain"
	"coursemart/pkg/errors"

	"github.com/jmoiron/sqlx"
)

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find user")
	}
	return &user, nil
}

// UpsertUser creates the user on first login and refreshes profile fields
// afterwards. enrolled_courses is never written here.
func (r *UserRepository) UpsertUser(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, name, email, image_url, enrolled_courses, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '{}', $5, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			image_url = EXCLUDED.image_url,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, u.ID, u.Name, u.Email, u.ImageURL, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "failed to upsert user")
	}
	return nil
}

func (r *UserRepository) AddEnrolledCourse(ctx context.Context, userID, courseID string) error {
	query := `
		UPDATE users SET
			enrolled_courses = CASE
				WHEN $2 = ANY(enrolled_courses) THEN enrolled_courses
				ELSE array_append(enrolled_courses, $2)
			END,
			updated_at = $3
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, userID, courseID, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "failed to add enrolled course")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrUserNotFound
	}
	return nil
}
