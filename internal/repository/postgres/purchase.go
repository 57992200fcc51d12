// ==============================================================================
// PURCHASE REPOSITORY - internal/repository/postgres/purchase.go
// ==============================================================================
package postgres

import (
	"context"
	"database/sql"
	"time"

	"coursemart/internal/domain"
	"coursemart/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const onePendingConstraint = "purchases_one_pending_per_user_course"

type PurchaseRepository struct {
	db *sqlx.DB
}

func NewPurchaseRepository(db *sqlx.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

func (r *PurchaseRepository) CreatePurchase(ctx context.Context, p *domain.Purchase) error {
	query := `
		INSERT INTO purchases (
			id, course_id, user_id, amount, currency, status, session_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.CourseID, p.UserID, p.Amount, p.Currency, p.Status, p.SessionID,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			if pqErr.Constraint == onePendingConstraint {
				return errors.ErrPendingPurchaseExists
			}
			return errors.Wrap(errors.ErrDuplicateRequest, "purchase id already used")
		}
		return errors.Wrap(err, "failed to create purchase")
	}

	return nil
}

func (r *PurchaseRepository) FindPurchaseByID(ctx context.Context, id uuid.UUID) (*domain.Purchase, error) {
	var p domain.Purchase
	err := r.db.GetContext(ctx, &p, `SELECT * FROM purchases WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrPurchaseNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find purchase")
	}
	return &p, nil
}

func (r *PurchaseRepository) FindPendingPurchase(ctx context.Context, userID, courseID string) (*domain.Purchase, error) {
	query := `
		SELECT * FROM purchases
		WHERE user_id = $1 AND course_id = $2 AND status = $3
		LIMIT 1
	`

	var p domain.Purchase
	err := r.db.GetContext(ctx, &p, query, userID, courseID, domain.PurchaseStatusPending)
	if err == sql.ErrNoRows {
		return nil, errors.ErrPurchaseNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find pending purchase")
	}
	return &p, nil
}

// TransitionPurchase is a compare-and-set on status. A false result with a nil
// error means another writer already moved the purchase out of from.
func (r *PurchaseRepository) TransitionPurchase(ctx context.Context, id uuid.UUID, from, to domain.PurchaseStatus) (bool, error) {
	query := `
		UPDATE purchases SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
	`

	res, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return false, errors.Wrap(err, "failed to transition purchase")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read affected rows")
	}
	if n == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM purchases WHERE id = $1)`, id); err != nil {
		return false, errors.Wrap(err, "failed to check purchase")
	}
	if !exists {
		return false, errors.ErrPurchaseNotFound
	}
	return false, nil
}

func (r *PurchaseRepository) SetPurchaseSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE purchases SET session_id = $2, updated_at = $3 WHERE id = $1`,
		id, sessionID, time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to record checkout session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrPurchaseNotFound
	}
	return nil
}

func (r *PurchaseRepository) ListPurchasesByUser(ctx context.Context, userID string) ([]*domain.Purchase, error) {
	var purchases []*domain.Purchase
	err := r.db.SelectContext(ctx, &purchases,
		`SELECT * FROM purchases WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list purchases")
	}
	return purchases, nil
}
