package postgres

import (
	"context"
	"time"

	"coursemart/internal/domain"
	"coursemart/pkg/errors"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// ReportRepository backs the reconciliation report.
type ReportRepository struct {
	db *sqlx.DB
}

func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

type StatusTotal struct {
	Status   domain.PurchaseStatus `db:"status"`
	Currency string                `db:"currency"`
	Count    int64                 `db:"count"`
	Amount   decimal.Decimal       `db:"amount"`
}

func (r *ReportRepository) TotalsByStatus(ctx context.Context) ([]StatusTotal, error) {
	var totals []StatusTotal
	err := r.db.SelectContext(ctx, &totals, `
		SELECT status, currency, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount
		FROM purchases
		GROUP BY status, currency
		ORDER BY status, currency
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to total purchases")
	}
	return totals, nil
}

// StalePending lists pending purchases created before cutoff.
func (r *ReportRepository) StalePending(ctx context.Context, cutoff time.Time) ([]*domain.Purchase, error) {
	purchases := []*domain.Purchase{}
	err := r.db.SelectContext(ctx, &purchases, `
		SELECT * FROM purchases
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
	`, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stale purchases")
	}
	return purchases, nil
}

// UnprojectedCompleted lists completed purchases missing from either
// enrollment set.
func (r *ReportRepository) UnprojectedCompleted(ctx context.Context) ([]*domain.Purchase, error) {
	purchases := []*domain.Purchase{}
	err := r.db.SelectContext(ctx, &purchases, `
		SELECT p.* FROM purchases p
		LEFT JOIN users u ON u.id = p.user_id
		LEFT JOIN courses c ON c.id = p.course_id
		WHERE p.status = 'completed'
		  AND (u.id IS NULL OR c.id IS NULL
		       OR NOT (p.course_id = ANY(u.enrolled_courses))
		       OR NOT (p.user_id = ANY(c.enrolled_students)))
		ORDER BY p.updated_at
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list unprojected purchases")
	}
	return purchases, nil
}

// EnrolledButFailed lists failed purchases whose user holds the course anyway
// with no completed purchase backing it. These come from a payment failure
// landing after settlement granted enrollment.
func (r *ReportRepository) EnrolledButFailed(ctx context.Context) ([]*domain.Purchase, error) {
	purchases := []*domain.Purchase{}
	err := r.db.SelectContext(ctx, &purchases, `
		SELECT p.* FROM purchases p
		JOIN users u ON u.id = p.user_id
		WHERE p.status = 'failed'
		  AND p.course_id = ANY(u.enrolled_courses)
		  AND NOT EXISTS (
		      SELECT 1 FROM purchases done
		      WHERE done.user_id = p.user_id
		        AND done.course_id = p.course_id
		        AND done.status = 'completed')
		ORDER BY p.updated_at
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list enrolled failed purchases")
	}
	return purchases, nil
}
