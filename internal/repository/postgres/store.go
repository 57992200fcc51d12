package postgres

import (
	"context"

	"coursemart/pkg/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store bundles the ledger repositories over one pool.
type Store struct {
	*PurchaseRepository
	*CourseRepository
	*UserRepository
	*ActivityRepository
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		PurchaseRepository: NewPurchaseRepository(db),
		CourseRepository:   NewCourseRepository(db),
		UserRepository:     NewUserRepository(db),
		ActivityRepository: NewActivityRepository(db),
		db:                 db,
	}
}

// Connect opens and pings the pool described by cfg.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
