// Simple seeding tool to load a demo catalog into Postgres.
// Usage (env overrides):
//
//	SEED_USER_ID=user_2abc SEED_USER_EMAIL=ada@example.com
//
// Reads DATABASE_URL via coursemart/pkg/config
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"coursemart/internal/domain"
	"coursemart/internal/repository/postgres"
	"coursemart/pkg/config"
	"coursemart/pkg/logger"
)

var catalog = []domain.Course{
	{ID: "go-in-production", Title: "Go in Production", Description: "Services, observability and deployment", Price: decimal.NewFromInt(100), Discount: decimal.NewFromInt(20), IsPublished: true},
	{ID: "postgres-internals", Title: "Postgres Internals", Description: "MVCC, indexes and query plans", Price: decimal.RequireFromString("49.99"), Discount: decimal.Zero, IsPublished: true},
	{ID: "distributed-systems", Title: "Distributed Systems", Description: "Consensus, replication and idempotency", Price: decimal.NewFromInt(150), Discount: decimal.RequireFromString("33.33"), IsPublished: true},
}

func main() {
	log := logger.New("seed-catalog")

	cfg := config.Load()
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL environment variable is required", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	courses := postgres.NewCourseRepository(db)
	users := postgres.NewUserRepository(db)
	now := time.Now().UTC()

	for i := range catalog {
		c := catalog[i]
		c.CreatedAt, c.UpdatedAt = now, now
		if err := courses.UpsertCourse(ctx, &c); err != nil {
			log.Fatal("Failed to seed course", map[string]interface{}{"course_id": c.ID, "error": err.Error()})
		}
		log.Info("Course seeded", map[string]interface{}{"course_id": c.ID, "charge": c.ChargeAmount().StringFixed(2)})
	}

	if id := os.Getenv("SEED_USER_ID"); id != "" {
		err := users.UpsertUser(ctx, &domain.User{
			ID:        id,
			Name:      getenv("SEED_USER_NAME", "Demo Learner"),
			Email:     getenv("SEED_USER_EMAIL", "learner@example.com"),
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			log.Fatal("Failed to seed user", map[string]interface{}{"user_id": id, "error": err.Error()})
		}
		log.Info("User seeded", map[string]interface{}{"user_id": id})
	}

	fmt.Println("OK: catalog seeded")
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
