// Purchase reconciliation report.
//
//	reconcile [-stale 24h] [-repair]
//
// Lists purchase totals, pending checkouts older than -stale, completed
// purchases whose enrollment was not fully applied, and failed purchases
// whose user was enrolled anyway. -repair re-runs the enrollment grant for
// the incomplete completed purchases.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"coursemart/internal/enrollment"
	"coursemart/internal/repository/postgres"
	"coursemart/pkg/config"
	"coursemart/pkg/logger"
)

func main() {
	stale := flag.Duration("stale", 24*time.Hour, "age after which a pending purchase is reported")
	repair := flag.Bool("repair", false, "re-apply enrollment for completed purchases")
	flag.Parse()

	log := logger.New("reconcile")
	cfg := config.Load()
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL environment variable is required", nil)
	}

	ctx := context.Background()
	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	reports := postgres.NewReportRepository(db)

	fmt.Println("=========================================================")
	fmt.Printf("COURSEMART PURCHASE RECONCILIATION REPORT\n")
	fmt.Printf("Time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Println("=========================================================")

	fmt.Println("\n[1] Purchases by status")
	totals, err := reports.TotalsByStatus(ctx)
	if err != nil {
		log.Fatal("Failed to total purchases", map[string]interface{}{"error": err.Error()})
	}
	for _, t := range totals {
		fmt.Printf("    %-10s %-4s %8d  %s\n", t.Status, t.Currency, t.Count, t.Amount.StringFixed(2))
	}

	fmt.Printf("\n[2] Pending checkouts older than %s\n", *stale)
	pending, err := reports.StalePending(ctx, time.Now().UTC().Add(-*stale))
	if err != nil {
		log.Fatal("Failed to list stale purchases", map[string]interface{}{"error": err.Error()})
	}
	for _, p := range pending {
		fmt.Printf("    %s user=%s course=%s created=%s\n", p.ID, p.UserID, p.CourseID, p.CreatedAt.Format(time.RFC3339))
	}
	if len(pending) == 0 {
		fmt.Println("    none")
	}

	fmt.Println("\n[3] Completed purchases with incomplete enrollment")
	broken, err := reports.UnprojectedCompleted(ctx)
	if err != nil {
		log.Fatal("Failed to list unprojected purchases", map[string]interface{}{"error": err.Error()})
	}
	if len(broken) == 0 {
		fmt.Println("    none")
	}

	projector := enrollment.NewProjector(postgres.NewStore(db), log)
	repaired := 0
	for _, p := range broken {
		fmt.Printf("    %s user=%s course=%s\n", p.ID, p.UserID, p.CourseID)
		if !*repair {
			continue
		}
		if err := projector.Grant(ctx, p.UserID, p.CourseID); err != nil {
			log.Error("Enrollment repair failed", map[string]interface{}{
				"purchase_id": p.ID,
				"error":       err.Error(),
			})
			continue
		}
		repaired++
	}
	if *repair && len(broken) > 0 {
		fmt.Printf("\n    repaired %d of %d\n", repaired, len(broken))
	}

	// Enrollment is never revoked automatically; these need an operator decision.
	fmt.Println("\n[4] Failed purchases whose user is enrolled anyway")
	orphaned, err := reports.EnrolledButFailed(ctx)
	if err != nil {
		log.Fatal("Failed to list enrolled failed purchases", map[string]interface{}{"error": err.Error()})
	}
	for _, p := range orphaned {
		fmt.Printf("    %s user=%s course=%s failed=%s\n", p.ID, p.UserID, p.CourseID, p.UpdatedAt.Format(time.RFC3339))
	}
	if len(orphaned) == 0 {
		fmt.Println("    none")
	}
}
